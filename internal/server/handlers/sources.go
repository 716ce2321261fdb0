package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tulumbak/courierhook/internal/registry"
)

// SourceHandlers serves the administrative webhook-source CRUD surface.
// Responses never contain the plaintext secret, only a has_secret flag.
type SourceHandlers struct {
	sources *registry.Service
}

func NewSourceHandlers(sources *registry.Service) *SourceHandlers {
	return &SourceHandlers{sources: sources}
}

type sourceEnvelope struct {
	Success bool          `json:"success"`
	Source  registry.View `json:"source"`
}

type sourceListEnvelope struct {
	Success bool            `json:"success"`
	Sources []registry.View `json:"sources"`
}

// Create handles POST /api/admin/webhook-sources.
func (h *SourceHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in registry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	src, err := h.sources.Create(r.Context(), in)
	if err != nil {
		writeSourceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, sourceEnvelope{Success: true, Source: src.View()})
}

// List handles GET /api/admin/webhook-sources.
func (h *SourceHandlers) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.List(r.Context())
	if err != nil {
		InternalError(w, "Failed to list webhook sources")
		return
	}

	views := make([]registry.View, 0, len(sources))
	for _, src := range sources {
		views = append(views, src.View())
	}

	JSON(w, http.StatusOK, sourceListEnvelope{Success: true, Sources: views})
}

// Get handles GET /api/admin/webhook-sources/{platform}.
func (h *SourceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	src, err := h.sources.Get(r.Context(), r.PathValue("platform"))
	if err != nil {
		writeSourceError(w, err)
		return
	}

	JSON(w, http.StatusOK, sourceEnvelope{Success: true, Source: src.View()})
}

// Update handles PUT /api/admin/webhook-sources/{platform}.
func (h *SourceHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var in registry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	src, err := h.sources.Update(r.Context(), r.PathValue("platform"), in)
	if err != nil {
		writeSourceError(w, err)
		return
	}

	JSON(w, http.StatusOK, sourceEnvelope{Success: true, Source: src.View()})
}

// Delete handles DELETE /api/admin/webhook-sources/{platform}.
func (h *SourceHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sources.Delete(r.Context(), r.PathValue("platform")); err != nil {
		writeSourceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"success": true})
}

// SelfTest handles POST /api/admin/webhook-sources/{platform}/test.
func (h *SourceHandlers) SelfTest(w http.ResponseWriter, r *http.Request) {
	status, err := h.sources.SelfTest(r.Context(), r.PathValue("platform"))
	if err != nil {
		writeSourceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func writeSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		NotFound(w, "Webhook source not found")
	case errors.Is(err, registry.ErrConflict):
		Conflict(w, "A source for this platform already exists")
	case errors.Is(err, registry.ErrSecretTooShort):
		Error(w, http.StatusBadRequest, "SECRET_TOO_SHORT", err.Error())
	case errors.Is(err, registry.ErrMissingPlatform):
		BadRequest(w, "Platform identifier is required")
	default:
		InternalError(w, "Internal server error")
	}
}
