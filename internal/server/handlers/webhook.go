package handlers

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tulumbak/courierhook/internal/pipeline"
)

// WebhookHandlers serves the inbound delivery endpoints.
type WebhookHandlers struct {
	pipeline *pipeline.Pipeline
}

func NewWebhookHandlers(p *pipeline.Pipeline) *WebhookHandlers {
	return &WebhookHandlers{pipeline: p}
}

// WebhookResponse is the success envelope for a processed delivery.
type WebhookResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	DeliveryID  string    `json:"deliveryId"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Receive handles POST /api/webhook/courier and POST /api/webhook/{platform}.
// Headers are accepted under both the generic and the platform-legacy names.
func (h *WebhookHandlers) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body")
		return
	}

	platform := headerAlias(r, "X-Webhook-Platform", "X-Mudita-Platform")
	if platform == "" {
		// Platform-specific endpoints carry the platform in the path.
		platform = r.PathValue("platform")
	}

	req := &pipeline.Request{
		Origin:     clientIP(r),
		Platform:   platform,
		DeliveryID: headerAlias(r, "X-Webhook-Id", "X-Mudita-Webhook-Id"),
		Timestamp:  headerAlias(r, "X-Webhook-Timestamp", "X-Mudita-Timestamp"),
		Signature:  headerAlias(r, "X-Webhook-Signature", "X-MuditaKurye-Signature"),
		Body:       body,
	}

	resp, pe := h.pipeline.Handle(r.Context(), req)
	if pe != nil {
		if pe.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(pe.RetryAfter))
		}
		Error(w, pe.HTTPStatus(), pe.Code, pe.Message)
		return
	}

	JSON(w, http.StatusOK, WebhookResponse{
		Success:     true,
		Message:     "Webhook processed successfully",
		DeliveryID:  resp.DeliveryID,
		ProcessedAt: resp.ProcessedAt,
	})
}

func headerAlias(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// clientIP strips the port off RemoteAddr. Proxy-forwarded addresses are a
// deployment concern handled in front of this service.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
