package handlers

import (
	"net/http"
	"strconv"

	"github.com/tulumbak/courierhook/internal/ledger"
)

// DeliveryHandlers serves the administrative delivery-ledger listing.
type DeliveryHandlers struct {
	ledger *ledger.Store
}

func NewDeliveryHandlers(store *ledger.Store) *DeliveryHandlers {
	return &DeliveryHandlers{ledger: store}
}

type deliveryListEnvelope struct {
	Success    bool             `json:"success"`
	Deliveries []*ledger.Record `json:"deliveries"`
}

// List handles GET /api/admin/webhook-deliveries with optional platform,
// status, limit and offset query parameters.
func (h *DeliveryHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ListFilter{
		Platform: r.URL.Query().Get("platform"),
		Status:   r.URL.Query().Get("status"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			BadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	records, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		InternalError(w, "Failed to list deliveries")
		return
	}
	if records == nil {
		records = []*ledger.Record{}
	}

	JSON(w, http.StatusOK, deliveryListEnvelope{Success: true, Deliveries: records})
}
