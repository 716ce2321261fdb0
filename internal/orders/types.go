// Package orders owns order documents. The webhook pipeline only writes a
// bounded set of status fields and appends to the status history.
package orders

import "time"

// Courier status values on the delivery axis.
const (
	CourierPreparing = "preparing"
	CourierInTransit = "in_transit"
	CourierDelivered = "delivered"
	CourierCanceled  = "canceled"
	CourierFailed    = "failed"
)

// Actor values for status history entries.
const (
	ActorSystem  = "system"
	ActorAdmin   = "admin"
	ActorCourier = "courier"
)

// IsTerminalCourierStatus reports whether no further courier transitions are
// allowed from the given status.
func IsTerminalCourierStatus(status string) bool {
	switch status {
	case CourierDelivered, CourierCanceled, CourierFailed:
		return true
	}
	return false
}

// StatusEvent is one append-only entry in an order's status history. Entries
// are never mutated or deleted; ordering is by Timestamp.
type StatusEvent struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location,omitempty"`
	Note        string    `json:"note,omitempty"`
	SourceActor string    `json:"source_actor"`
}

// Order is the slice of the order document this subsystem reads and writes.
type Order struct {
	ID         string // internal id
	OrderID    string // external order id echoed by courier platforms
	TrackingID string // public tracking id

	Status        string
	CourierStatus string

	// TrackingRef is the courier platform's own tracking reference,
	// attached when the platform reports assignment.
	TrackingRef string

	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time

	// PaymentCollected flips to true on delivery (cash on delivery).
	PaymentCollected bool

	StatusHistory []StatusEvent

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppendHistory adds a status event. History is append-only; callers never
// rewrite existing entries.
func (o *Order) AppendHistory(e StatusEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	o.StatusHistory = append(o.StatusHistory, e)
}
