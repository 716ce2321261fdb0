// Package processor interprets verified courier events and applies the
// corresponding order mutation, producing an immutable history entry.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Canonical event types.
const (
	EventStatusUpdated   = "order.status.updated"
	EventDelivered       = "order.delivered"
	EventFailed          = "order.failed"
	EventCancelled       = "order.cancelled"
	EventAssigned        = "order.assigned"
	EventLocationUpdated = "courier.location.updated"
)

var (
	ErrMissingEvent    = errors.New("payload has neither event nor status field")
	ErrMissingOrderRef = errors.New("payload has no order reference")
	ErrUnknownEvent    = errors.New("unknown event type")
)

// Location as reported by courier platforms.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Display renders a location for history entries, preferring the
// human-readable address.
func (l *Location) Display() string {
	if l == nil {
		return ""
	}
	if l.Address != "" {
		return l.Address
	}
	return fmt.Sprintf("%g, %g", l.Latitude, l.Longitude)
}

// Payload is the structurally-validated webhook body. Platforms disagree on
// field names, so Normalize reconciles the aliases before parsing.
type Payload struct {
	Event         string `json:"event"`
	Status        string `json:"status"`
	OrderID       string `json:"orderId"`
	MuditaOrderID string `json:"muditaOrderId"`

	Location          *Location `json:"location"`
	EstimatedDelivery string    `json:"estimatedDelivery"`
	ActualDelivery    string    `json:"actualDelivery"`
	Note              string    `json:"note"`
	Reason            string    `json:"reason"`

	Metadata map[string]any `json:"metadata"`
}

// statusEventMap translates bare platform status values into canonical event
// types for payloads that carry a status but no event field.
var statusEventMap = map[string]string{
	"VALIDATED":   EventStatusUpdated,
	"ASSIGNED":    EventAssigned,
	"PREPARED":    EventStatusUpdated,
	"ON_DELIVERY": EventStatusUpdated,
	"DELIVERED":   EventDelivered,
	"CANCELED":    EventCancelled,
	"FAILED":      EventFailed,
}

// Normalize fills the canonical fields from platform-specific aliases: bare
// status payloads gain an event type, and alternate order-id fields collapse
// into OrderID.
func (p *Payload) Normalize() error {
	if p.Event == "" && p.Status == "" {
		return ErrMissingEvent
	}

	if p.Event == "" {
		event, ok := statusEventMap[strings.ToUpper(p.Status)]
		if !ok {
			event = EventStatusUpdated
		}
		p.Event = event
	}

	if p.OrderID == "" && p.MuditaOrderID != "" {
		p.OrderID = p.MuditaOrderID
	}
	if p.OrderID == "" {
		return ErrMissingOrderRef
	}

	return nil
}

// Event is one parsed webhook event. Exactly one concrete variant exists per
// canonical event type.
type Event interface {
	// Type returns the canonical event type string.
	Type() string
}

type StatusUpdated struct {
	Status            string
	Location          *Location
	EstimatedDelivery *time.Time
	Note              string
}

type Delivered struct {
	ActualDelivery *time.Time
	Note           string
}

type Failed struct {
	Note string
}

type Cancelled struct {
	Note string
}

type Assigned struct {
	TrackingRef string
	CourierName string
}

type LocationUpdated struct {
	Location *Location
}

func (StatusUpdated) Type() string   { return EventStatusUpdated }
func (Delivered) Type() string       { return EventDelivered }
func (Failed) Type() string          { return EventFailed }
func (Cancelled) Type() string       { return EventCancelled }
func (Assigned) Type() string        { return EventAssigned }
func (LocationUpdated) Type() string { return EventLocationUpdated }

// ParseEvent converts a normalized payload into its typed variant. Unknown
// event types fail here, before any order lookup happens.
func ParseEvent(p *Payload) (Event, error) {
	note := p.Note
	if note == "" {
		note = p.Reason
	}

	switch p.Event {
	case EventStatusUpdated:
		return StatusUpdated{
			Status:            p.Status,
			Location:          p.Location,
			EstimatedDelivery: parseEventTime(p.EstimatedDelivery),
			Note:              note,
		}, nil

	case EventDelivered:
		return Delivered{
			ActualDelivery: parseEventTime(p.ActualDelivery),
			Note:           note,
		}, nil

	case EventFailed:
		return Failed{Note: note}, nil

	case EventCancelled:
		return Cancelled{Note: note}, nil

	case EventAssigned:
		return Assigned{
			TrackingRef: metadataString(p.Metadata, "courierTrackingId"),
			CourierName: metadataString(p.Metadata, "courierName"),
		}, nil

	case EventLocationUpdated:
		return LocationUpdated{Location: p.Location}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, p.Event)
	}
}

// parseEventTime accepts RFC 3339 strings or epoch milliseconds; platforms
// send both. Unparseable values are dropped rather than failing the delivery.
func parseEventTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// DecodePayload parses the raw body into a Payload. Unknown fields are
// tolerated; platforms attach extras freely.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return &p, nil
}
