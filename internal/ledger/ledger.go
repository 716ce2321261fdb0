// Package ledger is the audit trail for inbound webhook deliveries. Every
// attempt leaves a record; the (delivery id, platform) pair is the
// idempotency key.
package ledger

import "time"

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one inbound delivery attempt.
type Record struct {
	ID         string `json:"id"`
	DeliveryID string `json:"deliveryId"`
	Platform   string `json:"platform"`

	EventType   string `json:"eventType"`
	OrderRef    string `json:"orderRef,omitempty"`
	TrackingRef string `json:"trackingRef,omitempty"`

	// Payload is the raw validated body, retained for audit. Signature is
	// stored as received; the shared secret never appears here.
	Payload   string `json:"-"`
	Signature string `json:"-"`

	Status       string `json:"status"`
	HTTPStatus   int    `json:"httpStatus,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Response     string `json:"response,omitempty"`

	// RetryCount counts reprocessing attempts for the same idempotency key.
	RetryCount int `json:"retryCount"`

	DurationMs  int64      `json:"durationMs,omitempty"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Outcome finalizes a pending record.
type Outcome struct {
	Status       string
	HTTPStatus   int
	ErrorCode    string
	ErrorMessage string
	Response     string
	DurationMs   int64
}

// ListFilter narrows admin ledger queries.
type ListFilter struct {
	Platform string
	Status   string
	Limit    int
	Offset   int
}
