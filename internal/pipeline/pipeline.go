package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/ledger"
	"github.com/tulumbak/courierhook/internal/metrics"
	"github.com/tulumbak/courierhook/internal/orders"
	"github.com/tulumbak/courierhook/internal/processor"
	"github.com/tulumbak/courierhook/internal/ratelimit"
	"github.com/tulumbak/courierhook/internal/registry"
)

// DefaultPlatform is assumed when a delivery declares no platform.
const DefaultPlatform = "muditakurye"

// Request is one inbound delivery, already read off the wire.
type Request struct {
	// Origin is the network origin (client IP) of the delivery.
	Origin string

	Platform   string
	DeliveryID string
	Timestamp  string
	Signature  string
	Body       []byte
}

// Response is the success envelope for a processed delivery.
type Response struct {
	DeliveryID  string            `json:"deliveryId"`
	ProcessedAt time.Time         `json:"processedAt"`
	Result      *processor.Result `json:"result,omitempty"`
}

// Pipeline runs each delivery through rate limiting, validation, duplicate
// detection, signature verification, ledger bookkeeping and event
// processing. Each call is an independent unit of work; the only shared
// state is the ledger's uniqueness constraint and the target order row.
type Pipeline struct {
	sources   *registry.Service
	ledger    *ledger.Store
	processor *processor.Processor

	perOrigin *ratelimit.Limiter
	failures  *ratelimit.FailureTracker

	exemptLoopback bool
}

// New wires a pipeline from its parts.
func New(
	sources *registry.Service,
	ledgerStore *ledger.Store,
	proc *processor.Processor,
	perOrigin *ratelimit.Limiter,
	failures *ratelimit.FailureTracker,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		sources:        sources,
		ledger:         ledgerStore,
		processor:      proc,
		perOrigin:      perOrigin,
		failures:       failures,
		exemptLoopback: cfg.RateLimit.ExemptLoopback && !cfg.IsProduction(),
	}
}

// Handle processes one delivery end to end. All failures come back as
// *Error; everything except processing errors is detected before any order
// mutation.
func (p *Pipeline) Handle(ctx context.Context, req *Request) (*Response, *Error) {
	start := time.Now()

	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = DefaultPlatform
	}
	deliveryID := req.DeliveryID
	if deliveryID == "" {
		// Still auditable, just not idempotent across redeliveries.
		deliveryID = randomDeliveryID()
	}

	if pe := p.checkRateLimits(req.Origin, platform); pe != nil {
		metrics.RecordRateLimited(platform)
		return nil, pe
	}

	if req.Signature == "" || req.Timestamp == "" {
		return nil, validationError("MISSING_HEADERS",
			"Signature and timestamp headers are required", nil)
	}

	payload, err := processor.DecodePayload(req.Body)
	if err != nil {
		return nil, validationError("INVALID_PAYLOAD", "Body is not valid JSON", err)
	}
	if err := payload.Normalize(); err != nil {
		switch {
		case errors.Is(err, processor.ErrMissingEvent):
			return nil, validationError("INVALID_PAYLOAD",
				"Payload needs an event or status field", err)
		case errors.Is(err, processor.ErrMissingOrderRef):
			return nil, validationError("INVALID_PAYLOAD",
				"Payload needs an order reference", err)
		default:
			return nil, validationError("INVALID_PAYLOAD", "Invalid payload", err)
		}
	}

	duplicate, err := p.ledger.IsDuplicate(ctx, deliveryID, platform)
	if err != nil {
		return nil, processingError("INTERNAL_ERROR", "Internal server error", err)
	}
	if duplicate {
		log.Info().
			Str("delivery_id", deliveryID).
			Str("platform", platform).
			Msg("Duplicate webhook delivery")
		return nil, conflictError("DUPLICATE_WEBHOOK", "Delivery already processed")
	}

	source, err := p.sources.GetEnabled(ctx, platform)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, notFoundError("CONFIG_NOT_FOUND",
				"Webhook source not found or disabled")
		}
		return nil, processingError("INTERNAL_ERROR", "Internal server error", err)
	}

	if !source.SubscribesTo(payload.Event) {
		return nil, validationError("EVENT_NOT_SUBSCRIBED",
			"Platform is not subscribed to this event type", nil)
	}

	secret, err := p.sources.DecryptSecret(source)
	if err != nil {
		log.Error().Err(err).Str("platform", platform).Msg("Failed to decrypt shared secret")
		return nil, processingError("DECRYPTION_ERROR", "Internal server error", err)
	}

	if err := CheckTimestamp(req.Timestamp, time.Now()); err != nil {
		return nil, AsError(err)
	}

	if !VerifySignature(secret, req.Timestamp, req.Body, req.Signature) {
		p.failures.RecordFailure(req.Origin)
		p.recordRejection(ctx, deliveryID, platform, payload, req)
		metrics.RecordSignatureFailure(platform)
		return nil, authError("INVALID_SIGNATURE", "Invalid signature")
	}

	rec := &ledger.Record{
		DeliveryID:  deliveryID,
		Platform:    platform,
		EventType:   payload.Event,
		OrderRef:    payload.OrderID,
		TrackingRef: metadataTrackingRef(payload),
		Payload:     string(req.Body),
		Signature:   req.Signature,
	}
	if err := p.ledger.RecordPending(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			return nil, conflictError("DUPLICATE_WEBHOOK", "Delivery already processed")
		}
		return nil, processingError("INTERNAL_ERROR", "Internal server error", err)
	}

	response, pe := p.process(ctx, rec, payload)

	status := ledger.StatusSuccess
	if pe != nil {
		status = ledger.StatusFailed
	}
	metrics.RecordDelivery(platform, payload.Event, status)
	metrics.ObserveProcessing(platform, time.Since(start))

	p.finalize(ctx, rec, response, pe, time.Since(start))
	if pe != nil {
		return nil, pe
	}

	log.Info().
		Str("delivery_id", deliveryID).
		Str("platform", platform).
		Str("event", payload.Event).
		Str("order_ref", payload.OrderID).
		Dur("duration", time.Since(start)).
		Msg("Webhook delivery processed")

	return response, nil
}

// process parses the typed event and applies it. The pending ledger record
// already exists, so any failure here pairs with a failed outcome.
func (p *Pipeline) process(ctx context.Context, rec *ledger.Record, payload *processor.Payload) (*Response, *Error) {
	event, err := processor.ParseEvent(payload)
	if err != nil {
		return nil, validationError("UNKNOWN_EVENT", "Unknown event type", err)
	}

	result, err := p.processor.Process(ctx, payload.OrderID, event)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, notFoundError("ORDER_NOT_FOUND", "Order not found")
		}
		log.Error().
			Err(err).
			Str("platform", rec.Platform).
			Str("event", payload.Event).
			Str("order_ref", payload.OrderID).
			Msg("Webhook event processing failed")
		return nil, processingError("PROCESSING_ERROR", "Failed to process event", err)
	}

	return &Response{
		DeliveryID:  rec.DeliveryID,
		ProcessedAt: time.Now().UTC(),
		Result:      result,
	}, nil
}

func (p *Pipeline) finalize(ctx context.Context, rec *ledger.Record, response *Response, pe *Error, took time.Duration) {
	outcome := ledger.Outcome{
		Status:     ledger.StatusSuccess,
		HTTPStatus: 200,
		DurationMs: took.Milliseconds(),
	}
	if pe != nil {
		outcome.Status = ledger.StatusFailed
		outcome.HTTPStatus = pe.HTTPStatus()
		outcome.ErrorCode = pe.Code
		outcome.ErrorMessage = pe.Message
	} else if response != nil && response.Result != nil {
		if summary, err := json.Marshal(response.Result); err == nil {
			outcome.Response = string(summary)
		}
	}

	if err := p.ledger.RecordOutcome(ctx, rec.ID, outcome); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("Failed to record delivery outcome")
	}
}

// recordRejection leaves the forensic trail for a signature failure without
// ever storing the secret or comparison intermediates.
func (p *Pipeline) recordRejection(ctx context.Context, deliveryID, platform string, payload *processor.Payload, req *Request) {
	rec := &ledger.Record{
		DeliveryID: deliveryID,
		Platform:   platform,
		EventType:  payload.Event,
		OrderRef:   payload.OrderID,
		Payload:    string(req.Body),
		Signature:  req.Signature,
	}
	err := p.ledger.RecordRejected(ctx, rec, ledger.Outcome{
		HTTPStatus:   401,
		ErrorCode:    "INVALID_SIGNATURE",
		ErrorMessage: "Invalid signature",
	})
	if err != nil {
		log.Error().Err(err).Str("delivery_id", deliveryID).Msg("Failed to record rejected delivery")
	}
}

func (p *Pipeline) checkRateLimits(origin, platform string) *Error {
	if p.exemptLoopback && isLoopback(origin) {
		return nil
	}

	if p.failures.IsBlocked(origin) {
		return rateLimitError("SECURITY_BLOCK",
			"Too many failed attempts", p.failures.RetryAfter(origin))
	}

	key := origin + "_" + platform
	if !p.perOrigin.Allow(key) {
		return rateLimitError("RATE_LIMITED",
			"Too many requests", p.perOrigin.RetryAfter(key))
	}

	return nil
}

func isLoopback(origin string) bool {
	ip := net.ParseIP(origin)
	return ip != nil && ip.IsLoopback()
}

func metadataTrackingRef(p *processor.Payload) string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata["courierTrackingId"].(string); ok {
		return v
	}
	return ""
}

func randomDeliveryID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "delivery-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return hex.EncodeToString(buf)
}
