package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tulumbak/courierhook/internal/orders"
)

// ErrTerminalStatus is returned when a status-changing event arrives for an
// order whose courier status is already final.
var ErrTerminalStatus = errors.New("order is in a terminal courier status")

// Result summarizes a successfully applied event for the delivery ledger.
type Result struct {
	OrderID string         `json:"orderId"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Processor applies typed courier events to orders. Each call is one
// read-modify-write on a single order document.
type Processor struct {
	orders orders.Store
}

func New(store orders.Store) *Processor {
	return &Processor{orders: store}
}

// Process resolves the target order and dispatches to the handler for the
// event's type. Handler panics are converted into errors here so a bad
// payload can never take down the service.
func (p *Processor) Process(ctx context.Context, orderRef string, event Event) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("order_ref", orderRef).
				Str("event", event.Type()).
				Msg("Event handler panicked")
			result = nil
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()

	order, err := p.orders.FindByAnyID(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	switch e := event.(type) {
	case StatusUpdated:
		result, err = p.handleStatusUpdated(order, e)
	case Delivered:
		result, err = p.handleDelivered(order, e)
	case Failed:
		result, err = p.handleFailed(order, e)
	case Cancelled:
		result, err = p.handleCancelled(order, e)
	case Assigned:
		result, err = p.handleAssigned(order, e)
	case LocationUpdated:
		result, err = p.handleLocationUpdated(order, e)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
	if err != nil {
		return nil, err
	}

	if err := p.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID).
		Str("event", event.Type()).
		Str("courier_status", order.CourierStatus).
		Msg("Courier event applied")

	return result, nil
}

// canonicalStatusMap translates platform status vocabulary onto the courier
// status axis.
var canonicalStatusMap = map[string]string{
	"VALIDATED":   orders.CourierPreparing,
	"PREPARED":    orders.CourierPreparing,
	"ASSIGNED":    orders.CourierPreparing,
	"ON_DELIVERY": orders.CourierInTransit,
	"IN_TRANSIT":  orders.CourierInTransit,
	"DELIVERED":   orders.CourierDelivered,
	"CANCELED":    orders.CourierCanceled,
	"CANCELLED":   orders.CourierCanceled,
	"FAILED":      orders.CourierFailed,
}

// CanonicalCourierStatus maps a platform status value to the canonical
// courier status, falling back to the lowercased input for statuses the map
// does not know.
func CanonicalCourierStatus(status string) string {
	if canonical, ok := canonicalStatusMap[normalizeStatusKey(status)]; ok {
		return canonical
	}
	return normalizeStatusValue(status)
}

func normalizeStatusKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeStatusValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (p *Processor) handleStatusUpdated(order *orders.Order, e StatusUpdated) (*Result, error) {
	if orders.IsTerminalCourierStatus(order.CourierStatus) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, order.CourierStatus)
	}

	if e.Status != "" {
		order.CourierStatus = CanonicalCourierStatus(e.Status)
	}
	if e.EstimatedDelivery != nil {
		order.EstimatedDelivery = e.EstimatedDelivery
	}

	order.AppendHistory(orders.StatusEvent{
		Status:      order.CourierStatus,
		Location:    e.Location.Display(),
		Note:        e.Note,
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"status": order.CourierStatus},
	}, nil
}

func (p *Processor) handleDelivered(order *orders.Order, e Delivered) (*Result, error) {
	if orders.IsTerminalCourierStatus(order.CourierStatus) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, order.CourierStatus)
	}

	order.CourierStatus = orders.CourierDelivered
	// Cash on delivery: a confirmed delivery confirms payment receipt.
	order.PaymentCollected = true
	if e.ActualDelivery != nil {
		order.ActualDelivery = e.ActualDelivery
	}

	note := e.Note
	if note == "" {
		note = "Order delivered"
	}
	order.AppendHistory(orders.StatusEvent{
		Status:      orders.CourierDelivered,
		Note:        note,
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"delivered": true},
	}, nil
}

func (p *Processor) handleFailed(order *orders.Order, e Failed) (*Result, error) {
	if orders.IsTerminalCourierStatus(order.CourierStatus) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, order.CourierStatus)
	}

	order.CourierStatus = orders.CourierFailed

	note := e.Note
	if note == "" {
		note = "Delivery failed"
	}
	order.AppendHistory(orders.StatusEvent{
		Status:      orders.CourierFailed,
		Note:        note,
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"failed": true},
	}, nil
}

func (p *Processor) handleCancelled(order *orders.Order, e Cancelled) (*Result, error) {
	if orders.IsTerminalCourierStatus(order.CourierStatus) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, order.CourierStatus)
	}

	order.CourierStatus = orders.CourierCanceled

	note := e.Note
	if note == "" {
		note = "Order cancelled"
	}
	order.AppendHistory(orders.StatusEvent{
		Status:      orders.CourierCanceled,
		Note:        note,
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"cancelled": true},
	}, nil
}

func (p *Processor) handleAssigned(order *orders.Order, e Assigned) (*Result, error) {
	if e.TrackingRef != "" {
		order.TrackingRef = e.TrackingRef
	}

	note := "Courier assigned"
	if e.CourierName != "" {
		note = "Courier assigned: " + e.CourierName
	}

	status := order.CourierStatus
	if status == "" {
		status = orders.CourierPreparing
	}
	order.AppendHistory(orders.StatusEvent{
		Status:      status,
		Note:        note,
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"assigned": true},
	}, nil
}

func (p *Processor) handleLocationUpdated(order *orders.Order, e LocationUpdated) (*Result, error) {
	status := order.CourierStatus
	if status == "" {
		status = orders.CourierInTransit
	}

	order.AppendHistory(orders.StatusEvent{
		Status:      status,
		Location:    e.Location.Display(),
		Note:        "Courier location updated",
		SourceActor: orders.ActorCourier,
	})

	return &Result{
		OrderID: order.ID,
		Detail:  map[string]any{"locationUpdated": true},
	}, nil
}
