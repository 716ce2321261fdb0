package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulumbak/courierhook/internal/orders"
)

// memStore is an in-memory order store keyed the same way the SQL store
// resolves ids.
type memStore struct {
	byID map[string]*orders.Order
}

func newMemStore(os ...*orders.Order) *memStore {
	s := &memStore{byID: make(map[string]*orders.Order)}
	for _, o := range os {
		s.byID[o.ID] = o
	}
	return s
}

func (s *memStore) FindByAnyID(_ context.Context, id string) (*orders.Order, error) {
	if o, ok := s.byID[id]; ok {
		return o, nil
	}
	for _, o := range s.byID {
		if o.OrderID == id {
			return o, nil
		}
	}
	for _, o := range s.byID {
		if o.TrackingID == id {
			return o, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (s *memStore) Save(_ context.Context, o *orders.Order) error {
	if _, ok := s.byID[o.ID]; !ok {
		return orders.ErrNotFound
	}
	s.byID[o.ID] = o
	return nil
}

func TestProcess_StatusUpdated(t *testing.T) {
	order := &orders.Order{ID: "o1", CourierStatus: orders.CourierPreparing}
	p := New(newMemStore(order))

	eta := time.Now().Add(30 * time.Minute).UTC()
	result, err := p.Process(context.Background(), "o1", StatusUpdated{
		Status:            "ON_DELIVERY",
		EstimatedDelivery: &eta,
		Note:              "left the branch",
	})
	require.NoError(t, err)

	assert.Equal(t, "o1", result.OrderID)
	assert.Equal(t, orders.CourierInTransit, order.CourierStatus)
	require.NotNil(t, order.EstimatedDelivery)
	assert.True(t, order.EstimatedDelivery.Equal(eta))
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, orders.CourierInTransit, order.StatusHistory[0].Status)
	assert.Equal(t, "left the branch", order.StatusHistory[0].Note)
	assert.Equal(t, orders.ActorCourier, order.StatusHistory[0].SourceActor)
}

func TestProcess_Delivered(t *testing.T) {
	order := &orders.Order{ID: "o2", CourierStatus: orders.CourierInTransit}
	p := New(newMemStore(order))

	delivered := time.Now().UTC()
	_, err := p.Process(context.Background(), "o2", Delivered{
		ActualDelivery: &delivered,
	})
	require.NoError(t, err)

	assert.Equal(t, orders.CourierDelivered, order.CourierStatus)
	assert.True(t, order.PaymentCollected, "cash on delivery collects payment")
	require.NotNil(t, order.ActualDelivery)
	assert.True(t, order.ActualDelivery.Equal(delivered))
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, "Order delivered", order.StatusHistory[0].Note)
}

func TestProcess_FailedAndCancelled(t *testing.T) {
	tests := []struct {
		name       string
		event      Event
		wantStatus string
		wantNote   string
	}{
		{"failed", Failed{Note: "address unreachable"}, orders.CourierFailed, "address unreachable"},
		{"failed default note", Failed{}, orders.CourierFailed, "Delivery failed"},
		{"cancelled", Cancelled{Note: "customer cancelled"}, orders.CourierCanceled, "customer cancelled"},
		{"cancelled default note", Cancelled{}, orders.CourierCanceled, "Order cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &orders.Order{ID: "o3", CourierStatus: orders.CourierInTransit}
			p := New(newMemStore(order))

			_, err := p.Process(context.Background(), "o3", tt.event)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, order.CourierStatus)
			require.Len(t, order.StatusHistory, 1)
			assert.Equal(t, tt.wantNote, order.StatusHistory[0].Note)
		})
	}
}

func TestProcess_Assigned(t *testing.T) {
	order := &orders.Order{ID: "o4", CourierStatus: orders.CourierPreparing}
	p := New(newMemStore(order))

	_, err := p.Process(context.Background(), "o4", Assigned{
		TrackingRef: "MK-TRACK-9",
		CourierName: "Ahmet",
	})
	require.NoError(t, err)

	assert.Equal(t, "MK-TRACK-9", order.TrackingRef)
	assert.Equal(t, orders.CourierPreparing, order.CourierStatus)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, "Courier assigned: Ahmet", order.StatusHistory[0].Note)
}

func TestProcess_LocationUpdated(t *testing.T) {
	order := &orders.Order{ID: "o5", CourierStatus: orders.CourierInTransit}
	p := New(newMemStore(order))

	_, err := p.Process(context.Background(), "o5", LocationUpdated{
		Location: &Location{Latitude: 41.0082, Longitude: 28.9784},
	})
	require.NoError(t, err)

	// Location updates never change the courier status.
	assert.Equal(t, orders.CourierInTransit, order.CourierStatus)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, "41.0082, 28.9784", order.StatusHistory[0].Location)
}

func TestProcess_TerminalOrderRejectsStatusChange(t *testing.T) {
	for _, terminal := range []string{orders.CourierDelivered, orders.CourierCanceled, orders.CourierFailed} {
		order := &orders.Order{ID: "o6", CourierStatus: terminal}
		p := New(newMemStore(order))

		_, err := p.Process(context.Background(), "o6", StatusUpdated{Status: "ON_DELIVERY"})
		assert.ErrorIs(t, err, ErrTerminalStatus, "status %s", terminal)
		assert.Empty(t, order.StatusHistory)
	}
}

func TestProcess_OrderNotFound(t *testing.T) {
	p := New(newMemStore())

	_, err := p.Process(context.Background(), "missing", Delivered{})
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestPayload_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		payload   Payload
		wantEvent string
		wantOrder string
		wantErr   error
	}{
		{
			name:      "explicit event",
			payload:   Payload{Event: EventDelivered, OrderID: "o1"},
			wantEvent: EventDelivered,
			wantOrder: "o1",
		},
		{
			name:      "status mapped to event",
			payload:   Payload{Status: "ON_DELIVERY", OrderID: "o1"},
			wantEvent: EventStatusUpdated,
			wantOrder: "o1",
		},
		{
			name:      "assigned status",
			payload:   Payload{Status: "ASSIGNED", OrderID: "o1"},
			wantEvent: EventAssigned,
			wantOrder: "o1",
		},
		{
			name:      "unknown status defaults to status update",
			payload:   Payload{Status: "SOMETHING_NEW", OrderID: "o1"},
			wantEvent: EventStatusUpdated,
			wantOrder: "o1",
		},
		{
			name:      "platform order id alias",
			payload:   Payload{Event: EventDelivered, MuditaOrderID: "mk-1"},
			wantEvent: EventDelivered,
			wantOrder: "mk-1",
		},
		{
			name:    "neither event nor status",
			payload: Payload{OrderID: "o1"},
			wantErr: ErrMissingEvent,
		},
		{
			name:    "no order reference",
			payload: Payload{Event: EventDelivered},
			wantErr: ErrMissingOrderRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Normalize()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, tt.payload.Event)
			assert.Equal(t, tt.wantOrder, tt.payload.OrderID)
		})
	}
}

func TestParseEvent_Unknown(t *testing.T) {
	_, err := ParseEvent(&Payload{Event: "order.exploded", OrderID: "o1"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestParseEvent_TimeFormats(t *testing.T) {
	rfc := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	evt, err := ParseEvent(&Payload{
		Event:          EventDelivered,
		OrderID:        "o1",
		ActualDelivery: rfc.Format(time.RFC3339),
	})
	require.NoError(t, err)
	delivered := evt.(Delivered)
	require.NotNil(t, delivered.ActualDelivery)
	assert.True(t, delivered.ActualDelivery.Equal(rfc))

	evt, err = ParseEvent(&Payload{
		Event:          EventDelivered,
		OrderID:        "o1",
		ActualDelivery: "1787313600000",
	})
	require.NoError(t, err)
	delivered = evt.(Delivered)
	require.NotNil(t, delivered.ActualDelivery)
	assert.Equal(t, int64(1787313600000), delivered.ActualDelivery.UnixMilli())
}

func TestCanonicalCourierStatus(t *testing.T) {
	assert.Equal(t, orders.CourierPreparing, CanonicalCourierStatus("VALIDATED"))
	assert.Equal(t, orders.CourierInTransit, CanonicalCourierStatus("ON_DELIVERY"))
	assert.Equal(t, orders.CourierDelivered, CanonicalCourierStatus("delivered"))
	assert.Equal(t, "custom_status", CanonicalCourierStatus("CUSTOM_STATUS"))
}
