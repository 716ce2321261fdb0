package orders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "orders.db"),
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		ForeignKeys:  true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func TestStore_FindByAnyID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &Order{
		ID:         "internal-1",
		OrderID:    "ORD-2024-001",
		TrackingID: "TRK-ABC123",
		Status:     "confirmed",
	}
	require.NoError(t, store.Create(ctx, order))

	tests := []struct {
		name string
		key  string
	}{
		{"by internal id", "internal-1"},
		{"by order id", "ORD-2024-001"},
		{"by tracking id", "TRK-ABC123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindByAnyID(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, "internal-1", got.ID)
		})
	}
}

func TestStore_FindByAnyID_PriorityOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// One order's internal id equals another order's external order id. A
	// lookup with that value must resolve the internal id first.
	require.NoError(t, store.Create(ctx, &Order{
		ID:      "shared-key",
		OrderID: "ORD-1",
	}))
	require.NoError(t, store.Create(ctx, &Order{
		ID:      "other",
		OrderID: "shared-key",
	}))

	got, err := store.FindByAnyID(ctx, "shared-key")
	require.NoError(t, err)
	assert.Equal(t, "shared-key", got.ID)
}

func TestStore_FindByAnyID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByAnyID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Save(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &Order{
		ID:      "save-1",
		OrderID: "ORD-SAVE",
		Status:  "confirmed",
	}
	require.NoError(t, store.Create(ctx, order))

	delivered := time.Now().UTC().Truncate(time.Second)
	order.Status = "delivered"
	order.CourierStatus = CourierDelivered
	order.ActualDelivery = &delivered
	order.PaymentCollected = true
	order.AppendHistory(StatusEvent{
		Status:      CourierDelivered,
		SourceActor: ActorCourier,
		Note:        "left at reception",
	})

	require.NoError(t, store.Save(ctx, order))

	got, err := store.FindByAnyID(ctx, "save-1")
	require.NoError(t, err)

	assert.Equal(t, "delivered", got.Status)
	assert.Equal(t, CourierDelivered, got.CourierStatus)
	assert.True(t, got.PaymentCollected)
	require.NotNil(t, got.ActualDelivery)
	assert.True(t, got.ActualDelivery.Equal(delivered))
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, "left at reception", got.StatusHistory[0].Note)
	assert.Equal(t, ActorCourier, got.StatusHistory[0].SourceActor)
}

func TestStore_Save_HistoryAccumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &Order{ID: "hist-1"}
	require.NoError(t, store.Create(ctx, order))

	for _, status := range []string{CourierInTransit, CourierDelivered} {
		got, err := store.FindByAnyID(ctx, "hist-1")
		require.NoError(t, err)

		got.CourierStatus = status
		got.AppendHistory(StatusEvent{Status: status, SourceActor: ActorCourier})
		require.NoError(t, store.Save(ctx, got))
	}

	got, err := store.FindByAnyID(ctx, "hist-1")
	require.NoError(t, err)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, CourierInTransit, got.StatusHistory[0].Status)
	assert.Equal(t, CourierDelivered, got.StatusHistory[1].Status)
}

func TestStore_Save_MissingOrder(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(context.Background(), &Order{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}
