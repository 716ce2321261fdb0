package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tulumbak/courierhook/internal/database"
)

var ErrNotFound = errors.New("order not found")

// Store is the order persistence interface the pipeline consumes. Both
// operations are atomic at the single-document level.
type Store interface {
	// FindByAnyID resolves an order by internal id, external order id or
	// public tracking id, in that priority order.
	FindByAnyID(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, order *Order) error
}

// SQLStore implements Store over SQLite.
type SQLStore struct {
	db *database.DB
}

// NewStore creates an order store.
func NewStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

const orderColumns = `
	id, order_id, tracking_id, status, courier_status, tracking_ref,
	estimated_delivery, actual_delivery, payment_collected, status_history,
	created_at, updated_at
`

// FindByAnyID tries each candidate key in fixed priority order and returns
// the first match. The priority is explicit because it affects correctness
// when ids collide across fields.
func (s *SQLStore) FindByAnyID(ctx context.Context, id string) (*Order, error) {
	queries := []string{
		`SELECT ` + orderColumns + ` FROM orders WHERE id = ?`,
		`SELECT ` + orderColumns + ` FROM orders WHERE order_id = ?`,
		`SELECT ` + orderColumns + ` FROM orders WHERE tracking_id = ?`,
	}

	for _, query := range queries {
		order, err := s.scanOrder(s.db.QueryRowContext(ctx, query, id))
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("finding order: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save writes the full order row in a single statement.
func (s *SQLStore) Save(ctx context.Context, order *Order) error {
	order.UpdatedAt = time.Now().UTC()

	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, courier_status = ?, tracking_ref = ?,
		    estimated_delivery = ?, actual_delivery = ?, payment_collected = ?,
		    status_history = ?, updated_at = ?
		WHERE id = ?
	`,
		order.Status,
		order.CourierStatus,
		order.TrackingRef,
		nullableTime(order.EstimatedDelivery),
		nullableTime(order.ActualDelivery),
		boolToInt(order.PaymentCollected),
		string(historyJSON),
		order.UpdatedAt.Format(time.RFC3339),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("saving order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking save result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, order.ID)
	}

	return nil
}

// Create inserts a new order row. Used by fixtures and the order intake
// surface, not by the webhook pipeline itself.
func (s *SQLStore) Create(ctx context.Context, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.CourierStatus == "" {
		order.CourierStatus = CourierPreparing
	}
	if order.Status == "" {
		order.Status = "pending"
	}

	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		order.ID,
		nullableString(order.OrderID),
		nullableString(order.TrackingID),
		order.Status,
		order.CourierStatus,
		order.TrackingRef,
		nullableTime(order.EstimatedDelivery),
		nullableTime(order.ActualDelivery),
		boolToInt(order.PaymentCollected),
		string(historyJSON),
		order.CreatedAt.Format(time.RFC3339),
		order.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", database.ClassifyError(err))
	}

	return nil
}

func (s *SQLStore) scanOrder(row *sql.Row) (*Order, error) {
	var (
		order             Order
		orderID           sql.NullString
		trackingID        sql.NullString
		estimatedDelivery sql.NullString
		actualDelivery    sql.NullString
		paymentCollected  int
		historyJSON       string
		createdAt         string
		updatedAt         string
	)

	err := row.Scan(
		&order.ID,
		&orderID,
		&trackingID,
		&order.Status,
		&order.CourierStatus,
		&order.TrackingRef,
		&estimatedDelivery,
		&actualDelivery,
		&paymentCollected,
		&historyJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.OrderID = orderID.String
	order.TrackingID = trackingID.String
	order.PaymentCollected = paymentCollected == 1

	if err := json.Unmarshal([]byte(historyJSON), &order.StatusHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling status history: %w", err)
	}

	if order.EstimatedDelivery, err = parseNullableTime(estimatedDelivery); err != nil {
		return nil, fmt.Errorf("parsing estimated_delivery: %w", err)
	}
	if order.ActualDelivery, err = parseNullableTime(actualDelivery); err != nil {
		return nil, fmt.Errorf("parsing actual_delivery: %w", err)
	}
	if order.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if order.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &order, nil
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
