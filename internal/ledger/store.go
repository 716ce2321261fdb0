package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tulumbak/courierhook/internal/database"
)

var (
	ErrNotFound = errors.New("delivery record not found")

	// ErrDuplicate means a prior delivery with the same idempotency key
	// already succeeded; the attempt must not be reprocessed.
	ErrDuplicate = errors.New("duplicate delivery")
)

// Store persists delivery records in SQLite.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `
	id, delivery_id, platform, event_type, order_ref, tracking_ref,
	payload, signature, status, http_status, error_code, error_message,
	response, retry_count, duration_ms, received_at, processed_at
`

// IsDuplicate reports whether a delivery with this idempotency key has
// already succeeded. This is the cheap early check; RecordPending closes the
// remaining race at the unique index.
func (s *Store) IsDuplicate(ctx context.Context, deliveryID, platform string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM deliveries WHERE delivery_id = ? AND platform = ?`,
		deliveryID, platform,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for duplicate delivery: %w", err)
	}
	return status == StatusSuccess, nil
}

// RecordPending writes the pending record for a verified delivery. On an
// idempotency-key conflict the existing row decides the outcome: a prior
// success means ErrDuplicate, anything else is a retry and reuses the row
// with its retry counter bumped.
func (s *Store) RecordPending(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	rec.Status = StatusPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, delivery_id, platform, event_type, order_ref, tracking_ref,
			payload, signature, status, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.DeliveryID, rec.Platform, rec.EventType, rec.OrderRef,
		rec.TrackingRef, rec.Payload, rec.Signature, StatusPending,
		rec.ReceivedAt.Format(time.RFC3339),
	)
	if err == nil {
		return nil
	}
	if !database.IsUniqueError(database.ClassifyError(err)) {
		return fmt.Errorf("recording pending delivery: %w", err)
	}

	return s.retryExisting(ctx, rec)
}

// retryExisting reuses the existing row for the idempotency key. Succeeded
// rows are immutable; pending or failed rows flip back to pending with the
// retry counter incremented.
func (s *Store) retryExisting(ctx context.Context, rec *Record) error {
	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		var (
			id         string
			status     string
			retryCount int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, status, retry_count FROM deliveries WHERE delivery_id = ? AND platform = ?`,
			rec.DeliveryID, rec.Platform,
		).Scan(&id, &status, &retryCount)
		if err != nil {
			return fmt.Errorf("loading existing delivery record: %w", err)
		}

		if status == StatusSuccess {
			return ErrDuplicate
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE deliveries
			SET event_type = ?, order_ref = ?, tracking_ref = ?, payload = ?,
			    signature = ?, status = ?, http_status = NULL, error_code = NULL,
			    error_message = NULL, response = NULL, duration_ms = NULL,
			    retry_count = ?, received_at = ?, processed_at = NULL
			WHERE id = ?
		`,
			rec.EventType, rec.OrderRef, rec.TrackingRef, rec.Payload,
			rec.Signature, StatusPending, retryCount+1,
			rec.ReceivedAt.Format(time.RFC3339), id,
		)
		if err != nil {
			return fmt.Errorf("reusing delivery record: %w", err)
		}

		rec.ID = id
		rec.RetryCount = retryCount + 1
		return nil
	})
}

// RecordOutcome finalizes a pending record with its processing result.
func (s *Store) RecordOutcome(ctx context.Context, id string, outcome Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, http_status = ?, error_code = ?, error_message = ?,
		    response = ?, duration_ms = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`,
		outcome.Status, nullableInt(outcome.HTTPStatus),
		nullableString(outcome.ErrorCode), nullableString(outcome.ErrorMessage),
		nullableString(outcome.Response), outcome.DurationMs,
		database.Now(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("recording delivery outcome: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking outcome result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RecordRejected writes a terminal failed record for a delivery that never
// reached processing, e.g. a signature failure. Rejections for an
// idempotency key that already succeeded are dropped rather than overwriting
// the audit trail.
func (s *Store) RecordRejected(ctx context.Context, rec *Record, outcome Outcome) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, delivery_id, platform, event_type, order_ref, tracking_ref,
			payload, signature, status, http_status, error_code, error_message,
			received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.DeliveryID, rec.Platform, rec.EventType, rec.OrderRef,
		rec.TrackingRef, rec.Payload, rec.Signature, StatusFailed,
		nullableInt(outcome.HTTPStatus), nullableString(outcome.ErrorCode),
		nullableString(outcome.ErrorMessage),
		rec.ReceivedAt.Format(time.RFC3339), database.Now(),
	)
	if err == nil {
		return nil
	}
	if !database.IsUniqueError(database.ClassifyError(err)) {
		return fmt.Errorf("recording rejected delivery: %w", err)
	}

	// Existing row for this key. Mark it failed unless it already succeeded.
	_, err = s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, http_status = ?, error_code = ?, error_message = ?,
		    retry_count = retry_count + 1, processed_at = ?
		WHERE delivery_id = ? AND platform = ? AND status != ?
	`,
		StatusFailed, nullableInt(outcome.HTTPStatus),
		nullableString(outcome.ErrorCode), nullableString(outcome.ErrorMessage),
		database.Now(), rec.DeliveryID, rec.Platform, StatusSuccess,
	)
	if err != nil {
		return fmt.Errorf("updating rejected delivery: %w", err)
	}
	return nil
}

// Get loads a single record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM deliveries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading delivery record: %w", err)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by platform and
// status.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM deliveries WHERE 1=1`
	args := []any{}

	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, filter.Platform)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	query += ` ORDER BY received_at DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing delivery records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records received before the cutoff, except pending ones,
// which may still be mid-flight.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE received_at < ? AND status != ?`,
		cutoff.UTC().Format(time.RFC3339), StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning delivery records: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec          Record
		httpStatus   sql.NullInt64
		errorCode    sql.NullString
		errorMessage sql.NullString
		response     sql.NullString
		durationMs   sql.NullInt64
		receivedAt   string
		processedAt  sql.NullString
	)

	err := row.Scan(
		&rec.ID, &rec.DeliveryID, &rec.Platform, &rec.EventType,
		&rec.OrderRef, &rec.TrackingRef, &rec.Payload, &rec.Signature,
		&rec.Status, &httpStatus, &errorCode, &errorMessage, &response,
		&rec.RetryCount, &durationMs, &receivedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.HTTPStatus = int(httpStatus.Int64)
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.Response = response.String
	rec.DurationMs = durationMs.Int64

	if rec.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt); err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}
	if processedAt.Valid && processedAt.String != "" {
		t, err := time.Parse(time.RFC3339, processedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing processed_at: %w", err)
		}
		rec.ProcessedAt = &t
	}

	return &rec, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
