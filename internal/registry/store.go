package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tulumbak/courierhook/internal/database"
)

var (
	ErrNotFound = errors.New("webhook source not found")
	ErrConflict = errors.New("webhook source already exists")
)

// Store handles database operations for webhook sources.
type Store struct {
	db *database.DB
}

// NewStore creates a new source store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const sourceColumns = `
	platform, display_name, callback_url, secret_ciphertext, enabled,
	subscribed_events, rate_per_minute, rate_per_hour, max_retries,
	base_delay_ms, last_self_test_at, last_self_test_status,
	created_at, updated_at
`

// Create inserts a new webhook source. A duplicate platform id fails with
// ErrConflict.
func (s *Store) Create(ctx context.Context, src *Source) error {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	eventsJSON, err := json.Marshal(src.SubscribedEvents)
	if err != nil {
		return fmt.Errorf("marshaling subscribed events: %w", err)
	}

	query := `
		INSERT INTO webhook_sources (` + sourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		src.Platform,
		src.DisplayName,
		src.CallbackURL,
		src.SecretCiphertext,
		boolToInt(src.Enabled),
		string(eventsJSON),
		src.RateLimit.PerMinute,
		src.RateLimit.PerHour,
		src.RetryPolicy.MaxRetries,
		src.RetryPolicy.BaseDelay.Milliseconds(),
		nullableTime(src.LastSelfTestAt),
		nullableString(src.LastSelfTestStatus),
		src.CreatedAt.Format(time.RFC3339),
		src.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if database.IsUniqueError(database.ClassifyError(err)) {
			return fmt.Errorf("%w: %s", ErrConflict, src.Platform)
		}
		return fmt.Errorf("inserting webhook source: %w", err)
	}

	return nil
}

// Update rewrites an existing webhook source.
func (s *Store) Update(ctx context.Context, src *Source) error {
	src.UpdatedAt = time.Now().UTC()

	eventsJSON, err := json.Marshal(src.SubscribedEvents)
	if err != nil {
		return fmt.Errorf("marshaling subscribed events: %w", err)
	}

	query := `
		UPDATE webhook_sources
		SET display_name = ?, callback_url = ?, secret_ciphertext = ?,
		    enabled = ?, subscribed_events = ?, rate_per_minute = ?,
		    rate_per_hour = ?, max_retries = ?, base_delay_ms = ?,
		    last_self_test_at = ?, last_self_test_status = ?, updated_at = ?
		WHERE platform = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		src.DisplayName,
		src.CallbackURL,
		src.SecretCiphertext,
		boolToInt(src.Enabled),
		string(eventsJSON),
		src.RateLimit.PerMinute,
		src.RateLimit.PerHour,
		src.RetryPolicy.MaxRetries,
		src.RetryPolicy.BaseDelay.Milliseconds(),
		nullableTime(src.LastSelfTestAt),
		nullableString(src.LastSelfTestStatus),
		src.UpdatedAt.Format(time.RFC3339),
		src.Platform,
	)
	if err != nil {
		return fmt.Errorf("updating webhook source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, src.Platform)
	}

	return nil
}

// Delete removes a webhook source.
func (s *Store) Delete(ctx context.Context, platform string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_sources WHERE platform = ?`, platform)
	if err != nil {
		return fmt.Errorf("deleting webhook source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, platform)
	}

	return nil
}

// Get retrieves a webhook source by platform id.
func (s *Store) Get(ctx context.Context, platform string) (*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM webhook_sources WHERE platform = ?`

	src, err := s.scanSource(s.db.QueryRowContext(ctx, query, platform))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, platform)
		}
		return nil, fmt.Errorf("getting webhook source: %w", err)
	}

	return src, nil
}

// GetEnabled retrieves a webhook source only if it is enabled. Disabled and
// absent platforms are indistinguishable to callers.
func (s *Store) GetEnabled(ctx context.Context, platform string) (*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM webhook_sources WHERE platform = ? AND enabled = 1`

	src, err := s.scanSource(s.db.QueryRowContext(ctx, query, platform))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, platform)
		}
		return nil, fmt.Errorf("getting enabled webhook source: %w", err)
	}

	return src, nil
}

// List retrieves all webhook sources ordered by platform id.
func (s *Store) List(ctx context.Context) ([]*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM webhook_sources ORDER BY platform ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying webhook sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := s.scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook source row: %w", err)
		}
		sources = append(sources, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhook source rows: %w", err)
	}

	return sources, nil
}

// RecordSelfTest stamps the last self-test result on a source.
func (s *Store) RecordSelfTest(ctx context.Context, platform, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_sources
		SET last_self_test_at = ?, last_self_test_status = ?, updated_at = ?
		WHERE platform = ?
	`, at.UTC().Format(time.RFC3339), status, database.Now(), platform)
	if err != nil {
		return fmt.Errorf("recording self test: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking self test result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, platform)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSource(row rowScanner) (*Source, error) {
	var (
		src            Source
		enabled        int
		eventsJSON     string
		baseDelayMs    int64
		selfTestAt     sql.NullString
		selfTestStatus sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := row.Scan(
		&src.Platform,
		&src.DisplayName,
		&src.CallbackURL,
		&src.SecretCiphertext,
		&enabled,
		&eventsJSON,
		&src.RateLimit.PerMinute,
		&src.RateLimit.PerHour,
		&src.RetryPolicy.MaxRetries,
		&baseDelayMs,
		&selfTestAt,
		&selfTestStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.Enabled = enabled == 1
	src.RetryPolicy.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond

	if err := json.Unmarshal([]byte(eventsJSON), &src.SubscribedEvents); err != nil {
		return nil, fmt.Errorf("unmarshaling subscribed events: %w", err)
	}

	if selfTestAt.Valid && selfTestAt.String != "" {
		t, err := time.Parse(time.RFC3339, selfTestAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_self_test_at: %w", err)
		}
		src.LastSelfTestAt = &t
	}
	src.LastSelfTestStatus = selfTestStatus.String

	if src.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if src.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &src, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
