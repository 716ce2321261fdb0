package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database/migrations"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "nested", "test.db"),
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		ForeignKeys:  true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))

	applied, err := migrations.GetApplied(context.Background(), db.DB)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	for _, table := range []string{"webhook_sources", "deliveries", "orders"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestOpenIdempotentMigrations(t *testing.T) {
	cfg := testConfig(t)

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening the same file must not re-apply migrations.
	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
}

func TestCloseTwice(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestTransactionRollback(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	boom := errors.New("boom")

	err = db.Transaction(ctx, func(tx *Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO orders (id, order_id, status, payment_collected, created_at, updated_at)
			 VALUES ('o1', 'ord-1', 'preparing', 0, ?, ?)`, Now(), Now(),
		)
		require.NoError(t, execErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestClassifyError(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	insert := `INSERT INTO webhook_sources (
		platform, display_name, callback_url, secret_ciphertext, enabled,
		subscribed_events, rate_per_minute, rate_per_hour, max_retries,
		base_delay_ms, created_at, updated_at
	) VALUES ('acme', '', '', 'ct', 1, '[]', 100, 1000, 3, 1000, ?, ?)`

	_, err = db.Exec(insert, Now(), Now())
	require.NoError(t, err)

	_, err = db.Exec(insert, Now(), Now())
	require.Error(t, err)

	classified := ClassifyError(err)
	assert.True(t, IsUniqueError(classified))
	assert.ErrorIs(t, classified, ErrUniqueViolation)

	var ce *ConstraintError
	require.ErrorAs(t, classified, &ce)
	assert.Equal(t, "unique", ce.Type)
	assert.Equal(t, "webhook_sources", ce.Table)
	assert.Equal(t, "platform", ce.Column)
}

func TestClassifyErrorPassthrough(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))

	plain := fmt.Errorf("disk I/O error")
	assert.Equal(t, plain, ClassifyError(plain))
	assert.False(t, IsUniqueError(plain))
}
