package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database"
	"github.com/tulumbak/courierhook/internal/vault"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "registry.db"),
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		ForeignKeys:  true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := vault.New(testMasterKey)
	require.NoError(t, err)

	return NewService(NewStore(db), v, 16)
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	src, err := svc.Create(ctx, Input{
		Platform:         "  MuditaKurye ",
		DisplayName:      "Mudita Kurye",
		CallbackURL:      "https://panel.muditakurye.example/hooks",
		Secret:           "a-sufficiently-long-shared-secret",
		SubscribedEvents: []string{"order.*", "courier.location.updated"},
	})
	require.NoError(t, err)

	assert.Equal(t, "muditakurye", src.Platform)
	assert.True(t, src.Enabled)
	assert.NotEmpty(t, src.SecretCiphertext)
	assert.NotContains(t, src.SecretCiphertext, "a-sufficiently-long-shared-secret")

	got, err := svc.Get(ctx, "MUDITAKURYE")
	require.NoError(t, err)
	assert.Equal(t, src.Platform, got.Platform)
	assert.Equal(t, []string{"order.*", "courier.location.updated"}, got.SubscribedEvents)
	assert.Equal(t, 100, got.RateLimit.PerMinute)
	assert.Equal(t, 3, got.RetryPolicy.MaxRetries)

	secret, err := svc.DecryptSecret(got)
	require.NoError(t, err)
	assert.Equal(t, "a-sufficiently-long-shared-secret", secret)
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Secret: "a-sufficiently-long-shared-secret"})
	assert.ErrorIs(t, err, ErrMissingPlatform)

	_, err = svc.Create(ctx, Input{Platform: "acme", Secret: "short"})
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestService_CreateConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := Input{Platform: "acme", Secret: "a-sufficiently-long-shared-secret"}
	_, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestService_UpdateKeepsSecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{
		Platform: "acme",
		Secret:   "a-sufficiently-long-shared-secret",
	})
	require.NoError(t, err)

	disabled := false
	updated, err := svc.Update(ctx, "acme", Input{
		DisplayName: "ACME Couriers",
		Enabled:     &disabled,
	})
	require.NoError(t, err)

	assert.Equal(t, "ACME Couriers", updated.DisplayName)
	assert.False(t, updated.Enabled)
	assert.Equal(t, created.SecretCiphertext, updated.SecretCiphertext)

	secret, err := svc.DecryptSecret(updated)
	require.NoError(t, err)
	assert.Equal(t, "a-sufficiently-long-shared-secret", secret)
}

func TestService_UpdateRotatesSecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{
		Platform: "acme",
		Secret:   "a-sufficiently-long-shared-secret",
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "acme", Input{Secret: "another-long-enough-shared-secret"})
	require.NoError(t, err)
	assert.NotEqual(t, created.SecretCiphertext, updated.SecretCiphertext)

	secret, err := svc.DecryptSecret(updated)
	require.NoError(t, err)
	assert.Equal(t, "another-long-enough-shared-secret", secret)

	_, err = svc.Update(ctx, "acme", Input{Secret: "short"})
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestService_GetEnabled(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	disabled := false
	_, err := svc.Create(ctx, Input{
		Platform: "acme",
		Secret:   "a-sufficiently-long-shared-secret",
		Enabled:  &disabled,
	})
	require.NoError(t, err)

	_, err = svc.GetEnabled(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)

	enabled := true
	_, err = svc.Update(ctx, "acme", Input{Enabled: &enabled})
	require.NoError(t, err)

	src, err := svc.GetEnabled(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, src.Enabled)
}

func TestService_DeleteAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, platform := range []string{"zeta", "acme"} {
		_, err := svc.Create(ctx, Input{Platform: platform, Secret: "a-sufficiently-long-shared-secret"})
		require.NoError(t, err)
	}

	sources, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "acme", sources[0].Platform)
	assert.Equal(t, "zeta", sources[1].Platform)

	require.NoError(t, svc.Delete(ctx, "zeta"))
	assert.ErrorIs(t, svc.Delete(ctx, "zeta"), ErrNotFound)

	sources, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestService_SelfTest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Platform: "acme", Secret: "a-sufficiently-long-shared-secret"})
	require.NoError(t, err)

	status, err := svc.SelfTest(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "success", status)

	src, err := svc.Get(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, src.LastSelfTestAt)
	assert.Equal(t, "success", src.LastSelfTestStatus)

	_, err = svc.SelfTest(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSource_SubscribesTo(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		event    string
		want     bool
	}{
		{"empty accepts all", nil, "order.delivered", true},
		{"exact match", []string{"order.delivered"}, "order.delivered", true},
		{"exact mismatch", []string{"order.delivered"}, "order.failed", false},
		{"glob match", []string{"order.*"}, "order.delivered", true},
		{"glob separator bound", []string{"order.*"}, "order.status.updated", false},
		{"glob double star", []string{"order.**"}, "order.status.updated", true},
		{"mixed list", []string{"courier.location.updated", "order.*"}, "order.assigned", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &Source{SubscribedEvents: tt.patterns}
			assert.Equal(t, tt.want, src.SubscribesTo(tt.event))
		})
	}
}

func TestService_ImportFile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{
		Platform:    "acme",
		DisplayName: "Existing",
		Secret:      "a-sufficiently-long-shared-secret",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sources.yaml")
	seed := `sources:
  - platform: acme
    display_name: Should Not Overwrite
    secret: a-sufficiently-long-shared-secret
  - platform: muditakurye
    display_name: Mudita Kurye
    secret: another-long-enough-shared-secret
    subscribed_events:
      - order.*
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	require.NoError(t, svc.ImportFile(ctx, path))

	existing, err := svc.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Existing", existing.DisplayName)

	seeded, err := svc.Get(ctx, "muditakurye")
	require.NoError(t, err)
	assert.Equal(t, "Mudita Kurye", seeded.DisplayName)
	assert.Equal(t, []string{"order.*"}, seeded.SubscribedEvents)

	assert.Error(t, svc.ImportFile(ctx, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestSource_ViewHidesSecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	src, err := svc.Create(ctx, Input{Platform: "acme", Secret: "a-sufficiently-long-shared-secret"})
	require.NoError(t, err)

	view := src.View()
	assert.True(t, view.HasSecret)
	assert.Equal(t, "acme", view.Platform)
}
