package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/tulumbak/courierhook/internal/vault"
)

var (
	ErrSecretTooShort  = errors.New("shared secret is too short")
	ErrMissingPlatform = errors.New("platform identifier is required")
)

// Service enforces the registry's contracts on top of plain storage: secrets
// are length-checked and encrypted on every write where they changed, and
// plaintext never leaves this package except to the signature verifier.
type Service struct {
	store           *Store
	vault           *vault.Vault
	minSecretLength int
}

// NewService creates a registry service.
func NewService(store *Store, v *vault.Vault, minSecretLength int) *Service {
	return &Service{
		store:           store,
		vault:           v,
		minSecretLength: minSecretLength,
	}
}

// Input carries the operator-supplied fields for create/update. Secret is
// plaintext here and only here; an empty Secret on update keeps the stored one.
type Input struct {
	Platform         string      `json:"platform" yaml:"platform"`
	DisplayName      string      `json:"display_name" yaml:"display_name"`
	CallbackURL      string      `json:"callback_url" yaml:"callback_url"`
	Secret           string      `json:"secret" yaml:"secret"`
	Enabled          *bool       `json:"enabled" yaml:"enabled"`
	SubscribedEvents []string    `json:"subscribed_events" yaml:"subscribed_events"`
	RateLimit        *RateLimit  `json:"rate_limit" yaml:"rate_limit"`
	RetryPolicy      *retryInput `json:"retry_policy" yaml:"retry_policy"`
}

type retryInput struct {
	MaxRetries  int `json:"max_retries" yaml:"max_retries"`
	BaseDelayMs int `json:"base_delay_ms" yaml:"base_delay_ms"`
}

// Create registers a new platform source. The secret is mandatory and must
// meet the minimum length; short secrets are a security smell, not a style
// preference.
func (s *Service) Create(ctx context.Context, in Input) (*Source, error) {
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if platform == "" {
		return nil, ErrMissingPlatform
	}
	if len(in.Secret) < s.minSecretLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrSecretTooShort, s.minSecretLength)
	}

	ciphertext, err := s.vault.Encrypt(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypting secret: %w", err)
	}

	src := &Source{
		Platform:         platform,
		DisplayName:      in.DisplayName,
		CallbackURL:      in.CallbackURL,
		SecretCiphertext: ciphertext,
		Enabled:          true,
		SubscribedEvents: in.SubscribedEvents,
		RateLimit:        RateLimit{PerMinute: 100, PerHour: 1000},
		RetryPolicy:      RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
	}
	if in.Enabled != nil {
		src.Enabled = *in.Enabled
	}
	if in.RateLimit != nil {
		src.RateLimit = *in.RateLimit
	}
	if in.RetryPolicy != nil {
		src.RetryPolicy = RetryPolicy{
			MaxRetries: in.RetryPolicy.MaxRetries,
			BaseDelay:  time.Duration(in.RetryPolicy.BaseDelayMs) * time.Millisecond,
		}
	}

	if err := s.store.Create(ctx, src); err != nil {
		return nil, err
	}

	log.Info().Str("platform", platform).Msg("Webhook source created")
	return src, nil
}

// Update applies operator changes to an existing source. A changed secret is
// re-encrypted; an empty secret leaves the stored ciphertext alone.
func (s *Service) Update(ctx context.Context, platform string, in Input) (*Source, error) {
	src, err := s.store.Get(ctx, strings.ToLower(platform))
	if err != nil {
		return nil, err
	}

	if in.Secret != "" {
		if len(in.Secret) < s.minSecretLength {
			return nil, fmt.Errorf("%w: need at least %d characters", ErrSecretTooShort, s.minSecretLength)
		}
		ciphertext, err := s.vault.Encrypt(in.Secret)
		if err != nil {
			return nil, fmt.Errorf("encrypting secret: %w", err)
		}
		src.SecretCiphertext = ciphertext
	}

	if in.DisplayName != "" {
		src.DisplayName = in.DisplayName
	}
	if in.CallbackURL != "" {
		src.CallbackURL = in.CallbackURL
	}
	if in.Enabled != nil {
		src.Enabled = *in.Enabled
	}
	if in.SubscribedEvents != nil {
		src.SubscribedEvents = in.SubscribedEvents
	}
	if in.RateLimit != nil {
		src.RateLimit = *in.RateLimit
	}
	if in.RetryPolicy != nil {
		src.RetryPolicy = RetryPolicy{
			MaxRetries: in.RetryPolicy.MaxRetries,
			BaseDelay:  time.Duration(in.RetryPolicy.BaseDelayMs) * time.Millisecond,
		}
	}

	if err := s.store.Update(ctx, src); err != nil {
		return nil, err
	}

	log.Info().Str("platform", src.Platform).Msg("Webhook source updated")
	return src, nil
}

// Get returns a source by platform id.
func (s *Service) Get(ctx context.Context, platform string) (*Source, error) {
	return s.store.Get(ctx, strings.ToLower(platform))
}

// GetEnabled returns a source only if it is enabled.
func (s *Service) GetEnabled(ctx context.Context, platform string) (*Source, error) {
	return s.store.GetEnabled(ctx, strings.ToLower(platform))
}

// List returns all sources.
func (s *Service) List(ctx context.Context) ([]*Source, error) {
	return s.store.List(ctx)
}

// Delete removes a source.
func (s *Service) Delete(ctx context.Context, platform string) error {
	return s.store.Delete(ctx, strings.ToLower(platform))
}

// DecryptSecret recovers the plaintext shared secret for signature
// verification. Callers must not retain or log the result.
func (s *Service) DecryptSecret(src *Source) (string, error) {
	return s.vault.Decrypt(src.SecretCiphertext)
}

// SelfTest verifies that the stored secret decrypts and stamps the result.
// It deliberately avoids any external round-trip; it exists so operators can
// smoke-test configuration wiring.
func (s *Service) SelfTest(ctx context.Context, platform string) (string, error) {
	src, err := s.store.Get(ctx, strings.ToLower(platform))
	if err != nil {
		return "", err
	}

	status := "success"
	if _, err := s.vault.Decrypt(src.SecretCiphertext); err != nil {
		status = "failed"
	}

	if err := s.store.RecordSelfTest(ctx, src.Platform, status, time.Now()); err != nil {
		return "", err
	}

	log.Info().Str("platform", src.Platform).Str("status", status).Msg("Webhook source self-test")
	return status, nil
}

// ImportFile seeds sources from a YAML file at startup. Existing platforms
// are left untouched; only missing ones are created.
func (s *Service) ImportFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading sources file: %w", err)
	}

	var seed struct {
		Sources []Input `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing sources file: %w", err)
	}

	for _, in := range seed.Sources {
		platform := strings.ToLower(strings.TrimSpace(in.Platform))
		if _, err := s.store.Get(ctx, platform); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if _, err := s.Create(ctx, in); err != nil {
			return fmt.Errorf("seeding source %q: %w", platform, err)
		}
	}

	return nil
}
