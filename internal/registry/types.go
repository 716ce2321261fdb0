// Package registry manages webhook source configuration per courier platform.
package registry

import (
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Source is the durable configuration for one external courier platform.
type Source struct {
	Platform    string // unique lowercase identifier
	DisplayName string
	CallbackURL string

	// SecretCiphertext holds the platform's shared secret, always encrypted.
	// Plaintext exists only transiently during signature verification.
	SecretCiphertext string

	Enabled bool

	// SubscribedEvents lists allowed event types. Entries may be exact names
	// or glob patterns ("order.*"). Empty means all events are accepted.
	SubscribedEvents []string

	RateLimit   RateLimit
	RetryPolicy RetryPolicy

	LastSelfTestAt     *time.Time
	LastSelfTestStatus string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RateLimit holds per-source inbound thresholds.
type RateLimit struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// RetryPolicy documents the platform's own retry cadence. It is operator
// reference metadata; no outbound retry loop runs here.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
}

// SubscribesTo reports whether the source accepts the given event type.
func (s *Source) SubscribesTo(eventType string) bool {
	if len(s.SubscribedEvents) == 0 {
		return true
	}

	for _, pattern := range s.SubscribedEvents {
		if pattern == eventType {
			return true
		}
		if strings.ContainsAny(pattern, "*?[") {
			if g, err := glob.Compile(pattern, '.'); err == nil && g.Match(eventType) {
				return true
			}
		}
	}

	return false
}

// View is the operator-facing representation. The secret never leaves the
// registry; callers only learn whether one is configured.
type View struct {
	Platform           string      `json:"platform"`
	DisplayName        string      `json:"display_name"`
	CallbackURL        string      `json:"callback_url"`
	HasSecret          bool        `json:"has_secret"`
	Enabled            bool        `json:"enabled"`
	SubscribedEvents   []string    `json:"subscribed_events"`
	RateLimit          RateLimit   `json:"rate_limit"`
	RetryPolicy        RetryPolicy `json:"retry_policy"`
	LastSelfTestAt     *time.Time  `json:"last_self_test_at,omitempty"`
	LastSelfTestStatus string      `json:"last_self_test_status,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// View converts a Source for external consumption.
func (s *Source) View() View {
	return View{
		Platform:           s.Platform,
		DisplayName:        s.DisplayName,
		CallbackURL:        s.CallbackURL,
		HasSecret:          s.SecretCiphertext != "",
		Enabled:            s.Enabled,
		SubscribedEvents:   s.SubscribedEvents,
		RateLimit:          s.RateLimit,
		RetryPolicy:        s.RetryPolicy,
		LastSelfTestAt:     s.LastSelfTestAt,
		LastSelfTestStatus: s.LastSelfTestStatus,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
