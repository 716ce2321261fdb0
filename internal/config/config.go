// Package config provides configuration management for the courier webhook
// ingestion service.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// Mode selects the deployment mode ("production" or "development").
	// Loopback rate-limit exemptions apply only outside production.
	Mode string `mapstructure:"mode"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// Address returns the host:port string for the HTTP listener.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// VaultConfig holds secret-encryption settings.
type VaultConfig struct {
	// Master key for secret encryption (required, min 32 bytes).
	// Supply out-of-band, e.g. COURIERHOOK_VAULT_MASTER_KEY.
	MasterKey string `mapstructure:"master_key"`

	// Minimum length for platform shared secrets
	MinSecretLength int `mapstructure:"min_secret_length"`
}

// AdminConfig holds settings for the configuration-management endpoints.
type AdminConfig struct {
	// JWT signing secret for operator bearer tokens
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWT issuer claim
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// RateLimitRule defines a rate limit rule.
type RateLimitRule struct {
	// Maximum requests per window
	Max int `mapstructure:"max"`

	// Time window
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig holds the three independent limiter layers.
type RateLimitConfig struct {
	// Per (origin, platform) inbound ceiling
	PerOrigin RateLimitRule `mapstructure:"per_origin"`

	// Failed-signature attempts per origin
	Security RateLimitRule `mapstructure:"security"`

	// Per-operator ceiling on admin endpoints
	Admin RateLimitRule `mapstructure:"admin"`

	// Exempt loopback origins (honored only outside production mode)
	ExemptLoopback bool `mapstructure:"exempt_loopback"`
}

// LedgerConfig holds delivery ledger settings.
type LedgerConfig struct {
	// Keep delivery records at least this long
	Retention time.Duration `mapstructure:"retention"`

	// Cron schedule for the retention pruning job
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// BootstrapConfig holds optional startup seeding.
type BootstrapConfig struct {
	// YAML file with webhook source configs to import at startup
	SourcesFile string `mapstructure:"sources_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Output format: console or json
	Format string `mapstructure:"format"`
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Mode == "production"
}
