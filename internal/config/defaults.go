package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1 * 1024 * 1024 // 1MB, webhook payloads are small

	// Database defaults.
	DefaultDBPath       = "courierhook.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Vault defaults.
	DefaultMinSecretLength = 32

	// Rate limit defaults.
	DefaultPerOriginMax    = 100
	DefaultPerOriginWindow = time.Minute
	DefaultSecurityMax     = 10
	DefaultSecurityWindow  = 15 * time.Minute
	DefaultAdminMax        = 20
	DefaultAdminWindow     = time.Minute

	// Ledger defaults.
	DefaultLedgerRetention = 30 * 24 * time.Hour
	DefaultPruneSchedule   = "0 3 * * *" // daily at 03:00

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Mode: "development",
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			CacheSize:    DefaultCacheSize,
			BusyTimeout:  DefaultBusyTimeout,
			ForeignKeys:  true,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Vault: VaultConfig{
			MinSecretLength: DefaultMinSecretLength,
		},
		Admin: AdminConfig{
			JWTIssuer: "courierhook",
		},
		RateLimit: RateLimitConfig{
			PerOrigin: RateLimitRule{
				Max:    DefaultPerOriginMax,
				Window: DefaultPerOriginWindow,
			},
			Security: RateLimitRule{
				Max:    DefaultSecurityMax,
				Window: DefaultSecurityWindow,
			},
			Admin: RateLimitRule{
				Max:    DefaultAdminMax,
				Window: DefaultAdminWindow,
			},
			ExemptLoopback: true,
		},
		Ledger: LedgerConfig{
			Retention:     DefaultLedgerRetention,
			PruneSchedule: DefaultPruneSchedule,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
