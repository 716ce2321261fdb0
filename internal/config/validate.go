package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateVault(&cfg.Vault)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if cfg.Mode != "" && cfg.Mode != "development" && cfg.Mode != "production" {
		errs = append(errs, ValidationError{
			Field:   "mode",
			Message: "must be development or production",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "is required",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

// validateVault checks everything except the master key itself; the key is
// checked when the vault is constructed so that commands not touching
// secrets (keygen, migrate) still run without one.
func validateVault(cfg *VaultConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MinSecretLength < 16 {
		errs = append(errs, ValidationError{
			Field:   "vault.min_secret_length",
			Message: "must be at least 16",
		})
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig) ValidationErrors {
	var errs ValidationErrors

	rules := []struct {
		field string
		rule  RateLimitRule
	}{
		{"rate_limit.per_origin", cfg.PerOrigin},
		{"rate_limit.security", cfg.Security},
		{"rate_limit.admin", cfg.Admin},
	}

	for _, r := range rules {
		if r.rule.Max < 1 {
			errs = append(errs, ValidationError{
				Field:   r.field + ".max",
				Message: "must be at least 1",
			})
		}
		if r.rule.Window <= 0 {
			errs = append(errs, ValidationError{
				Field:   r.field + ".window",
				Message: "must be positive",
			})
		}
	}

	return errs
}

func validateLedger(cfg *LedgerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Retention <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ledger.retention",
			Message: "must be positive",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be console or json",
		})
	}

	return errs
}
