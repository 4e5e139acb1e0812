package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log: invalid level %q", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if c.Index.Enabled {
		switch c.Index.Driver {
		case IndexDriverSQLite, IndexDriverPostgres:
		default:
			return fmt.Errorf("index: unsupported driver %q", c.Index.Driver)
		}
		if strings.TrimSpace(c.Index.DSN) == "" {
			return fmt.Errorf("index: dsn must be set")
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("ratelimit: requests_per_second < 0")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit: burst must be positive when limiting is enabled")
	}
	if c.Auth.MaxClockSkewSeconds <= 0 {
		return fmt.Errorf("auth: max_clock_skew_seconds must be positive")
	}
	return nil
}
