package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	IndexDriverSQLite   = "sqlite"
	IndexDriverPostgres = "postgres"
)

// Config is the distributord node configuration.
type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	Environment   string          `toml:"Environment"`
	Log           LogConfig       `toml:"Log"`
	Index         IndexConfig     `toml:"Index"`
	RateLimit     RateLimitConfig `toml:"RateLimit"`
	Auth          AuthConfig      `toml:"Auth"`
	Telemetry     TelemetryConfig `toml:"Telemetry"`
}

// LogConfig controls structured logging. File is optional; when set, output
// is written to a rotating log file in addition to stdout.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// IndexConfig selects the claim index database.
type IndexConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	// TrustProxyHeaders keys clients on X-Real-IP / X-Forwarded-For. Enable
	// only behind a proxy that overwrites them.
	TrustProxyHeaders bool `toml:"TrustProxyHeaders"`
}

// AuthConfig bounds how old a signed request may be.
type AuthConfig struct {
	MaxClockSkewSeconds int64 `toml:"MaxClockSkewSeconds"`
}

// TelemetryConfig configures OTLP export. An empty Endpoint disables export.
type TelemetryConfig struct {
	ServiceName string            `toml:"ServiceName"`
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Metrics     bool              `toml:"Metrics"`
	Traces      bool              `toml:"Traces"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress: ":8090",
		DataDir:       "./distributor-data",
		Environment:   "dev",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Index: IndexConfig{
			Enabled: true,
			Driver:  IndexDriverSQLite,
			DSN:     "claimindex.db",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Auth: AuthConfig{MaxClockSkewSeconds: 300},
		Telemetry: TelemetryConfig{
			ServiceName: "distributord",
			Insecure:    true,
			Metrics:     true,
			Traces:      true,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.normalise(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalise(path string) {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = "dev"
	}
	c.Index.Driver = strings.ToLower(strings.TrimSpace(c.Index.Driver))
	// Relative data paths are resolved against the config file directory so
	// the node behaves the same regardless of the working directory.
	base := filepath.Dir(path)
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(base, c.DataDir)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(base, c.Log.File)
	}
	if c.Index.Driver == IndexDriverSQLite && c.Index.DSN != "" && !filepath.IsAbs(c.Index.DSN) && !strings.HasPrefix(c.Index.DSN, "file:") {
		c.Index.DSN = filepath.Join(base, c.Index.DSN)
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise(path)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
