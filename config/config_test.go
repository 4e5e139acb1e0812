package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"merkledrop/crypto"
	"merkledrop/native/distributor"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddress)
	require.Equal(t, filepath.Join(filepath.Dir(path), "distributor-data"), cfg.DataDir)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, again.ListenAddress)
	require.Equal(t, cfg.DataDir, again.DataDir)
	require.Equal(t, cfg.Index, again.Index)
	require.Equal(t, cfg.RateLimit, again.RateLimit)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/distributor"
Environment = "PROD"

[Log]
Level = "debug"
File = "logs/distributord.log"

[Index]
Enabled = true
Driver = "Postgres"
DSN = "host=localhost user=drop dbname=claims"

[RateLimit]
RequestsPerSecond = 2.5
Burst = 5

[Auth]
MaxClockSkewSeconds = 60

[Telemetry]
Endpoint = "otel:4318"
Traces = false
[Telemetry.Headers]
authorization = "Bearer token"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "/var/lib/distributor", cfg.DataDir)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, filepath.Join(filepath.Dir(path), "logs/distributord.log"), cfg.Log.File)
	require.Equal(t, 100, cfg.Log.MaxSizeMB)
	require.Equal(t, IndexDriverPostgres, cfg.Index.Driver)
	require.Equal(t, "host=localhost user=drop dbname=claims", cfg.Index.DSN)
	require.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, int64(60), cfg.Auth.MaxClockSkewSeconds)
	require.Equal(t, "otel:4318", cfg.Telemetry.Endpoint)
	require.False(t, cfg.Telemetry.Traces)
	require.True(t, cfg.Telemetry.Metrics)
	require.Equal(t, "Bearer token", cfg.Telemetry.Headers["authorization"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":1"
Bootnodes = ["x"]
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Bootnodes")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing listen", func(c *Config) { c.ListenAddress = "" }, "ListenAddress"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log: invalid level"},
		{"bad driver", func(c *Config) { c.Index.Driver = "mysql" }, "unsupported driver"},
		{"missing dsn", func(c *Config) { c.Index.DSN = "" }, "dsn"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "burst"},
		{"zero skew", func(c *Config) { c.Auth.MaxClockSkewSeconds = 0 }, "skew"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
	require.NoError(t, Default().Validate())

	disabled := Default()
	disabled.Index = IndexConfig{}
	disabled.RateLimit = RateLimitConfig{}
	require.NoError(t, disabled.Validate())
}

func TestManifestAbsoluteSchedule(t *testing.T) {
	mint := crypto.AddressFromRaw([20]byte{0x4d})
	m, err := ParseManifest([]byte(`
version: 2
mint: ` + mint.String() + `
start_ts: 1000
end_ts: 2000
clawback_start_ts: 88400
`))
	require.NoError(t, err)
	fallback := [20]byte{0xaa}
	params, err := m.CreateParams([32]byte{1}, "keccak256", 750, 4, fallback)
	require.NoError(t, err)
	require.Equal(t, uint64(2), params.Version)
	require.Equal(t, [20]byte{0x4d}, params.Mint)
	require.Equal(t, fallback, params.Admin)
	require.Equal(t, fallback, params.ClawbackReceiver)
	require.Equal(t, int64(1000), params.StartTs)
	require.Equal(t, int64(2000), params.EndTs)
	require.Equal(t, int64(88400), params.ClawbackStartTs)
	require.Equal(t, uint64(750), params.MaxTotalClaim)
}

func TestManifestRelativeSchedule(t *testing.T) {
	m, err := ParseManifest([]byte(`
mint: "0x4d00000000000000000000000000000000000000"
admin: "0xad00000000000000000000000000000000000000"
start_time: 2026-01-01T00:00:00Z
vesting_duration: 720h
`))
	require.NoError(t, err)
	start, end, clawback, err := m.Schedule()
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, base, start)
	require.Equal(t, base+720*3600, end)
	require.Equal(t, end+distributor.MinClawbackDelay, clawback)

	params, err := m.CreateParams([32]byte{}, "", 1, 1, [20]byte{0x01})
	require.NoError(t, err)
	require.Equal(t, [20]byte{0xad}, params.Admin)
	require.Equal(t, [20]byte{0x01}, params.ClawbackReceiver)
}

func TestManifestDurationsAsSeconds(t *testing.T) {
	m, err := ParseManifest([]byte(`
mint: "0x4d00000000000000000000000000000000000000"
start_time: 2026-01-01T00:00:00Z
vesting_duration: 3600
clawback_delay: 48h
`))
	require.NoError(t, err)
	require.Equal(t, time.Hour, m.VestingDuration.Duration)
	require.Equal(t, 48*time.Hour, m.ClawbackDelay.Duration)
}

func TestManifestErrors(t *testing.T) {
	m, err := ParseManifest([]byte(`mint: "0x4d00000000000000000000000000000000000000"`))
	require.NoError(t, err)
	_, _, _, err = m.Schedule()
	require.ErrorIs(t, err, errManifestSchedule)

	m, err = ParseManifest([]byte("start_ts: 1\nend_ts: 2\nclawback_start_ts: 86402\n"))
	require.NoError(t, err)
	_, err = m.CreateParams([32]byte{}, "", 0, 0, [20]byte{})
	require.ErrorContains(t, err, "mint is required")

	_, err = ParseManifest([]byte("vesting_duration: [1, 2]"))
	require.Error(t, err)
}
