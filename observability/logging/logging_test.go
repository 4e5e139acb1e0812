package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("distributord", "test", Options{Level: "warn", Output: &buf})
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("claim rejected", "distributor", "ab12", "reason", "invalid proof")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "claim rejected", entry["message"])
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "distributord", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "ab12", entry["distributor"])
	require.Contains(t, entry, "timestamp")
}

func TestSetupRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("distributord", "", Options{File: path, MaxSizeMB: 1, Output: &buf})
	logger.Info("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"started"`)
	require.Equal(t, buf.String(), string(data))
}

func TestSetupRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("distributor-cli", "", Options{Output: &buf})
	defer closer.Close()

	sig := strings.Repeat("ab", 65)
	logger.Warn("signature rejected", "passphrase", "hunter2", "signature", sig, "claimant", "drop1xyz")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, RedactedValue, entry["passphrase"])
	require.Equal(t, "abababab...abababab", entry["signature"])
	require.Equal(t, "drop1xyz", entry["claimant"])
}

func TestRedact(t *testing.T) {
	require.Equal(t, RedactedValue, Redact(slog.String("Keystore", "/keys/admin.json")).Value.String())
	require.Equal(t, "", Redact(slog.String("passphrase", "")).Value.String())
	require.Equal(t, "n-1", Redact(slog.String("nonce", "n-1")).Value.String())
	require.Equal(t, int64(7), Redact(slog.Int("nonce", 7)).Value.Int64())
	require.Equal(t, "ab12", Redact(slog.String("distributor", "ab12")).Value.String())
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 4))
	require.Equal(t, "abcd...wxyz", Truncate("abcdefghijklmnopqrstuvwxyz", 4))
}
