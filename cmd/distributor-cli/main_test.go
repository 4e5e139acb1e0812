package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"merkledrop/cmd/internal/passphrase"
	"merkledrop/crypto"
	"merkledrop/native/distributor"
)

type cliHarness struct {
	t       *testing.T
	dir     string
	dataDir string
	now     int64
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	h := &cliHarness{t: t, dir: t.TempDir(), now: 1_000}
	h.dataDir = filepath.Join(h.dir, "data")

	originalNow, originalSource := cliNow, passphraseSource
	cliNow = func() time.Time { return time.Unix(h.now, 0) }
	passphraseSource = passphrase.Static("correct horse battery staple")
	t.Cleanup(func() {
		cliNow = originalNow
		passphraseSource = originalSource
	})
	return h
}

func (h *cliHarness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *cliHarness) mustRun(args ...string) map[string]any {
	h.t.Helper()
	code, stdout, stderr := h.run(args...)
	require.Equal(h.t, 0, code, stderr)
	var out map[string]any
	require.NoError(h.t, json.Unmarshal([]byte(stdout), &out), stdout)
	return out
}

func (h *cliHarness) key(name string) (string, string) {
	h.t.Helper()
	path := filepath.Join(h.dir, name+".json")
	out := h.mustRun("generate-key", "--keystore", path)
	return path, out["address"].(string)
}

func (h *cliHarness) write(name, contents string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCLILifecycle(t *testing.T) {
	h := newCLIHarness(t)
	adminKey, adminAddr := h.key("admin")
	aliceKey, aliceAddr := h.key("alice")
	bobKey, bobAddr := h.key("bob")
	mint := crypto.AddressFromRaw([20]byte{0x4d}).String()

	csvPath := h.write("recipients.csv", fmt.Sprintf(
		"pubkey,amount_unlocked,amount_locked,category\n%s,100,50,team\n%s,200,0,community\n", aliceAddr, bobAddr))
	treePath := filepath.Join(h.dir, "tree.json")
	summary := h.mustRun("create-merkle-tree", "--csv-path", csvPath, "--merkle-tree-path", treePath)
	require.Equal(t, float64(350), summary["max_total_claim"])
	require.Equal(t, float64(2), summary["max_num_nodes"])

	verified := h.mustRun("verify-tree", "--merkle-tree-path", treePath)
	require.Equal(t, summary["merkle_root"], verified["merkle_root"])
	node := h.mustRun("verify-tree", "--merkle-tree-path", treePath, "--claimant", aliceAddr)
	require.Equal(t, "team", node["category"])

	manifestPath := h.write("manifest.yaml", fmt.Sprintf(
		"mint: %s\nstart_ts: 1000\nend_ts: 2000\nclawback_start_ts: %d\n", mint, 2_000+distributor.SecondsPerDay))
	created := h.mustRun("new-distributor", "--data-dir", h.dataDir,
		"--merkle-tree-path", treePath, "--manifest", manifestPath, "--keystore", adminKey)
	id := created["id"].(string)
	require.Equal(t, adminAddr, created["admin"])
	require.Equal(t, adminAddr, created["clawback_receiver"])

	code, stdout, stderr := h.run("new-distributor", "--data-dir", h.dataDir,
		"--merkle-tree-path", treePath, "--manifest", manifestPath, "--keystore", adminKey)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stderr, "parameters match")
	require.Contains(t, stdout, id)

	shifted := h.write("shifted.yaml", fmt.Sprintf(
		"mint: %s\nstart_ts: 1000\nend_ts: 2500\nclawback_start_ts: %d\n", mint, 2_500+distributor.SecondsPerDay))
	code, _, stderr = h.run("new-distributor", "--data-dir", h.dataDir,
		"--merkle-tree-path", treePath, "--manifest", shifted, "--keystore", adminKey)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "different parameters")
	require.Contains(t, stderr, "end_ts")

	code, _, stderr = h.run("new-distributor", "--data-dir", h.dataDir,
		"--merkle-tree-path", treePath, "--manifest", manifestPath, "--keystore", aliceKey)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "clawback_receiver")

	h.mustRun("mint", "--data-dir", h.dataDir, "--mint", mint, "--to", adminAddr, "--amount", "350")
	funded := h.mustRun("fund", "--data-dir", h.dataDir, "--distributor", id, "--keystore", adminKey, "--amount", "350")
	require.Equal(t, float64(350), funded["vault_balance"])

	first := h.mustRun("claim", "--data-dir", h.dataDir, "--distributor", id,
		"--keystore", aliceKey, "--merkle-tree-path", treePath)
	require.Equal(t, float64(100), first["unlocked_amount"])
	require.Equal(t, float64(0), first["locked_amount_withdrawn"])

	h.now = 1_500
	second := h.mustRun("claim", "--data-dir", h.dataDir, "--distributor", id, "--keystore", aliceKey)
	require.Equal(t, float64(25), second["locked_amount_withdrawn"])

	code, _, stderr = h.run("claim", "--data-dir", h.dataDir, "--distributor", id, "--keystore", aliceKey)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "nothing to claim")

	code, _, stderr = h.run("clawback", "--data-dir", h.dataDir, "--distributor", id)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "clawback window not open")

	code, _, stderr = h.run("set-admin", "--data-dir", h.dataDir, "--distributor", id,
		"--keystore", bobKey, "--new-admin", bobAddr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unauthorized")

	updated := h.mustRun("set-clawback-receiver", "--data-dir", h.dataDir, "--distributor", id,
		"--keystore", adminKey, "--receiver", bobAddr)
	require.Equal(t, bobAddr, updated["clawback_receiver"])

	h.now = 2_000 + distributor.SecondsPerDay
	swept := h.mustRun("clawback", "--data-dir", h.dataDir, "--distributor", id)
	require.Equal(t, true, swept["clawed_back"])
	require.Equal(t, float64(0), swept["vault_balance"])

	code, _, stderr = h.run("claim", "--data-dir", h.dataDir, "--distributor", id,
		"--keystore", bobKey, "--merkle-tree-path", treePath)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "closed by clawback")

	claim := h.mustRun("show", "--data-dir", h.dataDir, "--distributor", id, "--claimant", aliceAddr)
	require.Equal(t, "partially_claimed", claim["state"])
	require.Equal(t, float64(0), claim["withdrawable"])

	code, stdout, _ = h.run("show", "--data-dir", h.dataDir)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, id)
}

func TestCLIArgValidation(t *testing.T) {
	h := newCLIHarness(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"usage", nil, "Usage: distributor-cli"},
		{"unknown", []string{"bogus"}, "Unknown command: bogus"},
		{"tree missing csv", []string{"create-merkle-tree"}, "--csv-path is required"},
		{"tree bad hasher", []string{"create-merkle-tree", "--csv-path", "x", "--merkle-tree-path", "y", "--hasher", "md5"}, "unknown hasher"},
		{"fund bad id", []string{"fund", "--distributor", "0x1234"}, "invalid distributor id"},
		{"fund zero amount", []string{"fund", "--distributor", strings.Repeat("ab", 32), "--amount", "0"}, "positive integer"},
		{"mint missing to", []string{"mint", "--mint", crypto.AddressFromRaw([20]byte{1}).String()}, "--to is required"},
		{"claim missing keystore", []string{"claim", "--distributor", strings.Repeat("ab", 32)}, "--keystore is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := h.run(tc.args...)
			require.Equal(t, 1, code)
			require.Contains(t, stderr, tc.want)
		})
	}
}
