package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"merkledrop/cmd/internal/passphrase"
	"merkledrop/core/events"
	"merkledrop/core/state"
	"merkledrop/crypto"
	"merkledrop/native/distributor"
	"merkledrop/storage"
)

var (
	cliNow           = time.Now
	passphraseSource = passphrase.NewSource(passphrase.EnvVar)
)

const defaultDataDir = "./distributor-data"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "generate-key":
		return runGenerateKeyCommand(rest, stdout, stderr)
	case "create-merkle-tree":
		return runCreateTreeCommand(rest, stdout, stderr)
	case "verify-tree":
		return runVerifyTreeCommand(rest, stdout, stderr)
	case "new-distributor":
		return runNewDistributorCommand(rest, stdout, stderr)
	case "mint":
		return runMintCommand(rest, stdout, stderr)
	case "fund":
		return runFundCommand(rest, stdout, stderr)
	case "claim":
		return runClaimCommand(rest, stdout, stderr)
	case "clawback":
		return runClawbackCommand(rest, stdout, stderr)
	case "set-admin":
		return runSetAdminCommand(rest, stdout, stderr)
	case "set-clawback-receiver":
		return runSetClawbackReceiverCommand(rest, stdout, stderr)
	case "show":
		return runShowCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: distributor-cli <command> [flags]",
		"",
		"Commands:",
		"  generate-key           create an encrypted keystore",
		"  create-merkle-tree     build an airdrop tree file from a CSV",
		"  verify-tree            re-derive and check a tree file",
		"  new-distributor        create a distributor from a tree file and manifest",
		"  mint                   credit tokens to an account (local ledgers only)",
		"  fund                   move tokens from the signer into a distributor vault",
		"  claim                  first claim and vested withdrawal for the signer",
		"  clawback               sweep the vault after the clawback start",
		"  set-admin              hand administration to another address",
		"  set-clawback-receiver  change the clawback destination",
		"  show                   print a distributor and optionally one claim",
		"",
		"The keystore passphrase is read from " + passphrase.EnvVar + " or prompted.",
	}, "\n")
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}

func printJSON(stdout io.Writer, v any) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stdout, "%v\n", v)
		return 0
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}

// ledger is a locally opened state store plus an engine bound to it.
type ledger struct {
	db     *storage.LevelDB
	mgr    *state.Manager
	engine *distributor.Engine
}

// eventPrinter writes committed events as JSON lines.
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	encoded, err := json.Marshal(map[string]any{
		"event":      evt.EventType(),
		"attributes": evt.Event().Attributes,
	})
	if err != nil {
		return
	}
	fmt.Fprintln(p.w, string(encoded))
}

func openLedger(dataDir string, eventsOut io.Writer) (*ledger, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("--data-dir is required")
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	mgr := state.NewManager(db)
	engine := distributor.NewEngine(mgr)
	engine.SetNowFunc(func() int64 { return cliNow().Unix() })
	if eventsOut != nil {
		engine.SetEmitter(eventPrinter{w: eventsOut})
	}
	return &ledger{db: db, mgr: mgr, engine: engine}, nil
}

func (l *ledger) Close() error {
	return l.db.Close()
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--keystore is required")
	}
	secret, err := passphraseSource.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, secret)
}

func parseDistributorID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return id, errors.New("--distributor is required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(id) {
		return id, fmt.Errorf("invalid distributor id %q", raw)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAddress(flagName, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr.Raw(), nil
}
