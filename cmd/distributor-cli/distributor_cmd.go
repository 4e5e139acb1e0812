package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"merkledrop/config"
	"merkledrop/crypto"
	"merkledrop/merkle"
	"merkledrop/native/distributor"
)

type distributorSummary struct {
	ID                 string `json:"id"`
	Version            uint64 `json:"version"`
	Root               string `json:"root"`
	Hasher             string `json:"hasher"`
	Mint               string `json:"mint"`
	Vault              string `json:"vault"`
	VaultBalance       uint64 `json:"vault_balance"`
	Admin              string `json:"admin"`
	ClawbackReceiver   string `json:"clawback_receiver"`
	MaxTotalClaim      uint64 `json:"max_total_claim"`
	MaxNumNodes        uint64 `json:"max_num_nodes"`
	TotalAmountClaimed uint64 `json:"total_amount_claimed"`
	NumNodesClaimed    uint64 `json:"num_nodes_claimed"`
	StartTs            int64  `json:"start_ts"`
	EndTs              int64  `json:"end_ts"`
	ClawbackStartTs    int64  `json:"clawback_start_ts"`
	ClawedBack         bool   `json:"clawed_back"`
}

type claimSummary struct {
	Claimant              string `json:"claimant"`
	State                 string `json:"state"`
	UnlockedAmount        uint64 `json:"unlocked_amount"`
	LockedAmount          uint64 `json:"locked_amount"`
	LockedAmountWithdrawn uint64 `json:"locked_amount_withdrawn"`
	Withdrawable          uint64 `json:"withdrawable"`
}

func summarize(d *distributor.Distributor, balance uint64) distributorSummary {
	return distributorSummary{
		ID:                 hex.EncodeToString(d.ID[:]),
		Version:            d.Version,
		Root:               merkle.Hash(d.Root).Hex(),
		Hasher:             d.Hasher,
		Mint:               crypto.AddressFromRaw(d.Mint).String(),
		Vault:              crypto.AddressFromRaw(d.Vault).String(),
		VaultBalance:       balance,
		Admin:              crypto.AddressFromRaw(d.Admin).String(),
		ClawbackReceiver:   crypto.AddressFromRaw(d.ClawbackReceiver).String(),
		MaxTotalClaim:      d.MaxTotalClaim,
		MaxNumNodes:        d.MaxNumNodes,
		TotalAmountClaimed: d.TotalAmountClaimed,
		NumNodesClaimed:    d.NumNodesClaimed,
		StartTs:            d.StartTs,
		EndTs:              d.EndTs,
		ClawbackStartTs:    d.ClawbackStartTs,
		ClawedBack:         d.ClawedBack,
	}
}

func runNewDistributorCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("new-distributor", stderr)
	var dataDir, treePath, manifestPath, keystorePath string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&treePath, "merkle-tree-path", "", "tree file produced by create-merkle-tree")
	fs.StringVar(&manifestPath, "manifest", "", "YAML distributor manifest")
	fs.StringVar(&keystorePath, "keystore", "", "creator keystore; the default admin and clawback receiver")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if treePath == "" {
		return printError(stderr, "--merkle-tree-path is required")
	}
	if manifestPath == "" {
		return printError(stderr, "--manifest is required")
	}
	tree, err := merkle.LoadAirdropTree(treePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	if err := tree.Validate(); err != nil {
		return printError(stderr, "%v", err)
	}
	root, err := tree.Root()
	if err != nil {
		return printError(stderr, "%v", err)
	}
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := loadKey(keystorePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	params, err := manifest.CreateParams(root, tree.Hasher, tree.MaxTotalClaim, tree.MaxNumNodes, key.PubKey().Address().Raw())
	if err != nil {
		return printError(stderr, "%v", err)
	}

	l, err := openLedger(dataDir, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	id := distributor.DistributorID(params.Mint, params.Version)
	existing, err := l.engine.Distributor(id)
	switch {
	case err == nil:
		// A previous run may have committed; reuse it only when it is the
		// same commitment governed by the same accounts.
		if err := existing.Matches(params); err != nil {
			return printError(stderr, "distributor %x exists with different parameters: %v", id, err)
		}
		fmt.Fprintf(stderr, "distributor %x exists, parameters match\n", id)
		balance, err := l.engine.VaultBalance(id)
		if err != nil {
			return printError(stderr, "%v", err)
		}
		return printJSON(stdout, summarize(existing, balance))
	case !errors.Is(err, distributor.ErrDistributorNotFound):
		return printError(stderr, "%v", err)
	}
	d, err := l.engine.CreateDistributor(params)
	if err != nil {
		return printError(stderr, "create distributor: %v", err)
	}
	return printJSON(stdout, summarize(d, 0))
}

func runMintCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var dataDir, mint, to, amountStr string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&mint, "mint", "", "token mint address")
	fs.StringVar(&to, "to", "", "account to credit")
	fs.StringVar(&amountStr, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	mintAddr, err := parseAddress("mint", mint)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	toAddr, err := parseAddress("to", to)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	l, err := openLedger(dataDir, nil)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	if err := l.mgr.MintTo(mintAddr, toAddr, amount); err != nil {
		return printError(stderr, "mint: %v", err)
	}
	balance, err := l.mgr.TokenBalance(mintAddr, toAddr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, map[string]any{"account": crypto.AddressFromRaw(toAddr).String(), "balance": balance})
}

func runFundCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("fund", stderr)
	var dataDir, id, keystorePath, amountStr string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&id, "distributor", "", "distributor id (hex)")
	fs.StringVar(&keystorePath, "keystore", "", "funder keystore")
	fs.StringVar(&amountStr, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	distributorID, err := parseDistributorID(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := loadKey(keystorePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	l, err := openLedger(dataDir, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	if err := l.engine.Fund(distributorID, key.PubKey().Address().Raw(), amount); err != nil {
		return printError(stderr, "fund: %v", err)
	}
	return printDistributor(l, distributorID, stdout, stderr)
}

// runClaimCommand performs new_claim when the signer has no record yet and
// then withdraws whatever locked amount has vested.
func runClaimCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("claim", stderr)
	var dataDir, id, keystorePath, treePath string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&id, "distributor", "", "distributor id (hex)")
	fs.StringVar(&keystorePath, "keystore", "", "claimant keystore")
	fs.StringVar(&treePath, "merkle-tree-path", "", "tree file holding the claimant's proof")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	distributorID, err := parseDistributorID(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := loadKey(keystorePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	claimant := key.PubKey().Address().Raw()

	l, err := openLedger(dataDir, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()

	status, err := l.engine.ClaimStatus(distributorID, claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	claimedNow := false
	if status == nil {
		if treePath == "" {
			return printError(stderr, "--merkle-tree-path is required for the first claim")
		}
		tree, err := merkle.LoadAirdropTree(treePath)
		if err != nil {
			return printError(stderr, "%v", err)
		}
		node, err := tree.NodeFor(claimant)
		if err != nil {
			return printError(stderr, "%v", err)
		}
		leaf, err := node.Leaf()
		if err != nil {
			return printError(stderr, "%v", err)
		}
		proof, err := node.ProofHashes()
		if err != nil {
			return printError(stderr, "%v", err)
		}
		if _, err := l.engine.NewClaim(distributorID, claimant, leaf.Unlocked, leaf.Locked, proof); err != nil {
			return printError(stderr, "new claim: %v", err)
		}
		claimedNow = true
	}
	withdrawable, err := l.engine.Withdrawable(distributorID, claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	switch {
	case withdrawable > 0:
		if _, err := l.engine.ClaimLocked(distributorID, claimant); err != nil {
			return printError(stderr, "claim locked: %v", err)
		}
	case !claimedNow:
		// A repeat run that pays nothing is reported like claim_locked would.
		return printError(stderr, "claim locked: %v", distributor.ErrNothingToClaim)
	}
	return printClaim(l, distributorID, claimant, stdout, stderr)
}

func runClawbackCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("clawback", stderr)
	var dataDir, id string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&id, "distributor", "", "distributor id (hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	distributorID, err := parseDistributorID(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	l, err := openLedger(dataDir, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	if _, err := l.engine.Clawback(distributorID); err != nil {
		return printError(stderr, "clawback: %v", err)
	}
	return printDistributor(l, distributorID, stdout, stderr)
}

func runSetAdminCommand(args []string, stdout, stderr io.Writer) int {
	return runGovernanceCommand("set-admin", "new-admin", args, stdout, stderr,
		func(l *ledger, id [32]byte, caller, next [20]byte) error {
			return l.engine.SetAdmin(id, caller, next)
		})
}

func runSetClawbackReceiverCommand(args []string, stdout, stderr io.Writer) int {
	return runGovernanceCommand("set-clawback-receiver", "receiver", args, stdout, stderr,
		func(l *ledger, id [32]byte, caller, next [20]byte) error {
			return l.engine.SetClawbackReceiver(id, caller, next)
		})
}

func runGovernanceCommand(name, target string, args []string, stdout, stderr io.Writer, apply func(*ledger, [32]byte, [20]byte, [20]byte) error) int {
	fs := newFlagSet(name, stderr)
	var dataDir, id, keystorePath, next string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&id, "distributor", "", "distributor id (hex)")
	fs.StringVar(&keystorePath, "keystore", "", "current admin keystore")
	fs.StringVar(&next, target, "", "new address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	distributorID, err := parseDistributorID(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	nextAddr, err := parseAddress(target, next)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := loadKey(keystorePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	l, err := openLedger(dataDir, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	if err := apply(l, distributorID, key.PubKey().Address().Raw(), nextAddr); err != nil {
		return printError(stderr, "%s: %v", name, err)
	}
	return printDistributor(l, distributorID, stdout, stderr)
}

func runShowCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("show", stderr)
	var dataDir, id, claimant string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir, "local state directory")
	fs.StringVar(&id, "distributor", "", "distributor id (hex); empty lists every distributor")
	fs.StringVar(&claimant, "claimant", "", "optional claimant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	l, err := openLedger(dataDir, nil)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer l.Close()
	if id == "" {
		ids, err := l.mgr.Distributors()
		if err != nil {
			return printError(stderr, "%v", err)
		}
		out := make([]string, len(ids))
		for i, distributorID := range ids {
			out[i] = hex.EncodeToString(distributorID[:])
		}
		return printJSON(stdout, out)
	}
	distributorID, err := parseDistributorID(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	if claimant == "" {
		return printDistributor(l, distributorID, stdout, stderr)
	}
	addr, err := parseAddress("claimant", claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printClaim(l, distributorID, addr, stdout, stderr)
}

func printDistributor(l *ledger, id [32]byte, stdout, stderr io.Writer) int {
	d, err := l.engine.Distributor(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	balance, err := l.engine.VaultBalance(id)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, summarize(d, balance))
}

func printClaim(l *ledger, id [32]byte, claimant [20]byte, stdout, stderr io.Writer) int {
	status, err := l.engine.ClaimStatus(id, claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	if status == nil {
		return printError(stderr, "%v", distributor.ErrNoClaim)
	}
	withdrawable, err := l.engine.Withdrawable(id, claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, claimSummary{
		Claimant:              crypto.AddressFromRaw(claimant).String(),
		State:                 distributor.StateOf(status).String(),
		UnlockedAmount:        status.UnlockedAmount,
		LockedAmount:          status.LockedAmount,
		LockedAmountWithdrawn: status.LockedAmountWithdrawn,
		Withdrawable:          withdrawable,
	})
}

func parseAmount(raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("--amount is required")
	}
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || amount == 0 {
		return 0, fmt.Errorf("--amount must be a positive integer")
	}
	return amount, nil
}
