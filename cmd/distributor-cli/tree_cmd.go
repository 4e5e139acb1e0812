package main

import (
	"io"
	"os"

	"merkledrop/crypto"
	"merkledrop/merkle"
)

func runGenerateKeyCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	var keystorePath string
	fs.StringVar(&keystorePath, "keystore", "", "path of the keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if keystorePath == "" {
		return printError(stderr, "--keystore is required")
	}
	if _, err := os.Stat(keystorePath); err == nil {
		return printError(stderr, "%s already exists", keystorePath)
	}
	secret, err := passphraseSource.Get()
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, "generate key: %v", err)
	}
	if err := crypto.SaveToKeystore(keystorePath, key, secret); err != nil {
		return printError(stderr, "save keystore: %v", err)
	}
	return printJSON(stdout, map[string]string{
		"address":  key.PubKey().Address().String(),
		"keystore": keystorePath,
	})
}

func runCreateTreeCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create-merkle-tree", stderr)
	var csvPath, treePath, hasherName string
	fs.StringVar(&csvPath, "csv-path", "", "recipient CSV (pubkey,amount_unlocked,amount_locked[,category])")
	fs.StringVar(&treePath, "merkle-tree-path", "", "output tree file")
	fs.StringVar(&hasherName, "hasher", merkle.HasherKeccak256, "hash function: keccak256, sha256 or blake3")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if csvPath == "" {
		return printError(stderr, "--csv-path is required")
	}
	if treePath == "" {
		return printError(stderr, "--merkle-tree-path is required")
	}
	hasher, err := merkle.HasherByName(hasherName)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	file, err := os.Open(csvPath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer file.Close()
	entries, err := merkle.ReadCSV(file)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	tree, err := merkle.NewAirdropTree(hasher, entries)
	if err != nil {
		return printError(stderr, "build tree: %v", err)
	}
	if err := tree.WriteFile(treePath); err != nil {
		return printError(stderr, "write tree: %v", err)
	}
	return printJSON(stdout, treeSummary(tree, treePath))
}

func runVerifyTreeCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("verify-tree", stderr)
	var treePath, claimant string
	fs.StringVar(&treePath, "merkle-tree-path", "", "tree file to verify")
	fs.StringVar(&claimant, "claimant", "", "optional address whose proof to print")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if treePath == "" {
		return printError(stderr, "--merkle-tree-path is required")
	}
	tree, err := merkle.LoadAirdropTree(treePath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	if err := tree.Validate(); err != nil {
		return printError(stderr, "%v", err)
	}
	if claimant == "" {
		return printJSON(stdout, treeSummary(tree, treePath))
	}
	addr, err := parseAddress("claimant", claimant)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	node, err := tree.NodeFor(addr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, node)
}

func treeSummary(tree *merkle.AirdropTree, path string) map[string]any {
	return map[string]any{
		"path":            path,
		"hasher":          tree.Hasher,
		"merkle_root":     tree.MerkleRoot,
		"max_num_nodes":   tree.MaxNumNodes,
		"max_total_claim": tree.MaxTotalClaim,
	}
}
