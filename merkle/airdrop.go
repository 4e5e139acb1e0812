package merkle

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"merkledrop/crypto"
)

// Entry is one CSV row: a leaf plus its informational category.
type Entry struct {
	Leaf     Leaf
	Category string
}

// AirdropTree is the serialisable output of the offline builder. It carries
// everything a claimant needs to submit new_claim and everything the issuer
// needs to create the distributor.
type AirdropTree struct {
	Hasher        string     `json:"hasher"`
	MerkleRoot    string     `json:"merkle_root"`
	MaxNumNodes   uint64     `json:"max_num_nodes"`
	MaxTotalClaim uint64     `json:"max_total_claim"`
	TreeNodes     []TreeNode `json:"tree_nodes"`
}

// TreeNode is a single recipient entry inside an AirdropTree.
type TreeNode struct {
	Claimant       string   `json:"claimant"`
	AmountUnlocked uint64   `json:"amount_unlocked"`
	AmountLocked   uint64   `json:"amount_locked"`
	Category       string   `json:"category,omitempty"`
	Proof          []string `json:"proof"`
}

// Hex renders the digest as 0x-prefixed lowercase hex.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// ParseHash decodes a 32-byte digest from hex, with or without 0x prefix.
func ParseHash(value string) (Hash, error) {
	var out Hash
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("merkle: decode hash: %w", err)
	}
	if len(raw) != HashLength {
		return out, fmt.Errorf("merkle: hash must be %d bytes, got %d", HashLength, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// NewAirdropTree builds the tree over entries and renders proofs for every
// recipient. MaxTotalClaim is the sum of every unlocked and locked amount.
func NewAirdropTree(h Hasher, entries []Entry) (*AirdropTree, error) {
	if h == nil {
		h = DefaultHasher
	}
	leaves := make([]Leaf, len(entries))
	var total uint64
	for i, entry := range entries {
		leaves[i] = entry.Leaf
		sum, err := addChecked(entry.Leaf.Unlocked, entry.Leaf.Locked)
		if err != nil {
			return nil, err
		}
		if total, err = addChecked(total, sum); err != nil {
			return nil, err
		}
	}
	tree, err := Build(h, leaves)
	if err != nil {
		return nil, err
	}
	out := &AirdropTree{
		Hasher:        h.Name(),
		MerkleRoot:    tree.Root().Hex(),
		MaxNumNodes:   uint64(len(entries)),
		MaxTotalClaim: total,
		TreeNodes:     make([]TreeNode, len(entries)),
	}
	for i, entry := range entries {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		encoded := make([]string, len(proof))
		for j, sibling := range proof {
			encoded[j] = sibling.Hex()
		}
		out.TreeNodes[i] = TreeNode{
			Claimant:       crypto.AddressFromRaw(entry.Leaf.Claimant).String(),
			AmountUnlocked: entry.Leaf.Unlocked,
			AmountLocked:   entry.Leaf.Locked,
			Category:       entry.Category,
			Proof:          encoded,
		}
	}
	return out, nil
}

func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// Root decodes the committed root.
func (t *AirdropTree) Root() (Hash, error) { return ParseHash(t.MerkleRoot) }

// HasherImpl resolves the hasher recorded in the file.
func (t *AirdropTree) HasherImpl() (Hasher, error) { return HasherByName(t.Hasher) }

// Leaf decodes the node's leaf data.
func (n TreeNode) Leaf() (Leaf, error) {
	addr, err := crypto.ParseAddress(n.Claimant)
	if err != nil {
		return Leaf{}, fmt.Errorf("%w: claimant %q: %v", ErrMalformedTree, n.Claimant, err)
	}
	return Leaf{Claimant: addr.Raw(), Unlocked: n.AmountUnlocked, Locked: n.AmountLocked}, nil
}

// ProofHashes decodes the node's proof path.
func (n TreeNode) ProofHashes() ([]Hash, error) {
	out := make([]Hash, len(n.Proof))
	for i, raw := range n.Proof {
		h, err := ParseHash(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: proof[%d]: %v", ErrMalformedTree, i, err)
		}
		out[i] = h
	}
	return out, nil
}

// NodeFor returns the tree node belonging to claimant.
func (t *AirdropTree) NodeFor(claimant [ClaimantLength]byte) (*TreeNode, error) {
	for i := range t.TreeNodes {
		leaf, err := t.TreeNodes[i].Leaf()
		if err != nil {
			return nil, err
		}
		if leaf.Claimant == claimant {
			node := t.TreeNodes[i]
			return &node, nil
		}
	}
	return nil, fmt.Errorf("%w: claimant %s", ErrLeafNotFound, crypto.AddressFromRaw(claimant))
}

// Validate rebuilds the tree from the nodes, checks the root and totals, and
// verifies every stored proof.
func (t *AirdropTree) Validate() error {
	h, err := t.HasherImpl()
	if err != nil {
		return err
	}
	root, err := t.Root()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	entries := make([]Entry, len(t.TreeNodes))
	for i, node := range t.TreeNodes {
		leaf, err := node.Leaf()
		if err != nil {
			return err
		}
		entries[i] = Entry{Leaf: leaf, Category: node.Category}
	}
	rebuilt, err := NewAirdropTree(h, entries)
	if err != nil {
		return err
	}
	if rebuilt.MerkleRoot != root.Hex() {
		return fmt.Errorf("%w: file %s, rebuilt %s", ErrRootMismatch, root.Hex(), rebuilt.MerkleRoot)
	}
	if rebuilt.MaxNumNodes != t.MaxNumNodes || rebuilt.MaxTotalClaim != t.MaxTotalClaim {
		return fmt.Errorf("%w: totals do not match tree nodes", ErrMalformedTree)
	}
	for i, node := range t.TreeNodes {
		proof, err := node.ProofHashes()
		if err != nil {
			return err
		}
		if !VerifyLeaf(h, entries[i].Leaf, proof, root) {
			return fmt.Errorf("%w: node %d (%s)", ErrInvalidProof, i, node.Claimant)
		}
	}
	return nil
}

// ReadCSV parses recipient rows. The header must name the columns pubkey,
// amount_unlocked and amount_locked; category is optional.
func ReadCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("merkle: read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	required := []string{"pubkey", "amount_unlocked", "amount_locked"}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("merkle: csv missing column %q", name)
		}
	}
	categoryCol, hasCategory := columns["category"]

	var entries []Entry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("merkle: read csv line %d: %w", line, err)
		}
		field := func(name string) string {
			idx := columns[name]
			if idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		addr, err := crypto.ParseAddress(field("pubkey"))
		if err != nil {
			return nil, fmt.Errorf("merkle: csv line %d: %w", line, err)
		}
		unlocked, err := strconv.ParseUint(field("amount_unlocked"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("merkle: csv line %d: amount_unlocked: %w", line, err)
		}
		locked, err := strconv.ParseUint(field("amount_locked"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("merkle: csv line %d: amount_locked: %w", line, err)
		}
		entry := Entry{Leaf: Leaf{Claimant: addr.Raw(), Unlocked: unlocked, Locked: locked}}
		if hasCategory && categoryCol < len(record) {
			entry.Category = strings.TrimSpace(record[categoryCol])
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyInput
	}
	return entries, nil
}

// WriteFile stores the tree as indented JSON.
func (t *AirdropTree) WriteFile(path string) error {
	encoded, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

// LoadAirdropTree reads a tree file written by WriteFile.
func LoadAirdropTree(path string) (*AirdropTree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tree AirdropTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if len(tree.TreeNodes) == 0 {
		return nil, ErrEmptyInput
	}
	return &tree, nil
}
