package merkle

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"merkledrop/crypto"
)

func csvFixture(rows ...string) string {
	return "pubkey,amount_unlocked,amount_locked,category\n" + strings.Join(rows, "\n") + "\n"
}

func addrString(seed byte) string {
	return crypto.AddressFromRaw(testClaimant(seed)).String()
}

func TestReadCSV(t *testing.T) {
	input := csvFixture(
		fmt.Sprintf("%s,1000,500,Staker", addrString(1)),
		fmt.Sprintf("%s, 2000, 1000, Validator", addrString(2)),
		fmt.Sprintf("0x%x,1500,750,Searcher", testClaimant(3)),
	)
	entries, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, testClaimant(2), entries[1].Leaf.Claimant)
	require.Equal(t, uint64(2000), entries[1].Leaf.Unlocked)
	require.Equal(t, uint64(1000), entries[1].Leaf.Locked)
	require.Equal(t, "Validator", entries[1].Category)
	require.Equal(t, testClaimant(3), entries[2].Leaf.Claimant)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = ReadCSV(strings.NewReader(csvFixture()))
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = ReadCSV(strings.NewReader("pubkey,amount_locked\n"))
	require.ErrorContains(t, err, "amount_unlocked")

	_, err = ReadCSV(strings.NewReader(csvFixture(fmt.Sprintf("%s,-5,0,x", addrString(1)))))
	require.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader(csvFixture("not-an-address,1,1,x")))
	require.Error(t, err)
}

func TestAirdropTreeFileRoundTrip(t *testing.T) {
	entries := []Entry{
		{Leaf: Leaf{Claimant: testClaimant(1), Unlocked: 1000, Locked: 500}, Category: "Staker"},
		{Leaf: Leaf{Claimant: testClaimant(2), Unlocked: 2000, Locked: 1000}},
		{Leaf: Leaf{Claimant: testClaimant(3), Unlocked: 1500, Locked: 750}},
	}
	tree, err := NewAirdropTree(Blake3{}, entries)
	require.NoError(t, err)
	require.Equal(t, HasherBlake3, tree.Hasher)
	require.Equal(t, uint64(3), tree.MaxNumNodes)
	require.Equal(t, uint64(6750), tree.MaxTotalClaim)
	require.NoError(t, tree.Validate())

	path := filepath.Join(t.TempDir(), "out", "tree.json")
	require.NoError(t, tree.WriteFile(path))

	loaded, err := LoadAirdropTree(path)
	require.NoError(t, err)
	require.Equal(t, tree, loaded)
	require.NoError(t, loaded.Validate())

	node, err := loaded.NodeFor(testClaimant(2))
	require.NoError(t, err)
	leaf, err := node.Leaf()
	require.NoError(t, err)
	proof, err := node.ProofHashes()
	require.NoError(t, err)
	root, err := loaded.Root()
	require.NoError(t, err)
	require.True(t, VerifyLeaf(Blake3{}, leaf, proof, root))

	_, err = loaded.NodeFor(testClaimant(9))
	require.ErrorIs(t, err, ErrLeafNotFound)
}

func TestAirdropTreeValidateDetectsTampering(t *testing.T) {
	entries := []Entry{
		{Leaf: Leaf{Claimant: testClaimant(1), Unlocked: 10, Locked: 5}},
		{Leaf: Leaf{Claimant: testClaimant(2), Unlocked: 20, Locked: 0}},
	}
	tree, err := NewAirdropTree(nil, entries)
	require.NoError(t, err)

	tampered := *tree
	tampered.TreeNodes = append([]TreeNode(nil), tree.TreeNodes...)
	tampered.TreeNodes[0].AmountUnlocked = 11
	require.ErrorIs(t, tampered.Validate(), ErrRootMismatch)

	badProof := *tree
	badProof.TreeNodes = append([]TreeNode(nil), tree.TreeNodes...)
	badProof.TreeNodes[1].Proof = []string{Hash{}.Hex()}
	require.ErrorIs(t, badProof.Validate(), ErrInvalidProof)

	badTotals := *tree
	badTotals.MaxTotalClaim++
	require.ErrorIs(t, badTotals.Validate(), ErrMalformedTree)
}

func TestAirdropTreeTotalOverflow(t *testing.T) {
	entries := []Entry{
		{Leaf: Leaf{Claimant: testClaimant(1), Unlocked: math.MaxUint64, Locked: 0}},
		{Leaf: Leaf{Claimant: testClaimant(2), Unlocked: 1, Locked: 0}},
	}
	_, err := NewAirdropTree(nil, entries)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestParseHash(t *testing.T) {
	h := Keccak256{}.Hash([]byte("x"))
	parsed, err := ParseHash(h.Hex())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHash("0x1234")
	require.Error(t, err)
	_, err = ParseHash("zz")
	require.Error(t, err)
}
