package merkle

import (
	"fmt"
)

// Tree is a binary Merkle tree over an ordered list of leaves. Levels are
// built bottom up by pairing adjacent nodes with HashPair; when a level has an
// odd number of nodes the last one is promoted unchanged to the next level.
//
// Tree is immutable after Build and safe for concurrent reads.
type Tree struct {
	hasher Hasher
	leaves []Leaf
	levels [][]Hash
	index  map[[ClaimantLength]byte]int
}

// Build hashes every leaf and constructs the tree. Claimants must be unique.
func Build(h Hasher, leaves []Leaf) (*Tree, error) {
	if h == nil {
		h = DefaultHasher
	}
	if len(leaves) == 0 {
		return nil, ErrEmptyInput
	}
	index := make(map[[ClaimantLength]byte]int, len(leaves))
	base := make([]Hash, len(leaves))
	for i, leaf := range leaves {
		if prev, ok := index[leaf.Claimant]; ok {
			return nil, fmt.Errorf("%w: %x at rows %d and %d", ErrDuplicateClaimant, leaf.Claimant, prev, i)
		}
		index[leaf.Claimant] = i
		base[i] = LeafHash(h, leaf)
	}

	levels := [][]Hash{base}
	for current := base; len(current) > 1; {
		next := make([]Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				next = append(next, current[i])
				continue
			}
			next = append(next, HashPair(h, current[i], current[i+1]))
		}
		levels = append(levels, next)
		current = next
	}

	stored := make([]Leaf, len(leaves))
	copy(stored, leaves)
	return &Tree{hasher: h, leaves: stored, levels: levels, index: index}, nil
}

func (t *Tree) Hasher() Hasher { return t.hasher }

// Root returns the commitment over all leaves.
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Depth is the number of hashing levels above the leaves.
func (t *Tree) Depth() int { return len(t.levels) - 1 }

func (t *Tree) Len() int { return len(t.leaves) }

// Leaf returns the i-th leaf in input order.
func (t *Tree) Leaf(i int) (Leaf, error) {
	if i < 0 || i >= len(t.leaves) {
		return Leaf{}, fmt.Errorf("%w: index %d", ErrLeafNotFound, i)
	}
	return t.leaves[i], nil
}

// Leaves returns a copy of the leaves in input order.
func (t *Tree) Leaves() []Leaf {
	out := make([]Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Proof returns the sibling hashes from leaf i up to the root. Levels where
// the node was promoted contribute nothing.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= len(t.leaves) {
		return nil, fmt.Errorf("%w: index %d", ErrLeafNotFound, i)
	}
	proof := make([]Hash, 0, t.Depth())
	pos := i
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// ProofFor looks a claimant up and returns its leaf and proof.
func (t *Tree) ProofFor(claimant [ClaimantLength]byte) (Leaf, []Hash, error) {
	i, ok := t.index[claimant]
	if !ok {
		return Leaf{}, nil, fmt.Errorf("%w: claimant %x", ErrLeafNotFound, claimant)
	}
	proof, err := t.Proof(i)
	if err != nil {
		return Leaf{}, nil, err
	}
	return t.leaves[i], proof, nil
}
