package merkle

import "crypto/subtle"

// Verify folds proof into leaf with HashPair and reports whether the result
// equals root byte for byte. It has no side effects.
func Verify(h Hasher, proof []Hash, root Hash, leaf Hash) bool {
	if h == nil {
		h = DefaultHasher
	}
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(h, computed, sibling)
	}
	return subtle.ConstantTimeCompare(computed[:], root[:]) == 1
}

// VerifyLeaf hashes leaf and verifies it against root.
func VerifyLeaf(h Hasher, leaf Leaf, proof []Hash, root Hash) bool {
	if h == nil {
		h = DefaultHasher
	}
	return Verify(h, proof, root, LeafHash(h, leaf))
}
