package merkle

import (
	"bytes"
	"encoding/binary"
)

const (
	// LeafPrefix tags leaf hashes so an internal node can never be replayed as
	// a leaf (second-preimage attack on the tree shape).
	LeafPrefix byte = 0x00
	// IntermediatePrefix tags internal node hashes.
	IntermediatePrefix byte = 0x01

	ClaimantLength = 20
	leafDataLength = ClaimantLength + 8 + 8
)

// Leaf is one recipient's allocation.
type Leaf struct {
	Claimant [ClaimantLength]byte
	Unlocked uint64
	Locked   uint64
}

// Encode returns the leaf preimage: claimant ‖ unlocked (LE) ‖ locked (LE).
func (l Leaf) Encode() []byte {
	buf := make([]byte, leafDataLength)
	copy(buf, l.Claimant[:])
	binary.LittleEndian.PutUint64(buf[ClaimantLength:], l.Unlocked)
	binary.LittleEndian.PutUint64(buf[ClaimantLength+8:], l.Locked)
	return buf
}

// LeafHash computes H(LeafPrefix ‖ H(preimage)).
func LeafHash(h Hasher, leaf Leaf) Hash {
	inner := h.Hash(leaf.Encode())
	return h.Hash([]byte{LeafPrefix}, inner[:])
}

// HashPair combines two child hashes independently of their position in the
// tree: the smaller digest always goes first. Builder and verifier both call
// this function and nothing else to fold nodes.
func HashPair(h Hasher, a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return h.Hash([]byte{IntermediatePrefix}, a[:], b[:])
}
