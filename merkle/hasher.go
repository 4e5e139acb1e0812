package merkle

import (
	"crypto/sha256"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

// HashLength is the size of every leaf, node and root digest.
const HashLength = 32

// Hash is a fixed-size digest produced by a Hasher.
type Hash [HashLength]byte

// Hasher is the collision-resistant function shared by the tree builder and
// the proof verifier. Hash must return the digest of the concatenation of
// parts.
type Hasher interface {
	Name() string
	Hash(parts ...[]byte) Hash
}

const (
	HasherKeccak256 = "keccak256"
	HasherSHA256    = "sha256"
	HasherBlake3    = "blake3"
)

// DefaultHasher is used when no hasher is named.
var DefaultHasher Hasher = Keccak256{}

type Keccak256 struct{}

func (Keccak256) Name() string { return HasherKeccak256 }

func (Keccak256) Hash(parts ...[]byte) Hash {
	var out Hash
	copy(out[:], ethcrypto.Keccak256(parts...))
	return out
}

type SHA256 struct{}

func (SHA256) Name() string { return HasherSHA256 }

func (SHA256) Hash(parts ...[]byte) Hash {
	h := sha256.New()
	for _, part := range parts {
		h.Write(part)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

type Blake3 struct{}

func (Blake3) Name() string { return HasherBlake3 }

func (Blake3) Hash(parts ...[]byte) Hash {
	h := blake3.New(HashLength, nil)
	for _, part := range parts {
		h.Write(part)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// HasherByName resolves a hasher identifier as stored in tree files and
// distributor records. The empty name selects DefaultHasher.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultHasher, nil
	case HasherKeccak256:
		return Keccak256{}, nil
	case HasherSHA256:
		return SHA256{}, nil
	case HasherBlake3:
		return Blake3{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
}
