package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = 65

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// SignMessage signs the keccak256 digest of message with key.
func SignMessage(key *PrivateKey, message []byte) ([]byte, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	digest := crypto.Keccak256(message)
	return crypto.Sign(digest, key.PrivateKey)
}

// RecoverSigner returns the address whose key produced sig over message.
func RecoverSigner(message, sig []byte) (Address, error) {
	if len(sig) != SignatureLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(sig))
	}
	digest := crypto.Keccak256(message)
	normalized := append([]byte(nil), sig...)
	// Accept Ethereum style 27/28 recovery ids.
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return MustNewAddress(DropPrefix, crypto.PubkeyToAddress(*pub).Bytes()), nil
}
