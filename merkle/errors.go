package merkle

import "errors"

var (
	ErrEmptyInput         = errors.New("merkle: no leaves supplied")
	ErrDuplicateClaimant  = errors.New("merkle: duplicate claimant")
	ErrUnknownHasher      = errors.New("merkle: unknown hasher")
	ErrLeafNotFound       = errors.New("merkle: leaf not found")
	ErrArithmeticOverflow = errors.New("merkle: arithmetic overflow")
	ErrRootMismatch       = errors.New("merkle: root mismatch")
	ErrInvalidProof       = errors.New("merkle: invalid proof")
	ErrMalformedTree      = errors.New("merkle: malformed tree file")
)
