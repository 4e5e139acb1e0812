package distributor

import "errors"

var (
	ErrNilState              = errors.New("distributor: state not configured")
	ErrDistributorNotFound   = errors.New("distributor: distributor not found")
	ErrDistributorExists     = errors.New("distributor: distributor already exists")
	ErrInvalidProof          = errors.New("distributor: invalid proof")
	ErrMaxClaimsExceeded     = errors.New("distributor: max number of claims exceeded")
	ErrMaxTotalClaimExceeded = errors.New("distributor: max total claim exceeded")
	ErrAlreadyClaimed        = errors.New("distributor: already claimed")
	ErrNoClaim               = errors.New("distributor: no claim record")
	ErrNothingToClaim        = errors.New("distributor: nothing to claim")
	ErrClaimExpired          = errors.New("distributor: claim window closed by clawback")
	ErrClawbackNotReady      = errors.New("distributor: clawback window not open")
	ErrAlreadyClawedBack     = errors.New("distributor: already clawed back")
	ErrUnauthorized          = errors.New("distributor: unauthorized")
	ErrInvalidTiming         = errors.New("distributor: invalid timing")
	ErrArithmeticOverflow    = errors.New("distributor: arithmetic overflow")
	ErrInvalidAddress        = errors.New("distributor: invalid address")
	ErrInvalidHasher         = errors.New("distributor: invalid hasher")
	ErrInvalidAmount         = errors.New("distributor: amount must be positive")
	ErrParamsMismatch        = errors.New("distributor: stored parameters differ")
)
