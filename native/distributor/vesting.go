package distributor

import (
	"github.com/holiman/uint256"
)

// Vested returns the portion of locked released at now under a linear
// schedule from start to end. The product elapsed*locked is computed in
// 256-bit space; start == end never divides since one of the first two
// branches always applies.
func Vested(now, start, end int64, locked uint64) (uint64, error) {
	if now <= start {
		return 0, nil
	}
	if now >= end {
		return locked, nil
	}
	// start < now < end, so both differences are positive and fit in 64 bits
	// when taken as unsigned.
	elapsed := uint64(now) - uint64(start)
	window := uint64(end) - uint64(start)
	vested, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(elapsed),
		uint256.NewInt(locked),
		uint256.NewInt(window),
	)
	if overflow || !vested.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return vested.Uint64(), nil
}

// AmountWithdrawable is the vested but not yet withdrawn locked amount.
func (c *ClaimStatus) AmountWithdrawable(now, start, end int64) (uint64, error) {
	vested, err := Vested(now, start, end, c.LockedAmount)
	if err != nil {
		return 0, err
	}
	if vested <= c.LockedAmountWithdrawn {
		return 0, nil
	}
	return vested - c.LockedAmountWithdrawn, nil
}
