package bank

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
	ErrNilLedger           = errors.New("bank: ledger not configured")
)

// Ledger exposes the token balances of (mint, owner) pairs. Implementations
// must make writes of one invocation visible atomically.
type Ledger interface {
	TokenBalance(mint, owner [20]byte) (uint64, error)
	SetTokenBalance(mint, owner [20]byte, amount uint64) error
}

// Transfer moves amount of mint from one owner to another. Nothing is written
// unless both the debit and the credit are valid. A zero amount is a no-op.
func Transfer(ledger Ledger, mint, from, to [20]byte, amount uint64) error {
	if ledger == nil {
		return ErrNilLedger
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := ledger.TokenBalance(mint, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBal, amount)
	}
	toBal, err := ledger.TokenBalance(mint, to)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	if err := ledger.SetTokenBalance(mint, from, fromBal-amount); err != nil {
		return err
	}
	return ledger.SetTokenBalance(mint, to, toBal+amount)
}

// Mint credits newly issued tokens to owner, e.g. when funding a vault.
func Mint(ledger Ledger, mint, to [20]byte, amount uint64) error {
	if ledger == nil {
		return ErrNilLedger
	}
	if amount == 0 {
		return nil
	}
	bal, err := ledger.TokenBalance(mint, to)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	return ledger.SetTokenBalance(mint, to, bal+amount)
}
