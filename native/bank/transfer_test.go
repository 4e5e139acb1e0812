package bank

import (
	"errors"
	"math"
	"testing"
)

type memLedger map[[40]byte]uint64

func ledgerKey(mint, owner [20]byte) [40]byte {
	var k [40]byte
	copy(k[:20], mint[:])
	copy(k[20:], owner[:])
	return k
}

func (m memLedger) TokenBalance(mint, owner [20]byte) (uint64, error) {
	return m[ledgerKey(mint, owner)], nil
}

func (m memLedger) SetTokenBalance(mint, owner [20]byte, amount uint64) error {
	m[ledgerKey(mint, owner)] = amount
	return nil
}

func TestTransferMovesBalance(t *testing.T) {
	mint, vault, alice := [20]byte{1}, [20]byte{2}, [20]byte{3}
	ledger := memLedger{}
	if err := Mint(ledger, mint, vault, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := Transfer(ledger, mint, vault, alice, 200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got, _ := ledger.TokenBalance(mint, vault); got != 300 {
		t.Fatalf("vault balance = %d, want 300", got)
	}
	if got, _ := ledger.TokenBalance(mint, alice); got != 200 {
		t.Fatalf("alice balance = %d, want 200", got)
	}
}

func TestTransferInsufficientLeavesBalances(t *testing.T) {
	mint, vault, alice := [20]byte{1}, [20]byte{2}, [20]byte{3}
	ledger := memLedger{}
	_ = Mint(ledger, mint, vault, 10)
	err := Transfer(ledger, mint, vault, alice, 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got, _ := ledger.TokenBalance(mint, vault); got != 10 {
		t.Fatalf("vault balance changed to %d", got)
	}
	if got, _ := ledger.TokenBalance(mint, alice); got != 0 {
		t.Fatalf("alice balance changed to %d", got)
	}
}

func TestTransferOverflowRejected(t *testing.T) {
	mint, vault, alice := [20]byte{1}, [20]byte{2}, [20]byte{3}
	ledger := memLedger{}
	_ = Mint(ledger, mint, vault, 10)
	_ = Mint(ledger, mint, alice, math.MaxUint64)
	if err := Transfer(ledger, mint, vault, alice, 1); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := Mint(ledger, mint, alice, 1); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected mint overflow, got %v", err)
	}
}

func TestTransferNilLedger(t *testing.T) {
	if err := Transfer(nil, [20]byte{}, [20]byte{1}, [20]byte{2}, 1); !errors.Is(err, ErrNilLedger) {
		t.Fatalf("expected nil ledger error, got %v", err)
	}
}
