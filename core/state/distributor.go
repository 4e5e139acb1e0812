package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"merkledrop/native/distributor"
)

// RLP has no signed integers, so timestamps are stored as the two's
// complement bit pattern of the int64.
type storedDistributor struct {
	ID                 [32]byte
	Version            uint64
	Root               [32]byte
	Hasher             string
	Mint               [20]byte
	Vault              [20]byte
	MaxTotalClaim      uint64
	MaxNumNodes        uint64
	TotalAmountClaimed uint64
	NumNodesClaimed    uint64
	StartTs            uint64
	EndTs              uint64
	ClawbackStartTs    uint64
	ClawbackReceiver   [20]byte
	Admin              [20]byte
	ClawedBack         bool
}

func newStoredDistributor(d *distributor.Distributor) *storedDistributor {
	return &storedDistributor{
		ID:                 d.ID,
		Version:            d.Version,
		Root:               d.Root,
		Hasher:             d.Hasher,
		Mint:               d.Mint,
		Vault:              d.Vault,
		MaxTotalClaim:      d.MaxTotalClaim,
		MaxNumNodes:        d.MaxNumNodes,
		TotalAmountClaimed: d.TotalAmountClaimed,
		NumNodesClaimed:    d.NumNodesClaimed,
		StartTs:            uint64(d.StartTs),
		EndTs:              uint64(d.EndTs),
		ClawbackStartTs:    uint64(d.ClawbackStartTs),
		ClawbackReceiver:   d.ClawbackReceiver,
		Admin:              d.Admin,
		ClawedBack:         d.ClawedBack,
	}
}

func (s *storedDistributor) toDistributor() *distributor.Distributor {
	return &distributor.Distributor{
		ID:                 s.ID,
		Version:            s.Version,
		Root:               s.Root,
		Hasher:             s.Hasher,
		Mint:               s.Mint,
		Vault:              s.Vault,
		MaxTotalClaim:      s.MaxTotalClaim,
		MaxNumNodes:        s.MaxNumNodes,
		TotalAmountClaimed: s.TotalAmountClaimed,
		NumNodesClaimed:    s.NumNodesClaimed,
		StartTs:            int64(s.StartTs),
		EndTs:              int64(s.EndTs),
		ClawbackStartTs:    int64(s.ClawbackStartTs),
		ClawbackReceiver:   s.ClawbackReceiver,
		Admin:              s.Admin,
		ClawedBack:         s.ClawedBack,
	}
}

type storedClaimStatus struct {
	Claimant              [20]byte
	LockedAmount          uint64
	LockedAmountWithdrawn uint64
	UnlockedAmount        uint64
}

func newStoredClaimStatus(c *distributor.ClaimStatus) *storedClaimStatus {
	return &storedClaimStatus{
		Claimant:              c.Claimant,
		LockedAmount:          c.LockedAmount,
		LockedAmountWithdrawn: c.LockedAmountWithdrawn,
		UnlockedAmount:        c.UnlockedAmount,
	}
}

func (s *storedClaimStatus) toClaimStatus() *distributor.ClaimStatus {
	return &distributor.ClaimStatus{
		Claimant:              s.Claimant,
		LockedAmount:          s.LockedAmount,
		LockedAmountWithdrawn: s.LockedAmountWithdrawn,
		UnlockedAmount:        s.UnlockedAmount,
	}
}

func decodeDistributor(data []byte) (*distributor.Distributor, error) {
	var stored storedDistributor
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode distributor: %w", err)
	}
	return stored.toDistributor(), nil
}

func decodeClaimStatus(data []byte) (*distributor.ClaimStatus, error) {
	var stored storedClaimStatus
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode claim status: %w", err)
	}
	return stored.toClaimStatus(), nil
}

func decodeBalance(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var amount uint64
	if err := rlp.DecodeBytes(data, &amount); err != nil {
		return 0, fmt.Errorf("state: decode balance: %w", err)
	}
	return amount, nil
}
