package distributor

import (
	"fmt"

	"merkledrop/merkle"
)

// SecondsPerDay is the minimum gap between the vesting end and the start of
// the clawback window.
const SecondsPerDay int64 = 24 * 60 * 60

// MinClawbackDelay is the minimum number of seconds between EndTs and
// ClawbackStartTs.
const MinClawbackDelay = SecondsPerDay

// Distributor is the long-lived commitment for one (mint, version) airdrop.
// ID is derived from the mint and version and doubles as the derivation
// metadata of the record.
type Distributor struct {
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
	StartTs            int64
	EndTs              int64
	ClawbackStartTs    int64
	ClawbackReceiver   [20]byte
	Admin              [20]byte
	ClawedBack         bool
}

// Clone returns a copy callers can mutate without touching the stored value.
func (d *Distributor) Clone() *Distributor {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// ClaimStatus tracks one claimant's withdrawals. Its presence in state is the
// marker that the first claim happened.
type ClaimStatus struct {
	Claimant              [20]byte
	LockedAmount          uint64
	LockedAmountWithdrawn uint64
	UnlockedAmount        uint64
}

func (c *ClaimStatus) Clone() *ClaimStatus {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// ClaimState is the lifecycle position of a (claimant, distributor) pair.
type ClaimState uint8

const (
	ClaimUnclaimed ClaimState = iota
	ClaimPartiallyClaimed
	ClaimFullyClaimed
)

func (s ClaimState) String() string {
	switch s {
	case ClaimUnclaimed:
		return "unclaimed"
	case ClaimPartiallyClaimed:
		return "partially_claimed"
	case ClaimFullyClaimed:
		return "fully_claimed"
	default:
		return "unknown"
	}
}

// StateOf derives the lifecycle state from an optional record.
func StateOf(status *ClaimStatus) ClaimState {
	if status == nil {
		return ClaimUnclaimed
	}
	if status.LockedAmountWithdrawn >= status.LockedAmount {
		return ClaimFullyClaimed
	}
	return ClaimPartiallyClaimed
}

// Matches reports through ErrParamsMismatch the first field in which the
// stored distributor differs from p. Re-running a creation against an
// existing (mint, version) is only safe when everything matches.
func (d *Distributor) Matches(p CreateParams) error {
	hasher := p.Hasher
	if hasher == "" {
		hasher = merkle.DefaultHasher.Name()
	}
	switch {
	case d.Mint != p.Mint || d.Version != p.Version:
		return fmt.Errorf("%w: identity", ErrParamsMismatch)
	case d.Root != p.Root:
		return fmt.Errorf("%w: root", ErrParamsMismatch)
	case d.Hasher != hasher:
		return fmt.Errorf("%w: hasher", ErrParamsMismatch)
	case d.MaxTotalClaim != p.MaxTotalClaim:
		return fmt.Errorf("%w: max_total_claim", ErrParamsMismatch)
	case d.MaxNumNodes != p.MaxNumNodes:
		return fmt.Errorf("%w: max_num_nodes", ErrParamsMismatch)
	case d.StartTs != p.StartTs:
		return fmt.Errorf("%w: start_ts", ErrParamsMismatch)
	case d.EndTs != p.EndTs:
		return fmt.Errorf("%w: end_ts", ErrParamsMismatch)
	case d.ClawbackStartTs != p.ClawbackStartTs:
		return fmt.Errorf("%w: clawback_start_ts", ErrParamsMismatch)
	case d.ClawbackReceiver != p.ClawbackReceiver:
		return fmt.Errorf("%w: clawback_receiver", ErrParamsMismatch)
	case d.Admin != p.Admin:
		return fmt.Errorf("%w: admin", ErrParamsMismatch)
	}
	return nil
}

// CreateParams carries the inputs of create_distributor.
type CreateParams struct {
	Version          uint64
	Root             [32]byte
	Hasher           string
	Mint             [20]byte
	MaxTotalClaim    uint64
	MaxNumNodes      uint64
	StartTs          int64
	EndTs            int64
	ClawbackStartTs  int64
	ClawbackReceiver [20]byte
	Admin            [20]byte
}
