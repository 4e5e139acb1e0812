package distributor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"merkledrop/core/events"
	"merkledrop/core/types"
	"merkledrop/merkle"
	"merkledrop/native/bank"
)

// State is the transactional view handed to the engine for one distributor.
// Writes become visible only if the enclosing Store.Update commits.
type State interface {
	bank.Ledger
	DistributorGet(id [32]byte) (*Distributor, bool, error)
	// DistributorCreate fails with ErrDistributorExists if id is taken.
	DistributorCreate(d *Distributor) error
	DistributorPut(d *Distributor) error
	ClaimStatusGet(id [32]byte, claimant [20]byte) (*ClaimStatus, bool, error)
	// ClaimStatusCreate fails with ErrAlreadyClaimed if the record exists.
	ClaimStatusCreate(id [32]byte, status *ClaimStatus) error
	ClaimStatusPut(id [32]byte, status *ClaimStatus) error
}

// Store serialises operations per distributor. Update runs fn against a
// fresh transaction and commits it atomically when fn returns nil; any
// error discards every write fn made.
type Store interface {
	Update(id [32]byte, fn func(State) error) error
	View(id [32]byte, fn func(State) error) error
}

// Engine executes distributor operations against a Store. Events are only
// emitted after the owning transaction committed.
type Engine struct {
	store   Store
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetStore replaces the state backend.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emitAll(pending []*types.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, evt := range pending {
		if evt != nil {
			e.emitter.Emit(distributorEvent{evt: evt})
		}
	}
}

// update runs fn inside a transaction on id and emits the events it queued
// once the transaction committed.
func (e *Engine) update(id [32]byte, fn func(State, *[]*types.Event) error) error {
	if e == nil || e.store == nil {
		return ErrNilState
	}
	var pending []*types.Event
	err := e.store.Update(id, func(st State) error {
		pending = pending[:0]
		return fn(st, &pending)
	})
	if err != nil {
		return err
	}
	e.emitAll(pending)
	return nil
}

func loadDistributor(st State, id [32]byte) (*Distributor, error) {
	d, ok, err := st.DistributorGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || d == nil {
		return nil, ErrDistributorNotFound
	}
	return d, nil
}

func validateTiming(start, end, clawbackStart int64) error {
	if start > end {
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidTiming, start, end)
	}
	if end > math.MaxInt64-MinClawbackDelay {
		return fmt.Errorf("%w: end %d too large", ErrInvalidTiming, end)
	}
	if clawbackStart < end+MinClawbackDelay {
		return fmt.Errorf("%w: clawback start %d must be at least one day after end %d", ErrInvalidTiming, clawbackStart, end)
	}
	return nil
}

// CreateDistributor stores a new distributor for (mint, version). The caller
// becomes irrelevant after this point; only Admin may govern the record.
func (e *Engine) CreateDistributor(params CreateParams) (*Distributor, error) {
	if err := validateTiming(params.StartTs, params.EndTs, params.ClawbackStartTs); err != nil {
		return nil, err
	}
	if _, err := merkle.HasherByName(params.Hasher); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHasher, params.Hasher)
	}
	if params.Admin == ([20]byte{}) {
		return nil, fmt.Errorf("%w: admin required", ErrInvalidAddress)
	}
	if params.ClawbackReceiver == ([20]byte{}) {
		return nil, fmt.Errorf("%w: clawback receiver required", ErrInvalidAddress)
	}
	id := DistributorID(params.Mint, params.Version)
	hasher := params.Hasher
	if hasher == "" {
		hasher = merkle.DefaultHasher.Name()
	}
	d := &Distributor{
		ID:               id,
		Version:          params.Version,
		Root:             params.Root,
		Hasher:           hasher,
		Mint:             params.Mint,
		Vault:            DefaultVault(id),
		MaxTotalClaim:    params.MaxTotalClaim,
		MaxNumNodes:      params.MaxNumNodes,
		StartTs:          params.StartTs,
		EndTs:            params.EndTs,
		ClawbackStartTs:  params.ClawbackStartTs,
		ClawbackReceiver: params.ClawbackReceiver,
		Admin:            params.Admin,
	}
	err := e.update(id, func(st State, pending *[]*types.Event) error {
		if err := st.DistributorCreate(d); err != nil {
			return err
		}
		*pending = append(*pending, NewCreatedEvent(d))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Fund moves amount from the funder's balance into the distributor vault. A
// clawed back distributor accepts no further funds.
func (e *Engine) Fund(id [32]byte, from [20]byte, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		// Nothing can leave the vault once it was swept.
		if d.ClawedBack {
			return ErrAlreadyClawedBack
		}
		if err := bank.Transfer(st, d.Mint, from, d.Vault, amount); err != nil {
			return err
		}
		balance, err := st.TokenBalance(d.Mint, d.Vault)
		if err != nil {
			return err
		}
		*pending = append(*pending, NewFundedEvent(id, from, amount, balance))
		return nil
	})
}

// NewClaim records the first claim of claimant, transfers the unlocked amount
// and registers the locked amount for vesting. The leaf is rebuilt from the
// authenticated claimant so a proof can only ever pay its own leaf.
func (e *Engine) NewClaim(id [32]byte, claimant [20]byte, unlocked, locked uint64, proof []merkle.Hash) (*ClaimStatus, error) {
	now := e.now()
	var created *ClaimStatus
	err := e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		if d.ClawedBack {
			return ErrClaimExpired
		}
		hasher, err := merkle.HasherByName(d.Hasher)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidHasher, d.Hasher)
		}
		leaf := merkle.Leaf{Claimant: claimant, Unlocked: unlocked, Locked: locked}
		if !merkle.VerifyLeaf(hasher, leaf, proof, merkle.Hash(d.Root)) {
			return ErrInvalidProof
		}
		if d.NumNodesClaimed >= d.MaxNumNodes {
			return ErrMaxClaimsExceeded
		}
		status := &ClaimStatus{
			Claimant:       claimant,
			LockedAmount:   locked,
			UnlockedAmount: unlocked,
		}
		if err := st.ClaimStatusCreate(id, status); err != nil {
			return err
		}
		total, ok := addUint64(d.TotalAmountClaimed, unlocked)
		if !ok {
			return ErrArithmeticOverflow
		}
		if total > d.MaxTotalClaim {
			return ErrMaxTotalClaimExceeded
		}
		d.TotalAmountClaimed = total
		d.NumNodesClaimed++
		if err := bank.Transfer(st, d.Mint, d.Vault, claimant, unlocked); err != nil {
			return err
		}
		if err := st.DistributorPut(d); err != nil {
			return err
		}
		created = status.Clone()
		*pending = append(*pending, NewClaimEvent(id, status, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ClaimLocked withdraws whatever part of the claimant's locked amount has
// vested since the last withdrawal and returns the amount transferred.
func (e *Engine) ClaimLocked(id [32]byte, claimant [20]byte) (uint64, error) {
	now := e.now()
	var paid uint64
	err := e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		status, ok, err := st.ClaimStatusGet(id, claimant)
		if err != nil {
			return err
		}
		if !ok || status == nil {
			return ErrNoClaim
		}
		if d.ClawedBack {
			return ErrClaimExpired
		}
		amount, err := status.AmountWithdrawable(now, d.StartTs, d.EndTs)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrNothingToClaim
		}
		// amount is vested minus withdrawn, so withdrawn never passes the
		// locked allocation.
		withdrawn, ok := addUint64(status.LockedAmountWithdrawn, amount)
		if !ok {
			return ErrArithmeticOverflow
		}
		total, ok := addUint64(d.TotalAmountClaimed, amount)
		if !ok {
			return ErrArithmeticOverflow
		}
		if total > d.MaxTotalClaim {
			return ErrMaxTotalClaimExceeded
		}
		status.LockedAmountWithdrawn = withdrawn
		d.TotalAmountClaimed = total
		if err := bank.Transfer(st, d.Mint, d.Vault, claimant, amount); err != nil {
			return err
		}
		if err := st.ClaimStatusPut(id, status); err != nil {
			return err
		}
		if err := st.DistributorPut(d); err != nil {
			return err
		}
		paid = amount
		var remaining int64
		if now < d.EndTs {
			remaining = d.EndTs - now
		}
		*pending = append(*pending, NewClaimedEvent(id, claimant, amount, withdrawn, remaining))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

// Clawback sweeps the whole vault balance to the clawback receiver once the
// clawback window opened. It is permissionless and succeeds at most once.
func (e *Engine) Clawback(id [32]byte) (uint64, error) {
	now := e.now()
	var swept uint64
	err := e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		if now < d.ClawbackStartTs {
			return ErrClawbackNotReady
		}
		if d.ClawedBack {
			return ErrAlreadyClawedBack
		}
		balance, err := st.TokenBalance(d.Mint, d.Vault)
		if err != nil {
			return err
		}
		if err := bank.Transfer(st, d.Mint, d.Vault, d.ClawbackReceiver, balance); err != nil {
			return err
		}
		d.ClawedBack = true
		if err := st.DistributorPut(d); err != nil {
			return err
		}
		swept = balance
		*pending = append(*pending, NewClawbackEvent(id, d.ClawbackReceiver, balance))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// SetAdmin hands governance of the distributor to next.
func (e *Engine) SetAdmin(id [32]byte, caller, next [20]byte) error {
	if next == ([20]byte{}) {
		return fmt.Errorf("%w: admin required", ErrInvalidAddress)
	}
	return e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		if caller != d.Admin {
			return ErrUnauthorized
		}
		previous := d.Admin
		d.Admin = next
		if err := st.DistributorPut(d); err != nil {
			return err
		}
		*pending = append(*pending, NewAdminUpdatedEvent(id, previous, next))
		return nil
	})
}

// SetClawbackReceiver changes where a future clawback sweeps the vault.
func (e *Engine) SetClawbackReceiver(id [32]byte, caller, next [20]byte) error {
	if next == ([20]byte{}) {
		return fmt.Errorf("%w: clawback receiver required", ErrInvalidAddress)
	}
	return e.update(id, func(st State, pending *[]*types.Event) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		if caller != d.Admin {
			return ErrUnauthorized
		}
		previous := d.ClawbackReceiver
		d.ClawbackReceiver = next
		if err := st.DistributorPut(d); err != nil {
			return err
		}
		*pending = append(*pending, NewClawbackReceiverUpdatedEvent(id, previous, next))
		return nil
	})
}

// Distributor returns a snapshot of the stored distributor.
func (e *Engine) Distributor(id [32]byte) (*Distributor, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilState
	}
	var out *Distributor
	err := e.store.View(id, func(st State) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		out = d.Clone()
		return nil
	})
	return out, err
}

// ClaimStatus returns the claimant's record, or nil when it never claimed.
func (e *Engine) ClaimStatus(id [32]byte, claimant [20]byte) (*ClaimStatus, error) {
	if e == nil || e.store == nil {
		return nil, ErrNilState
	}
	var out *ClaimStatus
	err := e.store.View(id, func(st State) error {
		if _, err := loadDistributor(st, id); err != nil {
			return err
		}
		status, ok, err := st.ClaimStatusGet(id, claimant)
		if err != nil {
			return err
		}
		if ok {
			out = status.Clone()
		}
		return nil
	})
	return out, err
}

// VaultBalance returns the token balance held by the distributor vault.
func (e *Engine) VaultBalance(id [32]byte) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, ErrNilState
	}
	var balance uint64
	err := e.store.View(id, func(st State) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		balance, err = st.TokenBalance(d.Mint, d.Vault)
		return err
	})
	return balance, err
}

// Withdrawable reports the amount ClaimLocked would pay claimant right now.
func (e *Engine) Withdrawable(id [32]byte, claimant [20]byte) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, ErrNilState
	}
	now := e.now()
	var amount uint64
	err := e.store.View(id, func(st State) error {
		d, err := loadDistributor(st, id)
		if err != nil {
			return err
		}
		status, ok, err := st.ClaimStatusGet(id, claimant)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoClaim
		}
		if d.ClawedBack {
			return nil
		}
		amount, err = status.AmountWithdrawable(now, d.StartTs, d.EndTs)
		return err
	})
	return amount, err
}

func addUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// IsRejection reports whether err is one of the engine's precondition
// failures rather than a storage fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrDistributorNotFound, ErrDistributorExists, ErrInvalidProof,
		ErrMaxClaimsExceeded, ErrMaxTotalClaimExceeded, ErrAlreadyClaimed,
		ErrNoClaim, ErrNothingToClaim, ErrClaimExpired, ErrClawbackNotReady,
		ErrAlreadyClawedBack, ErrUnauthorized, ErrInvalidTiming,
		ErrArithmeticOverflow, ErrInvalidAddress, ErrInvalidHasher,
		ErrInvalidAmount, bank.ErrInsufficientBalance, bank.ErrBalanceOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
