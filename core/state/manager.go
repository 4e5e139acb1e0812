package state

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"merkledrop/native/bank"
	"merkledrop/native/distributor"
	"merkledrop/storage"
)

// ErrAlreadyExists is joined with the engine error when an insert-if-absent
// write finds the key already present.
var ErrAlreadyExists = errors.New("state: record already exists")

// Manager persists distributors, claim records and token balances in a
// storage.Database. Operations on one distributor are serialised; operations
// on different distributors run concurrently and only contend briefly when
// they commit.
type Manager struct {
	db storage.Database

	locksMu sync.Mutex
	locks   map[[32]byte]*keyedLock

	// commitMu orders batch writes so balance deltas are re-applied against
	// the latest committed value.
	commitMu sync.Mutex
}

// NewManager creates a state manager operating on db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, locks: make(map[[32]byte]*keyedLock)}
}

// keyedLock is held in Manager.locks only while some invocation waits on or
// holds it, so lookups of arbitrary ids leave nothing behind.
type keyedLock struct {
	mu   sync.Mutex
	refs int
}

var _ distributor.Store = (*Manager)(nil)

func (m *Manager) lock(id [32]byte) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &keyedLock{}
		m.locks[id] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}

// Update runs fn in a transaction scoped to distributor id and commits every
// write as a single batch when fn returns nil.
func (m *Manager) Update(id [32]byte, fn func(distributor.State) error) error {
	defer m.lock(id)()
	t := newTx(m)
	if err := fn(t); err != nil {
		return err
	}
	return m.commit(t)
}

// View runs fn against a transaction that is always discarded.
func (m *Manager) View(id [32]byte, fn func(distributor.State) error) error {
	defer m.lock(id)()
	return fn(newTx(m))
}

// TokenBalance reads the committed balance of owner in mint.
func (m *Manager) TokenBalance(mint, owner [20]byte) (uint64, error) {
	return m.readBalance(balanceKey(mint, owner))
}

// MintTo credits amount to owner. It backs local funding and genesis-style
// setup; distributor operations only move existing balances.
func (m *Manager) MintTo(mint, owner [20]byte, amount uint64) error {
	t := newTx(m)
	if err := bank.Mint(t, mint, owner, amount); err != nil {
		return err
	}
	return m.commit(t)
}

// Distributors lists the ids of every stored distributor in creation order.
func (m *Manager) Distributors() ([][32]byte, error) {
	return m.loadDistributorList()
}

func (m *Manager) loadDistributorList() ([][32]byte, error) {
	data, err := m.db.Get(distributorListKey)
	if errors.Is(err, storage.ErrNotFound) {
		return [][32]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load distributor list: %w", err)
	}
	var ids [][32]byte
	if err := rlp.DecodeBytes(data, &ids); err != nil {
		return nil, fmt.Errorf("state: decode distributor list: %w", err)
	}
	return ids, nil
}

func (m *Manager) readBalance(key []byte) (uint64, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state: load balance: %w", err)
	}
	return decodeBalance(data)
}

func (m *Manager) commit(t *tx) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	batch := m.db.NewBatch()
	for _, w := range t.writes {
		batch.Put(w.key, w.value)
	}
	for _, entry := range t.balances {
		if entry.value == entry.base {
			continue
		}
		current, err := m.readBalance(entry.key)
		if err != nil {
			return err
		}
		var next uint64
		if entry.value > entry.base {
			delta := entry.value - entry.base
			if current > math.MaxUint64-delta {
				return bank.ErrBalanceOverflow
			}
			next = current + delta
		} else {
			delta := entry.base - entry.value
			if current < delta {
				return bank.ErrInsufficientBalance
			}
			next = current - delta
		}
		encoded, err := rlp.EncodeToBytes(next)
		if err != nil {
			return err
		}
		batch.Put(entry.key, encoded)
	}
	if len(t.created) > 0 {
		ids, err := m.loadDistributorList()
		if err != nil {
			return err
		}
		ids = append(ids, t.created...)
		encoded, err := rlp.EncodeToBytes(ids)
		if err != nil {
			return err
		}
		batch.Put(distributorListKey, encoded)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

type pendingWrite struct {
	key   []byte
	value []byte
}

// balanceEntry records the balance observed when the transaction first
// touched the key and the value it wants to leave behind. Commit applies the
// difference to whatever is stored at that point.
type balanceEntry struct {
	key   []byte
	base  uint64
	value uint64
}

// tx buffers record writes and balance changes until commit. Reads see the
// transaction's own writes first.
type tx struct {
	m        *Manager
	writes   map[string]*pendingWrite
	balances map[string]*balanceEntry
	created  [][32]byte
}

func newTx(m *Manager) *tx {
	return &tx{
		m:        m,
		writes:   make(map[string]*pendingWrite),
		balances: make(map[string]*balanceEntry),
	}
}

func (t *tx) get(key []byte) ([]byte, bool, error) {
	if w, ok := t.writes[string(key)]; ok {
		return w.value, true, nil
	}
	data, err := t.m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *tx) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.writes[string(key)] = &pendingWrite{key: key, value: encoded}
	return nil
}

func (t *tx) balance(mint, owner [20]byte) (*balanceEntry, error) {
	key := balanceKey(mint, owner)
	if entry, ok := t.balances[string(key)]; ok {
		return entry, nil
	}
	current, err := t.m.readBalance(key)
	if err != nil {
		return nil, err
	}
	entry := &balanceEntry{key: key, base: current, value: current}
	t.balances[string(key)] = entry
	return entry, nil
}

func (t *tx) TokenBalance(mint, owner [20]byte) (uint64, error) {
	entry, err := t.balance(mint, owner)
	if err != nil {
		return 0, err
	}
	return entry.value, nil
}

func (t *tx) SetTokenBalance(mint, owner [20]byte, amount uint64) error {
	entry, err := t.balance(mint, owner)
	if err != nil {
		return err
	}
	entry.value = amount
	return nil
}

func (t *tx) DistributorGet(id [32]byte) (*distributor.Distributor, bool, error) {
	data, ok, err := t.get(distributorKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	d, err := decodeDistributor(data)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (t *tx) DistributorCreate(d *distributor.Distributor) error {
	if d == nil {
		return fmt.Errorf("state: nil distributor")
	}
	_, exists, err := t.get(distributorKey(d.ID))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %w", distributor.ErrDistributorExists, ErrAlreadyExists)
	}
	if err := t.put(distributorKey(d.ID), newStoredDistributor(d)); err != nil {
		return err
	}
	t.created = append(t.created, d.ID)
	return nil
}

func (t *tx) DistributorPut(d *distributor.Distributor) error {
	if d == nil {
		return fmt.Errorf("state: nil distributor")
	}
	return t.put(distributorKey(d.ID), newStoredDistributor(d))
}

func (t *tx) ClaimStatusGet(id [32]byte, claimant [20]byte) (*distributor.ClaimStatus, bool, error) {
	data, ok, err := t.get(claimStatusKey(distributor.ClaimStatusID(claimant, id)))
	if err != nil || !ok {
		return nil, false, err
	}
	status, err := decodeClaimStatus(data)
	if err != nil {
		return nil, false, err
	}
	return status, true, nil
}

func (t *tx) ClaimStatusCreate(id [32]byte, status *distributor.ClaimStatus) error {
	if status == nil {
		return fmt.Errorf("state: nil claim status")
	}
	key := claimStatusKey(distributor.ClaimStatusID(status.Claimant, id))
	_, exists, err := t.get(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %w", distributor.ErrAlreadyClaimed, ErrAlreadyExists)
	}
	return t.put(key, newStoredClaimStatus(status))
}

func (t *tx) ClaimStatusPut(id [32]byte, status *distributor.ClaimStatus) error {
	if status == nil {
		return fmt.Errorf("state: nil claim status")
	}
	return t.put(claimStatusKey(distributor.ClaimStatusID(status.Claimant, id)), newStoredClaimStatus(status))
}
