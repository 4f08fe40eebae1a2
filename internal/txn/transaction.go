// Package txn provides transaction state and two-phase lock management for
// concurrent access to records. It implements wound-wait deadlock
// prevention: an older transaction never waits on a younger one, it aborts
// it instead, so the wait-for graph is acyclic by construction and no
// cycle-detection pass is ever needed.
package txn

import (
	"errors"
	"sync"

	"github.com/coredb/coredb/internal/disk"
)

var (
	// ErrTwoPhaseViolation is returned when a lock is requested outside the
	// growing phase (or a shared lock under READ_UNCOMMITTED).
	ErrTwoPhaseViolation = errors.New("txn: lock requested outside growing phase")
	// ErrAborted is returned when the calling transaction was wound-wait
	// aborted by an older transaction, or was already aborted on entry.
	ErrAborted = errors.New("txn: transaction aborted")
	// ErrNotLocked is returned by Unlock when the transaction holds no lock
	// on the given record.
	ErrNotLocked = errors.New("txn: record not locked by this transaction")
)

// RID identifies a record: the page it lives on plus its slot within that
// page.
type RID struct {
	PageID disk.PageID
	Slot   uint32
}

// IsolationLevel controls which lock acquisitions are permitted.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// State is a transaction's position in the two-phase locking protocol, or
// its terminal outcome.
type State int

const (
	StateGrowing State = iota
	StateShrinking
	StateCommitted
	StateAborted
)

// Transaction tracks one transaction's isolation level, 2PL phase, and the
// two lock sets the lock manager maintains on its behalf.
type Transaction struct {
	id        uint64
	isolation IsolationLevel

	mu             sync.Mutex
	state          State
	sharedLocks    map[RID]struct{}
	exclusiveLocks map[RID]struct{}
	indexWrites    []IndexWriteRecord
}

// IndexWriteRecord logs an index mutation performed during the transaction,
// so an abort can be rolled back by replaying inverse operations.
type IndexWriteRecord struct {
	RID     RID
	Deleted bool
}

// NewTransaction constructs a transaction with the given id (smaller ids
// are older; callers must hand out ids in increasing order, e.g. from an
// atomic counter) and isolation level. New transactions start GROWING.
func NewTransaction(id uint64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		state:          StateGrowing,
		sharedLocks:    make(map[RID]struct{}),
		exclusiveLocks: make(map[RID]struct{}),
	}
}

func (t *Transaction) ID() uint64                      { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel   { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) IsSharedLocked(rid RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

func (t *Transaction) IsExclusiveLocked(rid RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLocks[rid]
	return ok
}

// SharedLockSet returns a snapshot of the records currently shared-locked.
func (t *Transaction) SharedLockSet() []RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RID, 0, len(t.sharedLocks))
	for rid := range t.sharedLocks {
		out = append(out, rid)
	}
	return out
}

// ExclusiveLockSet returns a snapshot of the records currently
// exclusive-locked.
func (t *Transaction) ExclusiveLockSet() []RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RID, 0, len(t.exclusiveLocks))
	for rid := range t.exclusiveLocks {
		out = append(out, rid)
	}
	return out
}

// IndexWriteSet returns the transaction's append-only log of index
// mutations, in the order they were appended.
func (t *Transaction) IndexWriteSet() []IndexWriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IndexWriteRecord, len(t.indexWrites))
	copy(out, t.indexWrites)
	return out
}

// AppendIndexWrite records an index mutation for possible rollback.
func (t *Transaction) AppendIndexWrite(rec IndexWriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexWrites = append(t.indexWrites, rec)
}

func (t *Transaction) addShared(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

func (t *Transaction) addExclusive(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLocks[rid] = struct{}{}
}

func (t *Transaction) removeShared(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
}

func (t *Transaction) removeExclusive(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.exclusiveLocks, rid)
}

func (t *Transaction) upgradeSharedToExclusive(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	t.exclusiveLocks[rid] = struct{}{}
}
