// Package query publishes the seam interfaces a query-execution layer
// would call through to reach the storage/concurrency core: LockSource for
// lock-manager and transaction-context access, IndexSource for hash-index
// point lookups and mutations. Operator bodies (seq-scan, insert, update,
// delete, hash-join, nested-loop-join, aggregation, limit, distinct) are out
// of scope for this core; only the contracts they would be built against
// live here, in the same small-seam-interface style as the teacher's
// executorDB in internal/sql/executor/executor.go.
package query

import "github.com/coredb/coredb/internal/txn"

// TransactionContext is the subset of *txn.Transaction an operator consults
// to decide how to interleave lock acquisition with its own access pattern.
type TransactionContext interface {
	ID() uint64
	State() txn.State
	SetState(txn.State)
	IsolationLevel() txn.IsolationLevel
	IsSharedLocked(rid txn.RID) bool
	IsExclusiveLocked(rid txn.RID) bool
	SharedLockSet() []txn.RID
	ExclusiveLockSet() []txn.RID
	IndexWriteSet() []txn.IndexWriteRecord
	AppendIndexWrite(txn.IndexWriteRecord)
}

var _ TransactionContext = (*txn.Transaction)(nil)

// LockSource is what an operator needs from the lock manager plus a
// transaction context in order to obey two-phase locking under the
// transaction's isolation level. Seq-scan and the join operators call
// LockShared per tuple under anything stricter than READ_UNCOMMITTED;
// insert/update/delete call LockExclusive before mutating.
type LockSource interface {
	LockShared(t *txn.Transaction, rid txn.RID) error
	LockExclusive(t *txn.Transaction, rid txn.RID) error
	LockUpgrade(t *txn.Transaction, rid txn.RID) error
	Unlock(t *txn.Transaction, rid txn.RID) error
}

var _ LockSource = (*txn.LockManager)(nil)

// IndexSource is what an operator needs from a hash index to serve an
// equality predicate (seq-scan's index-accelerated path, hash-join's probe
// side) or to maintain a secondary index alongside a heap mutation
// (insert/update/delete). K and V mirror the index's own generic key/value
// types; an operator binds to one concrete instantiation per indexed
// column.
type IndexSource[K comparable, V comparable] interface {
	GetValue(key K) ([]V, error)
	Insert(key K, value V) (bool, error)
	Remove(key K, value V) (bool, error)
}
