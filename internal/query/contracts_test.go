package query_test

import (
	"testing"

	"github.com/coredb/coredb/internal/disk"
	"github.com/coredb/coredb/internal/hashindex"
	"github.com/coredb/coredb/internal/query"
	"github.com/coredb/coredb/internal/txn"
	"github.com/stretchr/testify/require"
)

// This blank assignment is only type-checked: it documents that
// *hashindex.Table[uint64, uint64] satisfies query.IndexSource for the
// natural <uint64,uint64> instantiation an equality-predicate operator
// would bind to.
var _ query.IndexSource[uint64, uint64] = (*hashindex.Table[uint64, uint64])(nil)

func TestLockSourceSatisfiedByLockManager(t *testing.T) {
	lm := txn.NewLockManager()
	var ls query.LockSource = lm
	t1 := txn.NewTransaction(1, txn.RepeatableRead)
	rid := txn.RID{PageID: disk.PageID(0), Slot: 0}

	require.NoError(t, ls.LockExclusive(t1, rid))
	require.NoError(t, ls.Unlock(t1, rid))
}

func TestTransactionContextSatisfiedByTransaction(t *testing.T) {
	var tc query.TransactionContext = txn.NewTransaction(7, txn.ReadCommitted)
	require.Equal(t, uint64(7), tc.ID())
	require.Equal(t, txn.StateGrowing, tc.State())
}
