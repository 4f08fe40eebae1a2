package hashindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/buffer"
	"github.com/coredb/coredb/internal/disk"
)

func newTestTable(t *testing.T, capacity int) *Table[uint64, uint64] {
	t.Helper()

	dm, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	pool := buffer.NewPool(dm, capacity)
	return NewTable[uint64, uint64](pool, Uint64Codec{}, Uint64Codec{}, func(a, b uint64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
}

func TestTable_InsertGetRoundTrip(t *testing.T) {
	table := newTestTable(t, 32)

	ok, err := table.Insert(7, 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = table.Insert(7, 200)
	require.NoError(t, err)
	require.True(t, ok)

	vals, err := table.GetValue(7)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{100, 200}, vals)

	require.NoError(t, table.VerifyIntegrity())
}

func TestTable_Insert_RejectsExactDuplicate(t *testing.T) {
	table := newTestTable(t, 32)

	ok, err := table.Insert(1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = table.Insert(1, 1)
	require.NoError(t, err)
	require.False(t, ok)

	vals, err := table.GetValue(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, vals)
}

func TestTable_GetValue_UnknownKey_ReturnsEmpty(t *testing.T) {
	table := newTestTable(t, 32)

	vals, err := table.GetValue(999)
	require.NoError(t, err)
	require.Empty(t, vals)
}

func TestTable_RemoveThenGet_NoLongerFound(t *testing.T) {
	table := newTestTable(t, 32)

	_, err := table.Insert(5, 50)
	require.NoError(t, err)

	removed, err := table.Remove(5, 50)
	require.NoError(t, err)
	require.True(t, removed)

	vals, err := table.GetValue(5)
	require.NoError(t, err)
	require.Empty(t, vals)

	removed, err = table.Remove(5, 50)
	require.NoError(t, err)
	require.False(t, removed)
}

// TestTable_FillBucketForcesSplit drives enough distinct keys through the
// table that the initial bucket overflows, forcing at least one split and
// growing the global depth beyond its initial 0.
func TestTable_FillBucketForcesSplit(t *testing.T) {
	table := newTestTable(t, 64)

	capacity := BucketCapacity(Uint64Codec{}.EncodedSize() * 2)
	const n = 500

	inserted := make(map[uint64]bool, n)
	for i := uint64(0); i < n; i++ {
		ok, err := table.Insert(i, i*10)
		require.NoError(t, err)
		require.True(t, ok)
		inserted[i] = true
	}
	require.Greater(t, n, capacity, "test assumes more keys than a single bucket holds")

	depth, err := table.GlobalDepth()
	require.NoError(t, err)
	require.Greater(t, depth, uint32(0), "expected directory to have expanded past its initial depth")

	require.NoError(t, table.VerifyIntegrity())

	for i := uint64(0); i < n; i++ {
		vals, err := table.GetValue(i)
		require.NoError(t, err)
		require.Equal(t, []uint64{i * 10}, vals)
	}
}

// TestTable_EmptyingSplitBucketsAllowsShrink inserts enough keys to force
// directory growth, then removes them all and checks the global depth comes
// back down via merge + CanShrink.
func TestTable_EmptyingSplitBucketsAllowsShrink(t *testing.T) {
	table := newTestTable(t, 64)

	const n = 500
	for i := uint64(0); i < n; i++ {
		_, err := table.Insert(i, i)
		require.NoError(t, err)
	}

	grownDepth, err := table.GlobalDepth()
	require.NoError(t, err)
	require.Greater(t, grownDepth, uint32(0))

	for i := uint64(0); i < n; i++ {
		removed, err := table.Remove(i, i)
		require.NoError(t, err)
		require.True(t, removed)
	}

	require.NoError(t, table.VerifyIntegrity())

	shrunkDepth, err := table.GlobalDepth()
	require.NoError(t, err)
	require.Less(t, shrunkDepth, grownDepth)

	for i := uint64(0); i < n; i++ {
		vals, err := table.GetValue(i)
		require.NoError(t, err)
		require.Empty(t, vals)
	}
}

func TestTable_CapacityExhaustion_SurfacesPoolError(t *testing.T) {
	table := newTestTable(t, 2)

	var lastErr error
	for i := uint64(0); i < 5000; i++ {
		_, err := table.Insert(i, i)
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
}
