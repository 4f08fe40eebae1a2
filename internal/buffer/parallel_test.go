package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/disk"
)

func newTestParallelPool(t *testing.T, shards, perShardCapacity int) *ParallelPool {
	t.Helper()

	dm, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	return NewParallelPool(dm, shards, perShardCapacity)
}

func TestParallelPool_PageIDsCongruentToOwningShard(t *testing.T) {
	pp := newTestParallelPool(t, 3, 4)

	for i := 0; i < 9; i++ {
		page, err := pp.NewPage()
		require.NoError(t, err)
		require.NotNil(t, page)

		_, resident := pp.shards[int(int64(page.ID())%3)].pageTable[page.ID()]
		require.True(t, resident, "page %d is not held by shard %d", page.ID(), int64(page.ID())%3)
		_, err = pp.UnpinPage(page.ID(), false)
		require.NoError(t, err)
	}
}

func TestParallelPool_FetchRoutesToOwningShard(t *testing.T) {
	pp := newTestParallelPool(t, 2, 4)

	page, err := pp.NewPage()
	require.NoError(t, err)
	id := page.ID()
	_, err = pp.UnpinPage(id, false)
	require.NoError(t, err)

	fetched, err := pp.FetchPage(id)
	require.NoError(t, err)
	require.Equal(t, id, fetched.ID())
	_, err = pp.UnpinPage(id, false)
	require.NoError(t, err)
}

func TestParallelPool_ReopenedHeapFileSeedsEveryShardPastExistingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.db")

	dm, err := disk.Open(path)
	require.NoError(t, err)
	pp := NewParallelPool(dm, 3, 4)

	// Allocate ids 0..6, spanning every shard at least once.
	for i := 0; i < 7; i++ {
		page, err := pp.NewPage()
		require.NoError(t, err)
		_, err = pp.UnpinPage(page.ID(), true)
		require.NoError(t, err)
	}
	require.NoError(t, pp.FlushAll())
	require.NoError(t, dm.Close())

	reopened, err := disk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	fresh := NewParallelPool(reopened, 3, 4)
	seen := make(map[disk.PageID]bool)
	for i := 0; i < 3; i++ {
		page, err := fresh.NewPage()
		require.NoError(t, err)
		require.GreaterOrEqual(t, int64(page.ID()), int64(7))
		require.False(t, seen[page.ID()], "shard handed out a duplicate id")
		seen[page.ID()] = true
		_, err = fresh.UnpinPage(page.ID(), false)
		require.NoError(t, err)
	}
}

func TestParallelPool_FlushAllCoversEveryShard(t *testing.T) {
	pp := newTestParallelPool(t, 3, 4)

	ids := make([]disk.PageID, 0, 6)
	for i := 0; i < 6; i++ {
		page, err := pp.NewPage()
		require.NoError(t, err)
		page.Data()[0] = byte(i + 1)
		ids = append(ids, page.ID())
		_, err = pp.UnpinPage(page.ID(), true)
		require.NoError(t, err)
	}

	require.NoError(t, pp.FlushAll())

	for i, id := range ids {
		page, err := pp.FetchPage(id)
		require.NoError(t, err)
		require.False(t, page.IsDirty())
		require.Equal(t, byte(i+1), page.Data()[0])
		_, err = pp.UnpinPage(id, false)
		require.NoError(t, err)
	}
}
