package buffer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/coredb/coredb/internal/disk"
)

// ParallelPool shards a fixed-capacity buffer pool across N independent
// instances, routing by page_id mod N. This spreads lock contention across
// shards at the cost of each shard only ever seeing a fraction of traffic.
type ParallelPool struct {
	mu     sync.Mutex
	shards []*Pool
	start  int // round-robin starting shard for NewPage, persists across calls
}

// NewParallelPool creates n shards of the given per-shard capacity, all
// backed by the same disk manager (pages are not partitioned on disk; only
// the id space each shard allocates from is).
func NewParallelPool(dm disk.Manager, n, perShardCapacity int) *ParallelPool {
	if n <= 0 {
		n = 1
	}
	shards := make([]*Pool, n)
	for i := range shards {
		label := uuid.NewString()
		shards[i] = newShardedPool(dm, perShardCapacity, i, n, label)
		slog.Debug("buffer: parallel pool shard created", "shard_index", i, "shard_label", label)
	}
	return &ParallelPool{shards: shards}
}

func (pp *ParallelPool) shardFor(id disk.PageID) *Pool {
	n := len(pp.shards)
	idx := int(int64(id) % int64(n))
	if idx < 0 {
		idx += n
	}
	return pp.shards[idx]
}

// NewPage tries each shard starting from a persisted round-robin index,
// advancing the index by one after every call regardless of outcome.
func (pp *ParallelPool) NewPage() (*Page, error) {
	pp.mu.Lock()
	n := len(pp.shards)
	start := pp.start
	pp.start = (pp.start + 1) % n
	pp.mu.Unlock()

	for i := 0; i < n; i++ {
		shard := pp.shards[(start+i)%n]
		page, err := shard.NewPage()
		if err == nil {
			return page, nil
		}
	}
	return nil, ErrPoolExhausted
}

// FetchPage routes to the shard owning page_id mod N.
func (pp *ParallelPool) FetchPage(id disk.PageID) (*Page, error) {
	return pp.shardFor(id).FetchPage(id)
}

// UnpinPage routes to the owning shard.
func (pp *ParallelPool) UnpinPage(id disk.PageID, isDirty bool) (bool, error) {
	return pp.shardFor(id).UnpinPage(id, isDirty)
}

// FlushPage routes to the owning shard.
func (pp *ParallelPool) FlushPage(id disk.PageID) (bool, error) {
	return pp.shardFor(id).FlushPage(id)
}

// DeletePage routes to the owning shard.
func (pp *ParallelPool) DeletePage(id disk.PageID) (bool, error) {
	return pp.shardFor(id).DeletePage(id)
}

// FlushAll flushes every shard.
func (pp *ParallelPool) FlushAll() error {
	for i, shard := range pp.shards {
		if err := shard.FlushAll(); err != nil {
			return fmt.Errorf("buffer: parallel flush all, shard %d: %w", i, err)
		}
	}
	return nil
}

// ShardCount reports the number of shards.
func (pp *ParallelPool) ShardCount() int { return len(pp.shards) }
