// Package buffer implements the fixed-capacity buffer pool: a frame cache
// mediating all access to on-disk pages, with LRU eviction and pin-count
// based reference tracking. ParallelPool shards several Pool instances for
// concurrent throughput.
package buffer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/coredb/coredb/internal/disk"
	"github.com/coredb/coredb/internal/wal"
)

// DefaultCapacity is used when a non-positive capacity is requested.
var DefaultCapacity = 128

// Pool is a single fixed-size buffer pool instance bound to one disk
// manager. A coarse mutex serializes the whole public API, matching the
// simple locking discipline of the pool this one is adapted from.
type Pool struct {
	dm  disk.Manager
	log *wal.Manager // opaque collaborator; nil is always valid

	mu        sync.Mutex
	frames    []*Page        // fixed-size slice, len == capacity, nil == free slot
	pageTable map[disk.PageID]int
	freeList  []int
	replacer  *LRUReplacer
	capacity  int

	// Sharding support for ParallelPool: this instance only ever allocates
	// page ids congruent to shardIndex mod shardCount, so page_id mod N
	// always equals the owning shard.
	shardIndex int
	shardCount int
	nextLocal  int64

	label string // diagnostic only, never part of routing or identity
}

// NewPool creates a buffer pool of the given capacity backed by dm.
func NewPool(dm disk.Manager, capacity int) *Pool {
	return newShardedPool(dm, capacity, 0, 1, "")
}

func newShardedPool(dm disk.Manager, capacity, shardIndex, shardCount int, label string) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	freeList := make([]int, capacity)
	for i := range freeList {
		freeList[i] = capacity - 1 - i
	}
	return &Pool{
		dm:         dm,
		frames:     make([]*Page, capacity),
		pageTable:  make(map[disk.PageID]int, capacity),
		freeList:   freeList,
		replacer:   NewLRUReplacer(capacity),
		capacity:   capacity,
		shardIndex: shardIndex,
		shardCount: shardCount,
		nextLocal:  nextLocalFor(dm.PageCount(), shardIndex, shardCount),
		label:      label,
	}
}

// nextLocalFor seeds a shard's local allocation counter so that the first id
// it hands out is the smallest one congruent to shardIndex mod shardCount
// that is still >= the disk manager's already-allocated page count. Without
// this, a Pool built over a non-empty heap file would start counting from
// id 0 again and overwrite existing pages.
func nextLocalFor(pageCount int64, shardIndex, shardCount int) int64 {
	if pageCount <= int64(shardIndex) {
		return 0
	}
	span := pageCount - int64(shardIndex)
	n := span / int64(shardCount)
	if span%int64(shardCount) != 0 {
		n++
	}
	return n
}

// SetLogManager wires an optional page-image WAL. Correctness of the pool
// never depends on it; a nil log is always valid.
func (p *Pool) SetLogManager(m *wal.Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = m
}

func (p *Pool) allocatePageIDLocked() disk.PageID {
	id := disk.PageID(p.nextLocal*int64(p.shardCount) + int64(p.shardIndex))
	p.nextLocal++
	return id
}

// NewPage allocates a page id, pins a fresh zeroed frame for it, and returns
// the pinned page. Fails with ErrNoEvictableFrame if no frame can be freed.
func (p *Pool) NewPage() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameIdx, err := p.acquireFrameLocked()
	if err != nil {
		slog.Debug("buffer: NewPage could not acquire frame", "shard", p.label, "err", err)
		return nil, err
	}

	id := p.allocatePageIDLocked()
	page := &Page{}
	page.reset(id)
	page.pinAtom = 1

	p.frames[frameIdx] = page
	p.pageTable[id] = frameIdx

	slog.Debug("buffer: NewPage", "page_id", id, "frame", frameIdx, "shard", p.label)
	return page, nil
}

// FetchPage returns the page for id, pinned, loading it from disk if it is
// not already resident.
func (p *Pool) FetchPage(id disk.PageID) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[id]; ok {
		page := p.frames[idx]
		if page.pinAtom == 0 {
			p.replacer.Pin(idx)
		}
		page.pinAtom++
		slog.Debug("buffer: FetchPage hit", "page_id", id, "frame", idx, "pin", page.pinAtom)
		return page, nil
	}

	frameIdx, err := p.acquireFrameLocked()
	if err != nil {
		slog.Debug("buffer: FetchPage could not acquire frame", "page_id", id, "err", err)
		return nil, err
	}

	page := &Page{}
	page.reset(id)
	if err := p.dm.ReadPage(id, page.data[:]); err != nil {
		p.freeList = append(p.freeList, frameIdx)
		return nil, fmt.Errorf("buffer: fetch page %d: %w", id, err)
	}
	page.pinAtom = 1

	p.frames[frameIdx] = page
	p.pageTable[id] = frameIdx

	slog.Debug("buffer: FetchPage loaded from disk", "page_id", id, "frame", frameIdx)
	return page, nil
}

// acquireFrameLocked returns a frame index ready for a new page identity,
// preferring the free list, else evicting via the LRU replacer. The caller
// holds p.mu.
func (p *Pool) acquireFrameLocked() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	victimIdx, err := p.replacer.Victim()
	if err != nil {
		return -1, ErrNoEvictableFrame
	}

	victim := p.frames[victimIdx]
	if victim.dirty {
		if err := p.dm.WritePage(victim.id, victim.data[:]); err != nil {
			return -1, fmt.Errorf("buffer: evict flush page %d: %w", victim.id, err)
		}
		slog.Debug("buffer: evicted dirty frame, flushed", "page_id", victim.id, "frame", victimIdx,
			"bytes", humanize.Bytes(uint64(disk.PageSize)))
	}
	delete(p.pageTable, victim.id)
	p.frames[victimIdx] = nil
	return victimIdx, nil
}

// UnpinPage decrements a page's pin count, ORing isDirty into its dirty
// flag. When the count reaches zero the frame becomes evictable. Returns
// false if the page is not resident or was already unpinned.
func (p *Pool) UnpinPage(id disk.PageID, isDirty bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return false, nil
	}
	page := p.frames[idx]
	if page.pinAtom <= 0 {
		return false, nil
	}

	if isDirty {
		page.dirty = true
	}
	page.pinAtom--
	if page.pinAtom == 0 {
		p.replacer.Unpin(idx)
	}
	return true, nil
}

// FlushPage writes the resident page to disk and clears its dirty flag.
// Non-resident pages (including InvalidPageID) return (false, nil).
func (p *Pool) FlushPage(id disk.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !id.Valid() {
		return false, nil
	}
	idx, ok := p.pageTable[id]
	if !ok {
		return false, nil
	}
	page := p.frames[idx]
	if err := p.dm.WritePage(id, page.data[:]); err != nil {
		return false, fmt.Errorf("buffer: flush page %d: %w", id, err)
	}
	if p.log != nil {
		if _, err := p.log.AppendPageImage(id, page.data[:]); err != nil {
			slog.Warn("buffer: wal append failed", "page_id", id, "err", err)
		}
	}
	page.dirty = false
	return true, nil
}

// FlushAll flushes every resident dirty page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, page := range p.frames {
		if page == nil || !page.dirty {
			continue
		}
		if err := p.dm.WritePage(page.id, page.data[:]); err != nil {
			return fmt.Errorf("buffer: flush all, page %d frame %d: %w", page.id, idx, err)
		}
		if p.log != nil {
			if _, err := p.log.AppendPageImage(page.id, page.data[:]); err != nil {
				slog.Warn("buffer: wal append failed", "page_id", page.id, "err", err)
			}
		}
		page.dirty = false
	}
	return nil
}

// DeletePage deallocates id. Returns true if the page was not resident, or
// was resident and unpinned and is now freed; false if it is still pinned.
func (p *Pool) DeletePage(id disk.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return true, nil
	}
	page := p.frames[idx]
	if page.pinAtom > 0 {
		return false, ErrPagePinned
	}

	if page.dirty {
		if err := p.dm.WritePage(id, page.data[:]); err != nil {
			return false, fmt.Errorf("buffer: delete flush page %d: %w", id, err)
		}
	}

	delete(p.pageTable, id)
	p.frames[idx] = nil
	p.replacer.Remove(idx)
	p.freeList = append(p.freeList, idx)
	return true, nil
}
