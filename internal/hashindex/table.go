// Package hashindex implements a disk-resident extendible hash index on top
// of the buffer pool: a directory page routing keys to bucket pages, with
// bucket splits expanding the directory and bucket merges shrinking it.
package hashindex

import (
	"sync"

	"github.com/coredb/coredb/internal/buffer"
	"github.com/coredb/coredb/internal/disk"
)

// Pool is the subset of the buffer pool the hash table depends on. Both
// *buffer.Pool and *buffer.ParallelPool satisfy it.
type Pool interface {
	NewPage() (*buffer.Page, error)
	FetchPage(id disk.PageID) (*buffer.Page, error)
	UnpinPage(id disk.PageID, isDirty bool) (bool, error)
	DeletePage(id disk.PageID) (bool, error)
}

// Table is an extendible hash table keyed by K with set-semantics values V
// (duplicate (key,value) pairs are rejected, distinct values per key are
// not). Comparator and codecs are supplied as capabilities rather than
// method constraints, generalizing the reference implementation's template
// instantiation per key/value/comparator triple.
type Table[K comparable, V comparable] struct {
	pool Pool
	cmp  func(a, b K) int

	keyCodec Codec[K]
	valCodec Codec[V]

	tableLatch sync.RWMutex

	initMu          sync.Mutex
	directoryPageID disk.PageID
}

// NewTable creates an empty table. The directory and first bucket page are
// allocated lazily on first use.
func NewTable[K comparable, V comparable](pool Pool, keyCodec Codec[K], valCodec Codec[V], cmp func(a, b K) int) *Table[K, V] {
	return &Table[K, V]{
		pool:            pool,
		cmp:             cmp,
		keyCodec:        keyCodec,
		valCodec:        valCodec,
		directoryPageID: disk.InvalidPageID,
	}
}

func (t *Table[K, V]) hash(key K) uint32 {
	buf := make([]byte, t.keyCodec.EncodedSize())
	t.keyCodec.Encode(key, buf)
	return hashBytes(buf)
}

// ensureDirectoryPageID lazily allocates the directory page and its initial
// bucket page at slot 0, global depth 0.
func (t *Table[K, V]) ensureDirectoryPageID() (disk.PageID, error) {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	if t.directoryPageID.Valid() {
		return t.directoryPageID, nil
	}

	dirPage, err := t.pool.NewPage()
	if err != nil {
		return disk.InvalidPageID, err
	}
	bucketPage, err := t.pool.NewPage()
	if err != nil {
		_, _ = t.pool.DeletePage(dirPage.ID())
		return disk.InvalidPageID, err
	}

	dir := NewDirectoryView(dirPage.Data())
	dir.SetBucketPageID(0, bucketPage.ID())
	dir.SetLocalDepth(0, 0)

	_, _ = t.pool.UnpinPage(bucketPage.ID(), false)

	t.directoryPageID = dirPage.ID()
	_, _ = t.pool.UnpinPage(dirPage.ID(), true)
	return t.directoryPageID, nil
}

func (t *Table[K, V]) fetchDirectory() (*buffer.Page, *DirectoryPage, error) {
	id, err := t.ensureDirectoryPageID()
	if err != nil {
		return nil, nil, err
	}
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, nil, err
	}
	return page, NewDirectoryView(page.Data()), nil
}

func (t *Table[K, V]) fetchBucket(id disk.PageID) (*buffer.Page, *BucketPage[K, V], error) {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, nil, err
	}
	return page, NewBucketView[K, V](page.Data(), t.keyCodec, t.valCodec), nil
}

// GetValue returns every value stored under key.
func (t *Table[K, V]) GetValue(key K) ([]V, error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), false) }()

	idx := dir.KeyToDirectoryIndex(t.hash(key))
	bucketID := dir.BucketPageID(idx)

	bucketPage, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return nil, err
	}
	defer func() { _, _ = t.pool.UnpinPage(bucketID, false) }()

	bucketPage.Latch.RLock()
	defer bucketPage.Latch.RUnlock()

	return bucket.GetValue(key, t.cmp), nil
}

// Insert adds (key,value). Returns false if that exact pair already exists.
// A full target bucket triggers one or more splits (SplitInsert).
func (t *Table[K, V]) Insert(key K, value V) (bool, error) {
	ok, retry, err := t.tryInsertShared(key, value)
	if err != nil || !retry {
		return ok, err
	}
	return t.insertViaSplit(key, value)
}

// tryInsertShared attempts a non-restructuring insert under the shared table
// latch. retry is true when the target bucket was full and the caller must
// escalate to an exclusive latch.
func (t *Table[K, V]) tryInsertShared(key K, value V) (ok bool, retry bool, err error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return false, false, err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), false) }()

	idx := dir.KeyToDirectoryIndex(t.hash(key))
	bucketID := dir.BucketPageID(idx)

	bucketPage, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return false, false, err
	}
	bucketPage.Latch.Lock()
	defer bucketPage.Latch.Unlock()

	if bucket.IsFull() {
		_, _ = t.pool.UnpinPage(bucketID, false)
		return false, true, nil
	}
	ok = bucket.Insert(key, value, t.cmp)
	_, _ = t.pool.UnpinPage(bucketID, ok)
	return ok, false, nil
}

// insertViaSplit re-verifies the target bucket under the exclusive table
// latch (the world may have changed since the shared attempt released its
// latches) and splits as many times as needed to make room.
func (t *Table[K, V]) insertViaSplit(key K, value V) (bool, error) {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return false, err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), true) }()

	idx := dir.KeyToDirectoryIndex(t.hash(key))

	for {
		bucketID := dir.BucketPageID(idx)
		bucketPage, bucket, err := t.fetchBucket(bucketID)
		if err != nil {
			return false, err
		}
		bucketPage.Latch.Lock()

		if !bucket.IsFull() {
			ok := bucket.Insert(key, value, t.cmp)
			bucketPage.Latch.Unlock()
			_, _ = t.pool.UnpinPage(bucketID, true)
			return ok, nil
		}

		if err := t.splitBucket(dir, idx, bucketID, bucket); err != nil {
			bucketPage.Latch.Unlock()
			_, _ = t.pool.UnpinPage(bucketID, false)
			return false, err
		}
		bucketPage.Latch.Unlock()
		_, _ = t.pool.UnpinPage(bucketID, true)

		// The key may now route to the freshly split-off image bucket.
		idx = dir.KeyToDirectoryIndex(t.hash(key))
	}
}

// splitBucket increments the split target's local depth (expanding the
// directory first if it was already at global depth), allocates an image
// bucket, rehashes entries between the two, and repoints every directory
// slot that shared the old local-depth pattern. The caller holds the
// exclusive table latch and the split bucket's write latch.
func (t *Table[K, V]) splitBucket(dir *DirectoryPage, splitIdx uint32, splitPageID disk.PageID, split *BucketPage[K, V]) error {
	globalDepth := dir.GlobalDepth()
	localDepth := dir.LocalDepth(splitIdx)

	if uint32(localDepth) == globalDepth {
		if !dir.CanGrow() {
			return ErrDirectoryFull
		}
		dir.IncrGlobalDepth()
		globalDepth++
	}
	dir.IncrLocalDepth(splitIdx)
	localDepth++

	imagePage, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	imagePage.Latch.Lock()
	image := NewBucketView[K, V](imagePage.Data(), t.keyCodec, t.valCodec)

	localMask := uint32(1)<<localDepth - 1
	splitStart := splitIdx & localMask
	imageStart := splitStart ^ (uint32(1) << (localDepth - 1))

	for i := 0; i < split.Capacity(); i++ {
		if !split.IsReadable(i) {
			continue
		}
		k := split.KeyAt(i)
		v := split.ValueAt(i)
		if t.hash(k)&localMask != splitStart {
			image.Insert(k, v, t.cmp)
			split.Remove(k, v, t.cmp)
		}
	}

	maxIndex := dir.Size()
	step := uint32(1) << localDepth
	for i := splitStart; i < maxIndex; i += step {
		dir.SetLocalDepth(i, localDepth)
	}
	for i := imageStart; i < maxIndex; i += step {
		dir.SetLocalDepth(i, localDepth)
		dir.SetBucketPageID(i, imagePage.ID())
	}

	imagePage.Latch.Unlock()
	_, _ = t.pool.UnpinPage(imagePage.ID(), true)
	return nil
}

// Remove deletes the (key,value) pair if present. An emptied bucket with
// nonzero local depth triggers a merge, after which the directory shrinks
// for as long as CanShrink holds.
func (t *Table[K, V]) Remove(key K, value V) (bool, error) {
	result, needMerge, err := t.removeShared(key, value)
	if err != nil || !needMerge {
		return result, err
	}
	if err := t.mergeAndShrink(key); err != nil {
		return result, err
	}
	return result, nil
}

func (t *Table[K, V]) removeShared(key K, value V) (result bool, needMerge bool, err error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return false, false, err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), false) }()

	idx := dir.KeyToDirectoryIndex(t.hash(key))
	bucketID := dir.BucketPageID(idx)

	bucketPage, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return false, false, err
	}
	bucketPage.Latch.Lock()

	result = bucket.Remove(key, value, t.cmp)
	localDepth := dir.LocalDepth(idx)
	needMerge = localDepth != 0 && bucket.IsEmpty()

	bucketPage.Latch.Unlock()
	_, _ = t.pool.UnpinPage(bucketID, result)
	return result, needMerge, nil
}

// mergeAndShrink re-resolves key against the directory under the exclusive
// table latch rather than trusting the directory index removeShared saw
// under its shared latch: a concurrent Remove on a different key can shrink
// the directory in the gap between the two, which would leave a stale index
// pointing at a slot the smaller directory no longer routes through.
func (t *Table[K, V]) mergeAndShrink(key K) error {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), true) }()

	idx := dir.KeyToDirectoryIndex(t.hash(key))
	bucketID := dir.BucketPageID(idx)
	bucketPage, bucket, err := t.fetchBucket(bucketID)
	if err != nil {
		return err
	}
	bucketPage.Latch.Lock()
	localDepth := dir.LocalDepth(idx)
	stillEmpty := localDepth != 0 && bucket.IsEmpty()
	bucketPage.Latch.Unlock()
	_, _ = t.pool.UnpinPage(bucketID, false)

	// merge deletes the now-orphaned bucket page via the buffer pool, which
	// refuses to delete a pinned page; the bucket must already be unpinned
	// by the time we reach it.
	if stillEmpty {
		imageIdx := idx ^ (uint32(1) << (localDepth - 1))
		if err := t.merge(dir, idx, imageIdx); err != nil {
			return err
		}
	}

	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}
	return nil
}

// merge repoints every directory slot sharing mergeIndex's local-depth
// pattern to imagePageID, decrements those slots' (and the image's) local
// depth, and deletes the now-orphaned merge bucket. A single Remove call can
// only ever empty one bucket, so merges do not recurse.
func (t *Table[K, V]) merge(dir *DirectoryPage, mergeIndex, imageIndex uint32) error {
	localDepth := dir.LocalDepth(mergeIndex)
	if dir.LocalDepth(imageIndex) != localDepth {
		return nil
	}
	mergePageID := dir.BucketPageID(mergeIndex)
	imagePageID := dir.BucketPageID(imageIndex)
	if mergePageID == imagePageID {
		return nil
	}

	maxIndex := dir.Size()
	step := uint32(1) << localDepth
	localMask := step - 1
	mergeStart := mergeIndex & localMask
	imageStart := imageIndex & localMask

	for i := mergeStart; i < maxIndex; i += step {
		dir.SetBucketPageID(i, imagePageID)
		dir.DecrLocalDepth(i)
	}
	for i := imageStart; i < maxIndex; i += step {
		dir.DecrLocalDepth(i)
	}

	_, err := t.pool.DeletePage(mergePageID)
	return err
}

// VerifyIntegrity checks the directory's structural invariants.
func (t *Table[K, V]) VerifyIntegrity() error {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), false) }()
	return dir.VerifyIntegrity()
}

// GlobalDepth reports the directory's current global depth.
func (t *Table[K, V]) GlobalDepth() (uint32, error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = t.pool.UnpinPage(dirPage.ID(), false) }()
	return dir.GlobalDepth(), nil
}
