package hashindex

import (
	"errors"
	"fmt"

	"github.com/coredb/coredb/internal/bx"
	"github.com/coredb/coredb/internal/disk"
)

// MaxDepth bounds the directory's global depth; DirectorySlots = 2^MaxDepth
// is the fixed size of the parallel bucket_page_ids/local_depths arrays, the
// same "array big enough for the deepest directory we'll ever need" design
// the on-disk directory page is grounded on.
const (
	MaxDepth       = 9
	DirectorySlots = 1 << MaxDepth

	dirOffGlobalDepth = 0
	dirOffBucketIDs   = dirOffGlobalDepth + 4
	dirOffLocalDepths = dirOffBucketIDs + DirectorySlots*4
)

// ErrIntegrityViolation is returned by VerifyIntegrity when the directory's
// invariants do not hold.
var ErrIntegrityViolation = errors.New("hashindex: directory integrity violation")

// DirectoryPage is a typed view over a pinned page's raw bytes: global
// depth, and parallel bucket_page_ids[]/local_depths[] arrays indexed by
// directory slot. Only slots below Size() are live.
type DirectoryPage struct {
	buf []byte
}

// NewDirectoryView wraps buf (exactly disk.PageSize bytes) as a directory
// page. A freshly zeroed buffer already represents global depth 0.
func NewDirectoryView(buf []byte) *DirectoryPage {
	return &DirectoryPage{buf: buf}
}

func (d *DirectoryPage) GlobalDepth() uint32 {
	return bx.U32At(d.buf, dirOffGlobalDepth)
}

func (d *DirectoryPage) setGlobalDepth(v uint32) {
	bx.PutU32At(d.buf, dirOffGlobalDepth, v)
}

// GlobalDepthMask returns the low-bits mask selecting a directory slot.
func (d *DirectoryPage) GlobalDepthMask() uint32 {
	return (1 << d.GlobalDepth()) - 1
}

// Size is the number of live directory slots: 2^global_depth.
func (d *DirectoryPage) Size() uint32 {
	return 1 << d.GlobalDepth()
}

// KeyToDirectoryIndex selects the directory slot for a 32-bit key hash.
func (d *DirectoryPage) KeyToDirectoryIndex(hash uint32) uint32 {
	return hash & d.GlobalDepthMask()
}

func (d *DirectoryPage) bucketIDOffset(idx uint32) int {
	return dirOffBucketIDs + int(idx)*4
}

func (d *DirectoryPage) localDepthOffset(idx uint32) int {
	return dirOffLocalDepths + int(idx)
}

// BucketPageID returns the bucket page id stored at directory slot idx.
func (d *DirectoryPage) BucketPageID(idx uint32) disk.PageID {
	v := bx.U32At(d.buf, d.bucketIDOffset(idx))
	if v == invalidBucketMarker {
		return disk.InvalidPageID
	}
	return disk.PageID(v)
}

func (d *DirectoryPage) SetBucketPageID(idx uint32, id disk.PageID) {
	v := uint32(id)
	if !id.Valid() {
		v = invalidBucketMarker
	}
	bx.PutU32At(d.buf, d.bucketIDOffset(idx), v)
}

// invalidBucketMarker is stored on-page for disk.InvalidPageID; page ids in
// this toy system never approach the top of the uint32 range.
const invalidBucketMarker = ^uint32(0)

func (d *DirectoryPage) LocalDepth(idx uint32) uint8 {
	return d.buf[d.localDepthOffset(idx)]
}

func (d *DirectoryPage) SetLocalDepth(idx uint32, v uint8) {
	d.buf[d.localDepthOffset(idx)] = v
}

func (d *DirectoryPage) IncrLocalDepth(idx uint32) {
	d.buf[d.localDepthOffset(idx)]++
}

func (d *DirectoryPage) DecrLocalDepth(idx uint32) {
	d.buf[d.localDepthOffset(idx)]--
}

// IncrGlobalDepth doubles the live slot count by copying every live slot's
// bucket id and local depth to its mirror at i+2^old_depth.
func (d *DirectoryPage) IncrGlobalDepth() {
	old := d.GlobalDepth()
	n := uint32(1) << (old + 1)
	for i := uint32(1) << old; i < n; i++ {
		mirror := i - (1 << old)
		d.SetBucketPageID(i, d.BucketPageID(mirror))
		d.SetLocalDepth(i, d.LocalDepth(mirror))
	}
	d.setGlobalDepth(old + 1)
}

// DecrGlobalDepth halves the live slot count. Callers ensure CanShrink first.
func (d *DirectoryPage) DecrGlobalDepth() {
	d.setGlobalDepth(d.GlobalDepth() - 1)
}

// CanGrow reports whether the directory has room to double: global depth
// must stay within MaxDepth since the on-page bucket_page_ids/local_depths
// arrays are fixed at DirectorySlots = 2^MaxDepth entries.
func (d *DirectoryPage) CanGrow() bool {
	return d.GlobalDepth() < MaxDepth
}

// CanShrink reports whether every live slot's local depth is strictly below
// global depth, i.e. no bucket still needs the top bit of the index.
func (d *DirectoryPage) CanShrink() bool {
	gd := d.GlobalDepth()
	n := d.Size()
	for i := uint32(0); i < n; i++ {
		if uint32(d.LocalDepth(i)) == gd {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks: every live local depth <= global depth; every
// distinct bucket page has exactly 2^(global_depth-local_depth) pointers to
// it; all slots pointing to the same bucket share the same local depth.
func (d *DirectoryPage) VerifyIntegrity() error {
	gd := d.GlobalDepth()
	n := d.Size()

	countByPage := make(map[disk.PageID]uint32, n)
	ldByPage := make(map[disk.PageID]uint8, n)

	for i := uint32(0); i < n; i++ {
		pid := d.BucketPageID(i)
		ld := d.LocalDepth(i)
		if uint32(ld) > gd {
			return fmt.Errorf("%w: slot %d local depth %d exceeds global depth %d", ErrIntegrityViolation, i, ld, gd)
		}
		countByPage[pid]++
		if prev, ok := ldByPage[pid]; ok && prev != ld {
			return fmt.Errorf("%w: page %d has mismatched local depths %d and %d", ErrIntegrityViolation, pid, prev, ld)
		}
		ldByPage[pid] = ld
	}

	for pid, count := range countByPage {
		ld := ldByPage[pid]
		want := uint32(1) << (gd - uint32(ld))
		if count != want {
			return fmt.Errorf("%w: page %d has %d pointers, want %d", ErrIntegrityViolation, pid, count, want)
		}
	}
	return nil
}
