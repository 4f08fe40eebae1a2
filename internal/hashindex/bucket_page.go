package hashindex

import "github.com/coredb/coredb/internal/disk"

// BucketCapacity returns the number of fixed-width (key,value) slots a
// bucket page can hold for entries of the given combined size, after
// reserving two parallel bitmaps (occupied, readable) sized to match.
func BucketCapacity(slotSize int) int {
	if slotSize <= 0 {
		return 0
	}
	cap := (disk.PageSize * 8) / (8*slotSize + 2)
	for cap > 0 && cap*slotSize+2*ceilDiv8(cap) > disk.PageSize {
		cap--
	}
	return cap
}

func ceilDiv8(n int) int { return (n + 7) / 8 }

// BucketPage is a typed view over a pinned page's raw bytes: a fixed array
// of (key,value) slots plus occupied/readable bitmaps. readable implies
// occupied; insert sets both, remove clears only readable.
type BucketPage[K comparable, V comparable] struct {
	buf      []byte
	keyCodec Codec[K]
	valCodec Codec[V]
	slotSize int
	capacity int
}

// NewBucketView wraps buf as a bucket page for the given key/value codecs.
func NewBucketView[K comparable, V comparable](buf []byte, kc Codec[K], vc Codec[V]) *BucketPage[K, V] {
	slotSize := kc.EncodedSize() + vc.EncodedSize()
	return &BucketPage[K, V]{
		buf:      buf,
		keyCodec: kc,
		valCodec: vc,
		slotSize: slotSize,
		capacity: BucketCapacity(slotSize),
	}
}

// Capacity is BUCKET_ARRAY_SIZE for this page's codec pair.
func (b *BucketPage[K, V]) Capacity() int { return b.capacity }

func (b *BucketPage[K, V]) occupiedBitmap() []byte {
	return b.buf[0:ceilDiv8(b.capacity)]
}

func (b *BucketPage[K, V]) readableBitmap() []byte {
	off := ceilDiv8(b.capacity)
	return b.buf[off : off+ceilDiv8(b.capacity)]
}

func (b *BucketPage[K, V]) slotOffset(i int) int {
	return 2*ceilDiv8(b.capacity) + i*b.slotSize
}

func bitMask(i int) (byteIdx int, mask byte) {
	return i >> 3, 1 << uint(7-(i&7))
}

func (b *BucketPage[K, V]) IsOccupied(i int) bool {
	byteIdx, mask := bitMask(i)
	return b.occupiedBitmap()[byteIdx]&mask != 0
}

func (b *BucketPage[K, V]) setOccupied(i int) {
	byteIdx, mask := bitMask(i)
	b.occupiedBitmap()[byteIdx] |= mask
}

func (b *BucketPage[K, V]) IsReadable(i int) bool {
	byteIdx, mask := bitMask(i)
	return b.readableBitmap()[byteIdx]&mask != 0
}

func (b *BucketPage[K, V]) setReadable(i int) {
	byteIdx, mask := bitMask(i)
	b.readableBitmap()[byteIdx] |= mask
}

func (b *BucketPage[K, V]) clearReadable(i int) {
	byteIdx, mask := bitMask(i)
	b.readableBitmap()[byteIdx] &^= mask
}

// KeyAt decodes the key stored at slot i, regardless of readability.
func (b *BucketPage[K, V]) KeyAt(i int) K {
	off := b.slotOffset(i)
	return b.keyCodec.Decode(b.buf[off : off+b.keyCodec.EncodedSize()])
}

// ValueAt decodes the value stored at slot i, regardless of readability.
func (b *BucketPage[K, V]) ValueAt(i int) V {
	off := b.slotOffset(i) + b.keyCodec.EncodedSize()
	return b.valCodec.Decode(b.buf[off : off+b.valCodec.EncodedSize()])
}

func (b *BucketPage[K, V]) setAt(i int, key K, value V) {
	off := b.slotOffset(i)
	b.keyCodec.Encode(key, b.buf[off:off+b.keyCodec.EncodedSize()])
	b.valCodec.Encode(value, b.buf[off+b.keyCodec.EncodedSize():off+b.slotSize])
}

// GetValue returns every readable value whose key compares equal to key.
func (b *BucketPage[K, V]) GetValue(key K, cmp func(a, b K) int) []V {
	var out []V
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(i) && cmp(key, b.KeyAt(i)) == 0 {
			out = append(out, b.ValueAt(i))
		}
	}
	return out
}

// Insert rejects an exact (key,value) duplicate already readable, otherwise
// writes into the first non-readable slot. Returns false if the bucket is
// full or the pair is already present, matching the reference bucket's
// set-semantics insert.
func (b *BucketPage[K, V]) Insert(key K, value V, cmp func(a, b K) int) bool {
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(i) && cmp(b.KeyAt(i), key) == 0 && b.ValueAt(i) == value {
			return false
		}
	}
	for i := 0; i < b.capacity; i++ {
		if !b.IsReadable(i) {
			b.setAt(i, key, value)
			b.setOccupied(i)
			b.setReadable(i)
			return true
		}
	}
	return false
}

// Remove clears the readable bit on the first matching readable slot.
func (b *BucketPage[K, V]) Remove(key K, value V, cmp func(a, b K) int) bool {
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(i) && cmp(b.KeyAt(i), key) == 0 && b.ValueAt(i) == value {
			b.clearReadable(i)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot is readable.
func (b *BucketPage[K, V]) IsFull() bool {
	for i := 0; i < b.capacity; i++ {
		if !b.IsReadable(i) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no slot is readable.
func (b *BucketPage[K, V]) IsEmpty() bool {
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(i) {
			return false
		}
	}
	return true
}

// NumReadable counts readable slots.
func (b *BucketPage[K, V]) NumReadable() int {
	n := 0
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(i) {
			n++
		}
	}
	return n
}
