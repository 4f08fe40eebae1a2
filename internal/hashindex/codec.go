package hashindex

import "github.com/coredb/coredb/internal/bx"

// Codec encodes and decodes a fixed-width value into page bytes. Keys and
// values are constrained to a fixed encoded size so bucket pages can compute
// their own capacity, matching the array-of-fixed-size-pairs layout the
// bucket page is grounded on.
type Codec[T any] interface {
	EncodedSize() int
	Encode(v T, dst []byte)
	Decode(src []byte) T
}

// Uint64Codec is the natural stand-in for the reference implementation's
// <int, int> instantiation.
type Uint64Codec struct{}

func (Uint64Codec) EncodedSize() int { return 8 }
func (Uint64Codec) Encode(v uint64, dst []byte) { bx.PutU64(dst, v) }
func (Uint64Codec) Decode(src []byte) uint64 { return bx.U64(src) }

// Int64Codec stores a signed value as its bit pattern.
type Int64Codec struct{}

func (Int64Codec) EncodedSize() int { return 8 }
func (Int64Codec) Encode(v int64, dst []byte) { bx.PutU64(dst, uint64(v)) }
func (Int64Codec) Decode(src []byte) int64 { return int64(bx.U64(src)) }

// FixedStringCodec encodes a string into exactly N bytes: truncated if
// longer, NUL-padded if shorter. Suitable for small fixed-width string keys.
type FixedStringCodec struct{ N int }

func (c FixedStringCodec) EncodedSize() int { return c.N }

func (c FixedStringCodec) Encode(v string, dst []byte) {
	n := copy(dst, v)
	for i := n; i < c.N; i++ {
		dst[i] = 0
	}
}

func (c FixedStringCodec) Decode(src []byte) string {
	end := 0
	for end < len(src) && src[end] != 0 {
		end++
	}
	return string(src[:end])
}
