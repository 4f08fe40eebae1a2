package hashindex

import "hash/fnv"

// hashBytes downcasts a 64-bit FNV hash to 32 bits, mirroring the reference
// implementation's "hash then downcast to uint32_t for directory indexing"
// helper.
func hashBytes(b []byte) uint32 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return uint32(h.Sum64())
}
