package hamt

import (
	"github.com/minio/sha256-simd"
)

const byteBits = 8

// keyToIndices slices the SHA-256 digest of key into consecutive bitWidth
// bit indices, MSB first, stopping at the largest multiple of bitWidth that
// fits the digest. When n is non-negative it instead returns only the
// indices from bit offset max_bits-(n-1)*bitWidth onward, i.e. the last n-1
// indices of the full path — used during leaf promotion, with n the number
// of indices left at the overflowing leaf's depth, to re-hash
// already-present keys at the next level down.
func keyToIndices(key Key, bitWidth uint, n int) []uint64 {
	sum := sha256.Sum256([]byte(key))

	maxBits := byteBits * len(sum)
	maxBits -= maxBits % int(bitWidth)

	offset := 0
	if n >= 0 {
		offset = maxBits - (n-1)*int(bitWidth)
	}

	var indices []uint64
	for offset+int(bitWidth) <= maxBits {
		var index uint64
		for i := 0; i < int(bitWidth); i, offset = i+1, offset+1 {
			index <<= 1
			bit := (sum[offset/byteBits] >> (byteBits - 1 - uint(offset%byteBits))) & 1
			index |= uint64(bit)
		}
		indices = append(indices, index)
	}
	return indices
}
