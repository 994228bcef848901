package common

import (
	"golang.org/x/crypto/blake2b"
)

// ComputeHash computes the BLAKE2b-256 hash of the given data.
func ComputeHash(data []byte) []byte {
	hash := blake2b.Sum256(data)
	return hash[:]
}

// Blake2Hash wraps ComputeHash as a Hash, for callers that need to derive a
// deterministic identifier from arbitrary content (test fixtures, and
// anything hashing a tipset's serialized form outside the graph itself).
func Blake2Hash(data []byte) Hash {
	return BytesToHash(ComputeHash(data))
}

// IsNilHash reports whether h is the zero value, used throughout the branch
// graph to tell "no parent hash" apart from a real one.
func IsNilHash(h Hash) bool {
	return h == Hash{}
}
