package testutils

import (
	"bytes"
	"math/rand"
)

// Pattern returns n bytes of deterministic pseudo-random data, so tests can
// tell a misplaced sector apart from a correct one.
func Pattern(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// IsZero reports whether every byte of buf is zero.
func IsZero(buf []byte) bool {
	return bytes.Count(buf, []byte{0}) == len(buf)
}
