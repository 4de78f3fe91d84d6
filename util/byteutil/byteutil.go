// Package byteutil carries the teacher's RandomBytes helper, used by
// the chunk engine to fill non-secret padding bytes (spec.md §4.4).
// Not for key or nonce material - primitives generates those with
// crypto/rand and the curve libraries' own generators.
package byteutil

import (
	"math/rand"
	"time"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

func RandomBytes(length int) []byte {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return b
}
