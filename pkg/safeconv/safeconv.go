// Package safeconv provides safe integer type conversion functions that panic on overflow.
package safeconv

import "math"

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// MustUint32ToInt converts uint32 to int, panics on overflow.
// Parser node positions and byte offsets arrive as uint32; a value that does
// not fit an int cannot index the source buffer.
func MustUint32ToInt(v uint32) int {
	if uint64(v) > uint64(MaxInt) {
		panic("safeconv: uint32 to int overflow")
	}

	return int(v)
}

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || uint64(v) > uint64(math.MaxUint32) {
		panic("safeconv: int to uint32 out of bounds")
	}

	return uint32(v)
}
