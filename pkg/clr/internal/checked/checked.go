// Package checked provides overflow-detecting arithmetic for offsets and
// sizes read from untrusted images.
package checked

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Add returns a+b and false if the sum overflows T.
func Add[T constraints.Unsigned](a, b T) (T, bool) {
	s := a + b
	return s, s >= a
}

// Mul returns a*b and false if the product overflows T.
func Mul[T constraints.Unsigned](a, b T) (T, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	return p, p/b == a
}

// AlignUp rounds v up to a multiple of align, which must be a power of two.
func AlignUp[T constraints.Unsigned](v, align T) (T, bool) {
	if align == 0 {
		return v, true
	}
	s, ok := Add(v, align-1)
	if !ok {
		return 0, false
	}
	return s &^ (align - 1), true
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// IsAligned reports whether v is a multiple of align (a power of two).
func IsAligned[T constraints.Unsigned](v, align T) bool {
	return v&(align-1) == 0
}

// Within reports whether [off, off+n) lies inside [0, limit).
func Within(off, n, limit uint64) bool {
	end, carry := bits.Add64(off, n, 0)
	return carry == 0 && end <= limit
}
