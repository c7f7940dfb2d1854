// Package contract holds assertions over the reader's own invariants.
// A failing assertion panics with an *errs.InvariantError.
package contract

import (
	"fmt"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

// Check panics when cond is false.
func Check(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(&errs.InvariantError{Msg: fmt.Sprintf(format, args...)})
	}
}

// NotNil panics when v is nil.
func NotNil[T any](v *T, what string) *T {
	if v == nil {
		panic(&errs.InvariantError{Msg: what + " is nil"})
	}
	return v
}

// InRange panics unless lo <= v < hi.
func InRange(v, lo, hi int, what string) {
	if v < lo || v >= hi {
		panic(&errs.InvariantError{Msg: fmt.Sprintf("%s %d not in [%d, %d)", what, v, lo, hi)})
	}
}

// MinLen panics when b is shorter than n bytes.
func MinLen(b []byte, n int, what string) {
	if len(b) < n {
		panic(&errs.InvariantError{Msg: fmt.Sprintf("%s: need %d bytes, have %d", what, n, len(b))})
	}
}
