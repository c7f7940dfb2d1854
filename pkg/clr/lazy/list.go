// Package lazy provides read-only collections whose elements are built on
// first access and published at most once.
//
// Concurrent first accesses to the same element may each build a value;
// the first one published wins and every caller receives it. Losing
// values are handed to the discard hook, if any, and never escape.
package lazy

import (
	"sync/atomic"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// List is a fixed-size, index-addressable collection of lazily built
// elements.
type List[T any] struct {
	slots       []atomic.Pointer[T]
	build       func(int) (*T, error)
	invalidated func() error
	discard     func(*T)
}

// Option configures a List or Value.
type Option[T any] func(*config[T])

type config[T any] struct {
	discard func(*T)
}

// WithDiscard registers a hook that receives values built by callers that
// lost the race to publish.
func WithDiscard[T any](f func(*T)) Option[T] {
	return func(c *config[T]) {
		c.discard = f
	}
}

// NewList creates a List of count elements. Element i is built by passing
// row(i) to factory. invalidated is consulted before every access and its
// error, if any, is returned instead of an element.
func NewList[R, T any](count int, row func(int) (R, error), factory func(R) (*T, error), invalidated func() error, opts ...Option[T]) *List[T] {
	contract.Check(count >= 0, "negative count %d", count)
	var c config[T]
	for _, opt := range opts {
		opt(&c)
	}
	return &List[T]{
		slots: make([]atomic.Pointer[T], count),
		build: func(i int) (*T, error) {
			r, err := row(i)
			if err != nil {
				return nil, err
			}
			return factory(r)
		},
		invalidated: invalidated,
		discard:     c.discard,
	}
}

// Count returns the number of elements.
func (l *List[T]) Count() (int, error) {
	if err := l.invalidated(); err != nil {
		return 0, err
	}
	return len(l.slots), nil
}

// Get returns element i, building it if no value has been published yet.
// Factory errors are returned and not cached.
func (l *List[T]) Get(i int) (*T, error) {
	if err := l.invalidated(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(l.slots) {
		return nil, errs.OutOfRange(i, len(l.slots))
	}

	slot := &l.slots[i]
	if v := slot.Load(); v != nil {
		return v, nil
	}
	v, err := l.build(i)
	if err != nil {
		return nil, err
	}
	if slot.CompareAndSwap(nil, v) {
		return v, nil
	}
	if l.discard != nil {
		l.discard(v)
	}
	return slot.Load(), nil
}

// All returns every element in index order, stopping at the first error.
func (l *List[T]) All() ([]*T, error) {
	n, err := l.Count()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, n)
	for i := 0; i < n; i++ {
		v, err := l.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Loaded calls f for every element that has already been published,
// without building any.
func (l *List[T]) Loaded(f func(int, *T)) {
	for i := range l.slots {
		if v := l.slots[i].Load(); v != nil {
			f(i, v)
		}
	}
}
