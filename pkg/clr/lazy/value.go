package lazy

import "sync/atomic"

// Value is a single lazily built value with the same publish-once rules
// as a List element.
type Value[T any] struct {
	p atomic.Pointer[T]
}

// Get returns the published value, building it with build first if none
// has been published.
func (v *Value[T]) Get(build func() (*T, error), opts ...Option[T]) (*T, error) {
	if p := v.p.Load(); p != nil {
		return p, nil
	}
	p, err := build()
	if err != nil {
		return nil, err
	}
	if v.p.CompareAndSwap(nil, p) {
		return p, nil
	}
	var c config[T]
	for _, opt := range opts {
		opt(&c)
	}
	if c.discard != nil {
		c.discard(p)
	}
	return v.p.Load(), nil
}

// Peek returns the published value or nil.
func (v *Value[T]) Peek() *T {
	return v.p.Load()
}
