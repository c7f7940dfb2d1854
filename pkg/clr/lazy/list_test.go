package lazy

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

type element struct {
	index int
	name  string
}

func valid() error { return nil }

func letter(i int) (string, error) {
	return string(rune('a' + i%26)), nil
}

func TestListGet(t *testing.T) {
	var builds atomic.Int32
	l := NewList(3, letter, func(s string) (*element, error) {
		builds.Add(1)
		return &element{name: s}, nil
	}, valid)

	n, err := l.Count()
	assert.NilError(t, err)
	assert.Equal(t, 3, n)

	first, err := l.Get(1)
	assert.NilError(t, err)
	assert.Equal(t, "b", first.name)

	again, err := l.Get(1)
	assert.NilError(t, err)
	assert.Assert(t, first == again)
	assert.Equal(t, int32(1), builds.Load())

	all, err := l.All()
	assert.NilError(t, err)
	assert.Equal(t, 3, len(all))
	assert.Assert(t, all[1] == first)
	assert.Equal(t, int32(3), builds.Load())
}

func TestListOutOfRange(t *testing.T) {
	l := NewList(2, letter, func(s string) (*element, error) {
		return &element{name: s}, nil
	}, valid)

	for _, i := range []int{-1, 2, 1 << 20} {
		_, err := l.Get(i)
		assert.Assert(t, errors.Is(err, errs.ErrIndexOutOfRange), "index %d", i)
	}

	empty := NewList(0, letter, func(s string) (*element, error) {
		return &element{name: s}, nil
	}, valid)
	_, err := empty.Get(0)
	assert.Assert(t, errors.Is(err, errs.ErrIndexOutOfRange))
	all, err := empty.All()
	assert.NilError(t, err)
	assert.Equal(t, 0, len(all))
}

func TestListNegativeCount(t *testing.T) {
	assert.Assert(t, cmp.Panics(func() {
		NewList(-1, letter, func(s string) (*element, error) { return nil, nil }, valid)
	}))
}

func TestListInvalidated(t *testing.T) {
	var closed atomic.Bool
	invalidated := func() error {
		if closed.Load() {
			return errs.Disposed("test")
		}
		return nil
	}
	l := NewList(2, letter, func(s string) (*element, error) {
		return &element{name: s}, nil
	}, invalidated)

	_, err := l.Get(0)
	assert.NilError(t, err)

	closed.Store(true)
	_, err = l.Get(0)
	assert.Assert(t, errors.Is(err, errs.ErrUseAfterDispose))
	// invalidation is reported ahead of a bad index
	_, err = l.Get(5)
	assert.Assert(t, errors.Is(err, errs.ErrUseAfterDispose))
	_, err = l.Count()
	assert.Assert(t, errors.Is(err, errs.ErrUseAfterDispose))
	_, err = l.All()
	assert.Assert(t, errors.Is(err, errs.ErrUseAfterDispose))
}

func TestListFactoryErrorsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	l := NewList(1, letter, func(s string) (*element, error) {
		if fail.Load() {
			return nil, errs.Malformed("test")
		}
		return &element{name: s}, nil
	}, valid)

	_, err := l.Get(0)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	called := false
	l.Loaded(func(int, *element) { called = true })
	assert.Assert(t, !called)

	fail.Store(false)
	v, err := l.Get(0)
	assert.NilError(t, err)
	assert.Equal(t, "a", v.name)
}

func TestListRowErrors(t *testing.T) {
	var factoryCalls int
	l := NewList(1, func(int) (string, error) {
		return "", errs.Malformed("test")
	}, func(s string) (*element, error) {
		factoryCalls++
		return &element{name: s}, nil
	}, valid)

	_, err := l.Get(0)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	assert.Equal(t, 0, factoryCalls)
}

func TestListConcurrentGet(t *testing.T) {
	const (
		count   = 4
		readers = 64
	)
	var builds, discards atomic.Int32
	l := NewList(count, func(i int) (int, error) { return i, nil }, func(i int) (*element, error) {
		builds.Add(1)
		return &element{index: i}, nil
	}, valid, WithDiscard(func(*element) { discards.Add(1) }))

	got := make([]*element, readers)
	var g errgroup.Group
	for r := 0; r < readers; r++ {
		r := r
		g.Go(func() error {
			v, err := l.Get(r % count)
			got[r] = v
			return err
		})
	}
	assert.NilError(t, g.Wait())

	for r := 0; r < readers; r++ {
		expected, err := l.Get(r % count)
		assert.NilError(t, err)
		assert.Assert(t, got[r] == expected, "reader %d", r)
		assert.Equal(t, r%count, got[r].index)
	}
	// every build either published or was discarded
	assert.Equal(t, int32(count), builds.Load()-discards.Load())

	loaded := map[int]*element{}
	l.Loaded(func(i int, v *element) { loaded[i] = v })
	assert.Equal(t, count, len(loaded))
}
