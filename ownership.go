package netconf

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrInvalidArgument is returned by the request constructors when a parameter
	// does not have the expected shape (filter, edit content, generic tree, ...).
	ErrInvalidArgument = errors.New("netconf: invalid argument")

	// ErrAllocation is returned when an Allocator or a ContentStore refuses to
	// duplicate a parameter.
	ErrAllocation = errors.New("netconf: allocation failed")
)

// ParamType defines how a request constructor treats the string and tree
// parameters it is given.  A single ParamType applies to every string or tree
// parameter of one constructor call.
type ParamType int

const (
	// ByReference stores the caller's value as is.  The request does not own
	// it: the caller must keep it alive as long as the request is used and
	// releases it on its own.
	ByReference ParamType = iota

	// DupAndOwn stores a private copy of the value.  The copy is owned by the
	// request and released by [FreeRequest].
	DupAndOwn

	// ConstReference stores the caller's value as is, like [ByReference],
	// with the added guarantee from the caller that the value is immutable and
	// outlives the request.  It is never released by the request.
	ConstReference
)

func (p ParamType) String() string {
	switch p {
	case ByReference:
		return "by-reference"
	case DupAndOwn:
		return "dup-and-own"
	case ConstReference:
		return "const-reference"
	}
	return fmt.Sprintf("ParamType(%d)", int(p))
}

// param is a string or tree held by a request.  The concrete type decides
// whether the request owns the value.
type param[T any] interface {
	value() T
	owned() bool
	release()
}

// ownedParam holds a private copy and the function that gives it back.
type ownedParam[T any] struct {
	v    T
	free func(T)
}

func (p *ownedParam[T]) value() T    { return p.v }
func (p *ownedParam[T]) owned() bool { return true }

func (p *ownedParam[T]) release() {
	if p.free == nil {
		return
	}
	free := p.free
	p.free = nil
	free(p.v)

	var zero T
	p.v = zero
}

// borrowedParam holds the caller's value for both [ByReference] and
// [ConstReference].  Never released.
type borrowedParam[T any] struct {
	v T
}

func (p *borrowedParam[T]) value() T    { return p.v }
func (p *borrowedParam[T]) owned() bool { return false }
func (p *borrowedParam[T]) release()    {}

// text is the string flavour of param, stored as bytes so that the difference
// between a duplicate and a borrowed buffer is observable.
type text = param[[]byte]

func textString(t text) string {
	if t == nil {
		return ""
	}
	return string(t.value())
}

func textBytes(t text) []byte {
	if t == nil {
		return nil
	}
	return t.value()
}

func releaseParam[T any](p param[T]) {
	if p != nil {
		p.release()
	}
}

// Allocator duplicates and releases the string buffers owned by requests
// built with [DupAndOwn].
type Allocator interface {
	// Dup returns a private copy of p.  It returns an error wrapping
	// [ErrAllocation] if the copy cannot be made.
	Dup(p []byte) ([]byte, error)

	// Free gives back a buffer previously returned by Dup.  Every buffer is
	// given back exactly once.
	Free(p []byte)
}

// maxPooledBuffer is the largest capacity kept around for reuse.
const maxPooledBuffer = 64 << 10

// PoolAllocator is an [Allocator] recycling buffers through a sync.Pool.
type PoolAllocator struct {
	pool        sync.Pool
	limit       int64
	outstanding atomic.Int64
}

// NewPoolAllocator returns a new PoolAllocator.  A positive limit caps the number
// of bytes handed out and not yet given back; past it Dup fails with
// [ErrAllocation].
func NewPoolAllocator(limit int) *PoolAllocator {
	return &PoolAllocator{limit: int64(limit)}
}

func (a *PoolAllocator) Dup(p []byte) ([]byte, error) {
	n := int64(len(p))
	if a.limit > 0 {
		if total := a.outstanding.Add(n); total > a.limit {
			a.outstanding.Add(-n)
			return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrAllocation, n, total-n, a.limit)
		}
	} else {
		a.outstanding.Add(n)
	}

	var buf []byte
	if bp, ok := a.pool.Get().(*[]byte); ok && cap(*bp) >= len(p) {
		buf = (*bp)[:len(p)]
	} else {
		buf = make([]byte, len(p))
	}
	copy(buf, p)
	return buf, nil
}

func (a *PoolAllocator) Free(p []byte) {
	if p == nil {
		return
	}
	a.outstanding.Add(-int64(len(p)))

	if cap(p) > maxPooledBuffer {
		return
	}
	clear(p)
	p = p[:0]
	a.pool.Put(&p)
}

// Outstanding returns the number of bytes handed out by Dup and not yet given
// back with Free.
func (a *PoolAllocator) Outstanding() int {
	return int(a.outstanding.Load())
}
