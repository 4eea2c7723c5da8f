package vectorindex

import (
	"context"
	"sync"
	"sync/atomic"
)

// Snapshot publishes an immutable value, usually a *Flat or a view holding one,
// to concurrent readers. Readers call Load without locking; writers build a
// replacement and swap it in whole.
type Snapshot[T any] struct {
	current atomic.Pointer[T]
	writeMu sync.Mutex
}

// NewSnapshot publishes initial, which may be nil.
func NewSnapshot[T any](initial *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Load returns the published value or nil when none has been published.
// The returned value must not be mutated.
func (s *Snapshot[T]) Load() *T { return s.current.Load() }

// Publish replaces the published value and returns the previous one.
func (s *Snapshot[T]) Publish(v *T) *T {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.current.Swap(v)
}

// Reload builds a replacement from the published value with build and
// publishes it. Reloads are serialized, so build always sees the value it
// replaces. On error the previous value stays published.
func (s *Snapshot[T]) Reload(ctx context.Context, build func(ctx context.Context, prev *T) (*T, error)) (*T, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next, err := build(ctx, s.current.Load())
	if err != nil {
		return nil, err
	}
	s.current.Store(next)
	return next, nil
}
