// Package oneshot provides a result that is produced exactly once and can be
// awaited by any number of goroutines.
//
// SessionDB uses it for two things that complete a single time: the warm-up
// of a store connection and a reap run.
package oneshot

import (
	"context"
	"sync"
)

// Promise holds a value and error that become available once.
//
// The zero value is not usable; create promises with New.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns an unresolved promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a promise that is already complete.
func Resolved[T any](v T, err error) *Promise[T] {
	p := New[T]()
	p.Resolve(v, err)
	return p
}

// Resolve completes the promise. The first call wins; later calls are
// ignored and return false.
func (p *Promise[T]) Resolve(v T, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.value = v
		p.err = err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel that is closed once the promise is resolved.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise is resolved or ctx is done.
// When ctx ends first, the context error is returned.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
	}

	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the result without blocking. ok is false while unresolved.
func (p *Promise[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-p.done:
		return p.value, p.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
