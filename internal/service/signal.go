package service

import (
	"context"
	"sync"
)

// Signal is a one-shot value that a producer completes and any number of
// consumers wait on.
type Signal[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{done: make(chan struct{})}
}

// Complete sets the value. Only the first Complete or Fail has any effect.
func (s *Signal[T]) Complete(v T) {
	s.once.Do(func() {
		s.val = v
		close(s.done)
	})
}

func (s *Signal[T]) Fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *Signal[T]) Done() <-chan struct{} { return s.done }

// Wait blocks until the signal fires or ctx ends.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.val, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
