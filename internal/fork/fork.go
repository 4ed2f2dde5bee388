// Package fork replicates one producer sequence into several independently
// paced consumer sequences without running the producer more than once.
//
// A single goroutine drives the producer and hands every element to one
// bounded channel per fork. A slow fork holds the producer back once its
// channel is full, so memory stays proportional to the gap between the
// fastest and the slowest consumer.
package fork

import (
	"context"
	"iter"
)

// DefaultCapacity is the per-fork buffer used when callers pass zero.
const DefaultCapacity = 4

type item[T any] struct {
	value T
	err   error
}

// Fork is one consumer view of the shared sequence.
type Fork[T any] struct {
	ch    <-chan item[T]
	cause *error
}

// Split starts the producer and returns n forks. Every fork must be drained,
// either through All or Drain, or the producer stalls once its buffer fills.
func Split[T any](ctx context.Context, seq iter.Seq2[T, error], n, capacity int) []*Fork[T] {
	if n < 1 {
		n = 1
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	// cause is written before the channels close and read only after.
	var cause error
	chans := make([]chan item[T], n)
	forks := make([]*Fork[T], n)
	for i := range chans {
		chans[i] = make(chan item[T], capacity)
		forks[i] = &Fork[T]{ch: chans[i], cause: &cause}
	}

	go func() {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		for v, err := range seq {
			it := item[T]{value: v, err: err}
			for _, ch := range chans {
				select {
				case ch <- it:
				case <-ctx.Done():
					cause = ctx.Err()
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return forks
}

// All yields the fork's elements in producer order. An element carrying an
// error ends the sequence. If the producer was stopped by its context the
// sequence ends with the context's error, never with a clean end. If the
// consumer stops early the remainder is drained so siblings keep flowing.
func (f *Fork[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it := range f.ch {
			if !yield(it.value, it.err) || it.err != nil {
				f.Drain()
				return
			}
		}
		if err := *f.cause; err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Drain discards whatever is left in the fork. It returns once the producer
// has finished.
func (f *Fork[T]) Drain() {
	for range f.ch {
	}
}
