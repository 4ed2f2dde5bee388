// Package paramstream coordinates one streaming input with any number of
// scalar inputs, producing one parameter chunk per element of the stream.
//
// A parameter set without any streaming value is a stream of exactly one
// chunk, so batch and streaming transformations share one execution path.
package paramstream

import (
	"fmt"
	"iter"
	"sort"

	"adi/internal/errs"
)

// Sequence marks a loaded value as streaming. Every other value is a scalar
// and is handed to each chunk unchanged.
type Sequence iter.Seq2[any, error]

// Chunk maps parameter names to the values for one step.
type Chunk map[string]any

type state int

const (
	stateInit state = iota
	stateAdvancing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateAdvancing:
		return "advancing"
	default:
		return "done"
	}
}

type puller struct {
	next func() (any, error, bool)
	stop func()
}

// Stream is not safe for concurrent use; one goroutine drives Next.
type Stream struct {
	keys    []string
	scalars map[string]any
	pulls   map[string]puller
	state   state
}

func New(params map[string]any) *Stream {
	s := &Stream{
		keys:    make([]string, 0, len(params)),
		scalars: make(map[string]any, len(params)),
		pulls:   make(map[string]puller),
	}
	for k, v := range params {
		s.keys = append(s.keys, k)
		if seq, ok := v.(Sequence); ok {
			next, stop := iter.Pull2(iter.Seq2[any, error](seq))
			s.pulls[k] = puller{next: next, stop: stop}
			continue
		}
		s.scalars[k] = v
	}
	sort.Strings(s.keys)
	return s
}

// Streaming reports whether any parameter is a sequence.
func (s *Stream) Streaming() bool { return len(s.pulls) > 0 }

// Next advances the stream. It returns ok=false once the stream is done.
func (s *Stream) Next() (Chunk, bool, error) {
	if s.state == stateDone {
		return nil, false, nil
	}

	chunk := make(Chunk, len(s.keys))
	streamingKey := ""
	exhausted := false
	for _, k := range s.keys {
		p, ok := s.pulls[k]
		if !ok {
			chunk[k] = s.scalars[k]
			continue
		}
		v, err, more := p.next()
		if !more {
			exhausted = true
			continue
		}
		if err != nil {
			s.Close()
			return nil, false, fmt.Errorf("paramstream: advance %q: %w", k, err)
		}
		if streamingKey != "" {
			s.Close()
			return nil, false, errs.StreamConfiguration("paramstream",
				"a parameter stream must have exactly one streaming parameter (got %q and %q)", streamingKey, k)
		}
		streamingKey = k
		chunk[k] = v
	}

	if exhausted || (s.state == stateAdvancing && streamingKey == "") {
		s.Close()
		return nil, false, nil
	}
	s.state = stateAdvancing
	return chunk, true, nil
}

// All yields every remaining chunk. The stream is closed when iteration
// ends, including when the consumer stops early.
func (s *Stream) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		defer s.Close()
		for {
			chunk, ok, err := s.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(chunk, nil) {
				return
			}
		}
	}
}

// Close releases every pending sequence. It is safe to call more than once.
func (s *Stream) Close() {
	s.state = stateDone
	for k, p := range s.pulls {
		p.stop()
		delete(s.pulls, k)
	}
}

// FromSlice adapts a finite slice to a Sequence.
func FromSlice[T any](items []T) Sequence {
	return func(yield func(any, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}
