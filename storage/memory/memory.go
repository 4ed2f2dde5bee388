// Package memory is an in-process storage driver that remembers every write.
package memory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"adi/storage"
)

// ErrNotFound is returned for locators that were never written.
var ErrNotFound = errors.New("memory: locator not found")

type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
	chunks  map[string][][]byte
	writes  map[string]int
}

var _ storage.Driver = (*Store)(nil)

func New() *Store {
	return &Store{
		objects: make(map[string][]byte),
		chunks:  make(map[string][][]byte),
		writes:  make(map[string]int),
	}
}

// Put seeds a locator without counting it as a write.
func (s *Store) Put(loc string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[loc] = append([]byte(nil), data...)
}

func (s *Store) Read(ctx context.Context, loc string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, loc)
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) ReadChunked(ctx context.Context, loc string, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		b, err := s.Read(ctx, loc)
		if err != nil {
			yield(nil, err)
			return
		}
		for c, err := range storage.Chunks(b, chunkSize) {
			if !yield(c, err) {
				return
			}
		}
	}
}

func (s *Store) Write(ctx context.Context, loc string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[loc] = append([]byte(nil), data...)
	s.chunks[loc] = [][]byte{append([]byte(nil), data...)}
	s.writes[loc]++
	return nil
}

// WriteStream records each chunk separately so callers can inspect how a
// payload was framed.
func (s *Store) WriteStream(ctx context.Context, loc string, chunks iter.Seq2[[]byte, error]) error {
	var (
		all    []byte
		pieces [][]byte
	)
	for b, err := range chunks {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		all = append(all, b...)
		pieces = append(pieces, append([]byte(nil), b...))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[loc] = all
	s.chunks[loc] = pieces
	s.writes[loc]++
	return nil
}

func (s *Store) SizeOf(ctx context.Context, loc string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[loc]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, loc)
	}
	return int64(len(b)), nil
}

// Chunks returns the pieces of the last write to loc.
func (s *Store) Chunks(loc string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks[loc]...)
}

// Writes counts completed writes to loc.
func (s *Store) Writes(loc string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[loc]
}

// Bytes returns the stored payload or nil.
func (s *Store) Bytes(loc string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.objects[loc]...)
}
