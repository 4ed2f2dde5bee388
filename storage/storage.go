// Package storage resolves data references to bytes. Each StorageKind is
// served by one Driver registered on a Registry; drivers only see locators.
package storage

import (
	"context"
	"fmt"
	"iter"

	"adi/internal/dataref"
	"adi/internal/errs"
)

// Driver moves bytes for one storage kind. Locators are opaque to callers.
type Driver interface {
	Read(ctx context.Context, loc string) ([]byte, error)

	// ReadChunked yields the payload in pieces of at most chunkSize bytes.
	// Pieces are not aligned to records.
	ReadChunked(ctx context.Context, loc string, chunkSize int) iter.Seq2[[]byte, error]

	Write(ctx context.Context, loc string, data []byte) error

	// WriteStream writes the concatenation of chunks as one payload and
	// stops at the first error from the sequence.
	WriteStream(ctx context.Context, loc string, chunks iter.Seq2[[]byte, error]) error

	SizeOf(ctx context.Context, loc string) (int64, error)
}

// Framed marks drivers whose chunks are self-contained messages rather than
// slices of one payload. Decoders treat every chunk as a whole document.
type Framed interface {
	Framed() bool
}

// IsFramed reports whether d delivers self-contained chunks.
func IsFramed(d Driver) bool {
	f, ok := d.(Framed)
	return ok && f.Framed()
}

// Registry maps the closed set of storage kinds to drivers.
type Registry struct {
	drivers map[dataref.StorageKind]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[dataref.StorageKind]Driver)}
}

// Register binds d to kind. Kinds outside the closed set are rejected.
func (r *Registry) Register(kind dataref.StorageKind, d Driver) error {
	if !kind.Valid() {
		return errs.UnsupportedKind("storage", "storage %q", kind)
	}
	if d == nil {
		return errs.Configuration("storage", "nil driver for %q", kind)
	}
	r.drivers[kind] = d
	return nil
}

// Driver returns the driver bound to kind.
func (r *Registry) Driver(kind dataref.StorageKind) (Driver, error) {
	if !kind.Valid() {
		return nil, errs.UnsupportedKind("storage", "storage %q", kind)
	}
	d, ok := r.drivers[kind]
	if !ok {
		return nil, errs.Configuration("storage", "no driver registered for %q", kind)
	}
	return d, nil
}

// Kinds lists the kinds with a registered driver.
func (r *Registry) Kinds() []dataref.StorageKind {
	var out []dataref.StorageKind
	for _, k := range dataref.StorageKinds() {
		if _, ok := r.drivers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (r *Registry) resolve(ref dataref.Reference, v dataref.Variant) (Driver, string, error) {
	if err := ref.Validate(); err != nil {
		return nil, "", err
	}
	loc, err := ref.Locator(v)
	if err != nil {
		return nil, "", err
	}
	d, err := r.Driver(ref.Storage)
	if err != nil {
		return nil, "", err
	}
	return d, loc, nil
}

func op(verb string, ref dataref.Reference, v dataref.Variant) string {
	return fmt.Sprintf("storage %s %s/%s", verb, ref.Storage, v)
}

func (r *Registry) Read(ctx context.Context, ref dataref.Reference, v dataref.Variant) ([]byte, error) {
	d, loc, err := r.resolve(ref, v)
	if err != nil {
		return nil, err
	}
	b, err := d.Read(ctx, loc)
	if err != nil {
		return nil, errs.Storage(op("read", ref, v), err)
	}
	return b, nil
}

func (r *Registry) ReadChunked(ctx context.Context, ref dataref.Reference, v dataref.Variant, chunkSize int) iter.Seq2[[]byte, error] {
	d, loc, err := r.resolve(ref, v)
	if err != nil {
		return func(yield func([]byte, error) bool) { yield(nil, err) }
	}
	return func(yield func([]byte, error) bool) {
		for b, err := range d.ReadChunked(ctx, loc, chunkSize) {
			if err != nil {
				yield(nil, errs.Storage(op("read", ref, v), err))
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

func (r *Registry) Write(ctx context.Context, ref dataref.Reference, v dataref.Variant, data []byte) error {
	d, loc, err := r.resolve(ref, v)
	if err != nil {
		return err
	}
	return errs.Storage(op("write", ref, v), d.Write(ctx, loc, data))
}

// WriteStream streams chunks to ref. Errors produced by the chunk sequence
// itself pass through unclassified.
func (r *Registry) WriteStream(ctx context.Context, ref dataref.Reference, v dataref.Variant, chunks iter.Seq2[[]byte, error]) error {
	d, loc, err := r.resolve(ref, v)
	if err != nil {
		return err
	}
	var upstream error
	guarded := func(yield func([]byte, error) bool) {
		for b, err := range chunks {
			if err != nil {
				upstream = err
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
	err = d.WriteStream(ctx, loc, guarded)
	if upstream != nil {
		return upstream
	}
	return errs.Storage(op("write", ref, v), err)
}

func (r *Registry) SizeOf(ctx context.Context, ref dataref.Reference, v dataref.Variant) (int64, error) {
	d, loc, err := r.resolve(ref, v)
	if err != nil {
		return 0, err
	}
	n, err := d.SizeOf(ctx, loc)
	if err != nil {
		return 0, errs.Storage(op("size", ref, v), err)
	}
	return n, nil
}

// Chunks slices data into pieces of at most size bytes. Drivers that hold
// the whole payload use it for ReadChunked.
func Chunks(data []byte, size int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		step := size
		if step <= 0 {
			step = len(data)
		}
		for rest := data; len(rest) > 0; {
			n := min(step, len(rest))
			if !yield(rest[:n], nil) {
				return
			}
			rest = rest[n:]
		}
	}
}

// Collect concatenates chunks. Drivers without a native streaming write
// use it for WriteStream.
func Collect(chunks iter.Seq2[[]byte, error]) ([]byte, error) {
	var out []byte
	for b, err := range chunks {
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
