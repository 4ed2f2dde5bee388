// Package transformation turns a plain transform function into a runnable
// unit: load inputs, apply the function per parameter chunk, and fan every
// result out to the full write, the sample write and metadata capture.
package transformation

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"sync"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/fork"
	"adi/internal/table"
	"adi/internal/telemetry"
	"adi/storage"
)

// Params are the values for one invocation, keyed by parameter name.
type Params map[string]any

// Func is the user transform. It must not keep references to params after
// returning.
type Func func(ctx context.Context, params Params) (table.Result, error)

// Loader resolves one reference to either a value or a paramstream.Sequence.
type Loader func(ctx context.Context, ref dataref.Reference, v dataref.Variant) (any, error)

// Writer persists a result sequence under one variant of ref.
type Writer func(ctx context.Context, results iter.Seq2[table.Result, error], ref dataref.Reference, v dataref.Variant) error

type SampleMode string

const (
	// SamplePerChunk writes one sample per result chunk.
	SamplePerChunk SampleMode = "per-chunk"
	// SampleOverall keeps a reservoir across the stream and writes once.
	SampleOverall SampleMode = "overall"
)

func ParseSampleMode(s string) (SampleMode, error) {
	switch m := SampleMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SamplePerChunk, nil
	case SamplePerChunk, SampleOverall:
		return m, nil
	default:
		return "", errs.Configuration("transformation", "unknown sample mode %q", s)
	}
}

// DefaultLoaderName keys the fallback loader.
const DefaultLoaderName = "default"

type Option func(*Transformation)

func WithName(name string) Option { return func(t *Transformation) { t.name = name } }

// WithLoader binds a loader to one parameter name. DefaultLoaderName
// replaces the fallback.
func WithLoader(param string, l Loader) Option {
	return func(t *Transformation) { t.loaders[param] = l }
}

func WithWriter(w Writer) Option { return func(t *Transformation) { t.writer = w } }

// WithDefaultInputs sets the input template merged under every run's inputs.
func WithDefaultInputs(tpl dataref.Template) Option {
	return func(t *Transformation) { t.defaults = tpl }
}

func WithStorage(r *storage.Registry) Option { return func(t *Transformation) { t.registry = r } }

// WithChunkRows streams tabular inputs as tables of n rows. Zero loads
// whole payloads.
func WithChunkRows(n int) Option { return func(t *Transformation) { t.chunkRows = n } }

// WithReadBuffer sets the byte size of storage reads when streaming.
func WithReadBuffer(n int) Option { return func(t *Transformation) { t.readBuffer = n } }

func WithSampleSize(n int) Option { return func(t *Transformation) { t.sampleSize = n } }

func WithSampleMode(m SampleMode) Option { return func(t *Transformation) { t.sampleMode = m } }

func WithForkCapacity(n int) Option { return func(t *Transformation) { t.forkCapacity = n } }

func WithRand(r *rand.Rand) Option { return func(t *Transformation) { t.rng = r } }

func WithMetrics(m *telemetry.Metrics) Option { return func(t *Transformation) { t.metrics = m } }

// Transformation is safe to reuse across runs but runs must not overlap.
type Transformation struct {
	name         string
	fn           Func
	loaders      map[string]Loader
	writer       Writer
	defaults     dataref.Template
	registry     *storage.Registry
	chunkRows    int
	readBuffer   int
	sampleSize   int
	sampleMode   SampleMode
	forkCapacity int
	metrics      *telemetry.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	meta     Metadata
	recorded bool
}

// New builds a Transformation around fn. Unset loaders and writer fall back
// to the storage-backed defaults.
func New(fn Func, opts ...Option) (*Transformation, error) {
	if fn == nil {
		return nil, errs.Configuration("transformation", "a transform function is required")
	}
	t := &Transformation{
		name:         "transformation",
		fn:           fn,
		loaders:      make(map[string]Loader),
		sampleSize:   table.DefaultSampleSize,
		sampleMode:   SamplePerChunk,
		forkCapacity: fork.DefaultCapacity,
		readBuffer:   64 << 10,
	}
	for _, o := range opts {
		o(t)
	}
	if t.registry == nil {
		t.registry = storage.NewRegistry()
	}
	if err := t.defaults.Validate(); err != nil {
		return nil, fmt.Errorf("transformation: default inputs: %w", err)
	}
	if t.sampleMode != SamplePerChunk && t.sampleMode != SampleOverall {
		return nil, errs.Configuration("transformation", "unknown sample mode %q", t.sampleMode)
	}
	if t.chunkRows < 0 || t.sampleSize < 0 {
		return nil, errs.Configuration("transformation", "chunk rows and sample size must not be negative")
	}
	if _, ok := t.loaders[DefaultLoaderName]; !ok {
		t.loaders[DefaultLoaderName] = DefaultLoader(t.registry, t.chunkRows, t.readBuffer)
	}
	if t.writer == nil {
		t.writer = DefaultWriter(t.registry, t.metrics)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return t, nil
}

func (t *Transformation) Name() string { return t.name }

// Transform applies the function to one parameter chunk.
func (t *Transformation) Transform(ctx context.Context, params Params) (table.Result, error) {
	r, err := t.fn(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transformation %s: transform: %w", t.name, err)
	}
	t.metrics.ChunkTransformed()
	return r, nil
}
