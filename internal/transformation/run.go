package transformation

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"adi/internal/dataref"
	"adi/internal/logging"
	"adi/internal/output"
	"adi/internal/paramstream"
	"adi/internal/table"
)

// RunParams names the inputs of one run and where its result goes. Output
// must carry imported and sample locators.
type RunParams struct {
	Input  map[string]dataref.Reference `yaml:"input" json:"input"`
	Output dataref.Reference            `yaml:"output" json:"output"`
}

// Run loads the inputs, transforms every parameter chunk lazily and joins
// the full write, sample write and metadata capture. Batch inputs are a
// stream of one chunk. The result's metadata is available from Metadata.
func (t *Transformation) Run(ctx context.Context, p RunParams) (err error) {
	id := uuid.NewString()
	t.reset(id)
	log := logging.L().With("transformation", t.name, "execution", id)
	start := time.Now()
	defer func() {
		t.metrics.RunFinished(err, time.Since(start))
		if err != nil {
			log.Error("run failed", "err", err, "elapsed", time.Since(start))
		}
	}()

	if err := checkOutput(p.Output); err != nil {
		return fmt.Errorf("transformation %s: output: %w", t.name, err)
	}
	loaded, err := t.Load(ctx, p.Input)
	if err != nil {
		return err
	}
	stream := paramstream.New(loaded)
	defer stream.Close()
	log.Info("run started", "inputs", len(loaded), "streaming", stream.Streaming())

	results := func(yield func(table.Result, error) bool) {
		for chunk, err := range stream.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			r, err := t.Transform(ctx, Params(chunk))
			if !yield(r, err) || err != nil {
				return
			}
		}
	}

	coord := output.Coordinator{
		Full: func(ctx context.Context, rs iter.Seq2[table.Result, error]) error {
			return t.Output(ctx, rs, p.Output)
		},
		Sample:   t.sampleTask(p.Output),
		Metadata: t.metadataTask,
		Capacity: t.forkCapacity,
	}
	if err := coord.Run(ctx, results); err != nil {
		return err
	}
	if err := t.RecordStorageMetadata(ctx, p.Output); err != nil {
		return fmt.Errorf("transformation %s: storage metadata: %w", t.name, err)
	}

	m := t.Metadata()
	log.Info("run finished", "chunks", m.Chunks, "kind", m.PayloadKind,
		"columns", len(m.Columns), "bytes", m.ByteSize, "elapsed", time.Since(start))
	return nil
}

func checkOutput(ref dataref.Reference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	for _, v := range []dataref.Variant{dataref.VariantImported, dataref.VariantSample} {
		if _, err := ref.Locator(v); err != nil {
			return err
		}
	}
	return nil
}
