package transformation

import (
	"context"
	"fmt"
	"iter"

	"adi/codec"
	"adi/internal/dataref"
	"adi/internal/logging"
	"adi/internal/table"
	"adi/internal/telemetry"
	"adi/storage"
)

// Output writes results under the imported variant of ref.
func (t *Transformation) Output(ctx context.Context, results iter.Seq2[table.Result, error], ref dataref.Reference) error {
	return t.writer(ctx, results, ref, dataref.VariantImported)
}

// Sample returns a uniform subset of at most the configured sample size
// rows, or nil for documents.
func (t *Transformation) Sample(r table.Result) table.Result {
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return table.Sample(r, t.sampleSize, t.rng)
}

func (t *Transformation) sampleTask(ref dataref.Reference) func(context.Context, iter.Seq2[table.Result, error]) error {
	if t.sampleMode == SampleOverall {
		return func(ctx context.Context, results iter.Seq2[table.Result, error]) error {
			t.rngMu.Lock()
			res := table.NewReservoir(t.sampleSize, t.rng)
			t.rngMu.Unlock()
			for r, err := range results {
				if err != nil {
					return err
				}
				t.rngMu.Lock()
				res.Offer(r)
				t.rngMu.Unlock()
			}
			s := res.Result()
			if s == nil {
				return nil
			}
			return t.writer(ctx, single(s), ref, dataref.VariantSample)
		}
	}
	return func(ctx context.Context, results iter.Seq2[table.Result, error]) error {
		writes := 0
		for r, err := range results {
			if err != nil {
				return err
			}
			s := t.Sample(r)
			if s == nil {
				continue
			}
			if err := t.writer(ctx, single(s), ref, dataref.VariantSample); err != nil {
				return err
			}
			writes++
		}
		logging.L().Debug("transformation: samples written", "transformation", t.name, "writes", writes)
		return nil
	}
}

func single(r table.Result) iter.Seq2[table.Result, error] {
	return func(yield func(table.Result, error) bool) { yield(r, nil) }
}

// DefaultWriter encodes results with the reference's codec and streams the
// encoded chunks to storage. The codec emits structural headers once.
func DefaultWriter(reg *storage.Registry, m *telemetry.Metrics) Writer {
	return func(ctx context.Context, results iter.Seq2[table.Result, error], ref dataref.Reference, v dataref.Variant) error {
		if err := ref.Validate(); err != nil {
			return err
		}
		c, err := codec.For(ref.Format)
		if err != nil {
			return err
		}
		encoded := codec.EncodeAll(c.NewEncoder(), results)
		counted := func(yield func([]byte, error) bool) {
			for b, err := range encoded {
				if err == nil {
					m.BytesWritten(string(v), len(b))
				}
				if !yield(b, err) {
					return
				}
			}
		}
		if err := reg.WriteStream(ctx, ref, v, counted); err != nil {
			return fmt.Errorf("write %s: %w", v, err)
		}
		m.WriteCompleted(string(v))
		return nil
	}
}
