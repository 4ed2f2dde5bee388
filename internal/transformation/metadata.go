package transformation

import (
	"context"
	"iter"

	"adi/internal/dataref"
	"adi/internal/table"
)

// Metadata is what one run learned about its result.
type Metadata struct {
	ExecutionID string                   `json:"execution_id"`
	PayloadKind table.PayloadKind        `json:"payload_kind,omitempty"`
	Columns     []table.ColumnDescriptor `json:"columns,omitempty"`
	ByteSize    int64                    `json:"byte_size"`
	Chunks      int                      `json:"chunks"`
}

// Metadata returns a copy of the current run's metadata.
func (t *Transformation) Metadata() Metadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.meta
	m.Columns = append([]table.ColumnDescriptor(nil), t.meta.Columns...)
	return m
}

// RecordResultMetadata captures kind and schema from r. Only the first call
// of a run has any effect.
func (t *Transformation) RecordResultMetadata(r table.Result) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recorded {
		return
	}
	t.recorded = true
	t.meta.PayloadKind = r.Kind()
	if tbl, ok := r.(*table.Table); ok {
		t.meta.Columns = table.Describe(tbl)
	}
}

// RecordStorageMetadata stores the persisted size of ref's imported variant.
func (t *Transformation) RecordStorageMetadata(ctx context.Context, ref dataref.Reference) error {
	n, err := t.registry.SizeOf(ctx, ref, dataref.VariantImported)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.meta.ByteSize = n
	t.mu.Unlock()
	return nil
}

func (t *Transformation) metadataTask(_ context.Context, results iter.Seq2[table.Result, error]) error {
	for r, err := range results {
		if err != nil {
			return err
		}
		t.RecordResultMetadata(r)
		t.mu.Lock()
		t.meta.Chunks++
		t.mu.Unlock()
	}
	return nil
}

func (t *Transformation) reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta = Metadata{ExecutionID: id}
	t.recorded = false
}
