package transformation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"adi/codec"
	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
	"adi/storage"
	"adi/storage/local"
	"adi/storage/memory"
)

type countingStore struct {
	*memory.Store
	reads atomic.Int32
}

func (c *countingStore) Read(ctx context.Context, loc string) ([]byte, error) {
	c.reads.Add(1)
	return c.Store.Read(ctx, loc)
}

func (c *countingStore) ReadChunked(ctx context.Context, loc string, n int) iter.Seq2[[]byte, error] {
	c.reads.Add(1)
	return c.Store.ReadChunked(ctx, loc, n)
}

func csvRows(n int) string {
	var sb strings.Builder
	sb.WriteString("id,name,score\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d,row%d,%d.5\n", i, i, i)
	}
	return sb.String()
}

func memRef(locs map[dataref.Variant]string) dataref.Reference {
	return dataref.Reference{Storage: dataref.StorageMemory, Format: dataref.FormatCSV, Value: locs}
}

func outRef() dataref.Reference {
	return memRef(map[dataref.Variant]string{
		dataref.VariantImported: "out/full.csv",
		dataref.VariantSample:   "out/sample.csv",
	})
}

func setup(t *testing.T) (*countingStore, *storage.Registry) {
	t.Helper()
	store := &countingStore{Store: memory.New()}
	reg := storage.NewRegistry()
	if err := reg.Register(dataref.StorageMemory, store); err != nil {
		t.Fatalf("register: %v", err)
	}
	return store, reg
}

func identity(ctx context.Context, p Params) (table.Result, error) {
	r, ok := p["data"].(table.Result)
	if !ok {
		return nil, fmt.Errorf("data is %T", p["data"])
	}
	return r, nil
}

func decodeCSV(t *testing.T, b []byte) *table.Table {
	t.Helper()
	c, _ := codec.For(dataref.FormatCSV)
	r, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r.(*table.Table)
}

func TestNewRequiresFunction(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestNewRejectsMalformedDefaults(t *testing.T) {
	_, err := New(identity, WithDefaultInputs(dataref.Template{
		"data": {Storage: "ftp", Format: dataref.FormatCSV},
	}))
	if !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
}

func TestBatchRun(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(10)))

	tr, err := New(identity, WithStorage(reg), WithDefaultInputs(dataref.Template{
		"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"}),
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Run(context.Background(), RunParams{Output: outRef()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.Writes("out/full.csv") != 1 || store.Writes("out/sample.csv") != 1 {
		t.Fatalf("writes full=%d sample=%d", store.Writes("out/full.csv"), store.Writes("out/sample.csv"))
	}
	if n := decodeCSV(t, store.Bytes("out/full.csv")).Len(); n != 10 {
		t.Fatalf("full write has %d rows", n)
	}
	if n := decodeCSV(t, store.Bytes("out/sample.csv")).Len(); n != 10 {
		t.Fatalf("sample write has %d rows", n)
	}
	m := tr.Metadata()
	if m.PayloadKind != table.KindTabular || len(m.Columns) != 3 || m.Chunks != 1 {
		t.Fatalf("unexpected metadata %+v", m)
	}
	for i, c := range m.Columns {
		if c.Order != i+1 {
			t.Fatalf("column %d has order %d", i, c.Order)
		}
	}
	if m.ByteSize != int64(len(store.Bytes("out/full.csv"))) || m.ExecutionID == "" {
		t.Fatalf("byte size %d, id %q", m.ByteSize, m.ExecutionID)
	}
}

func TestStreamingRun(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(120)))

	var calls atomic.Int32
	fn := func(ctx context.Context, p Params) (table.Result, error) {
		calls.Add(1)
		return identity(ctx, p)
	}
	tr, err := New(fn, WithStorage(reg), WithChunkRows(50), WithReadBuffer(97))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Run(context.Background(), RunParams{
		Input:  map[string]dataref.Reference{"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"})},
		Output: outRef(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("transform called %d times", calls.Load())
	}

	chunks := store.Chunks("out/full.csv")
	if len(chunks) != 3 {
		t.Fatalf("full writer got %d chunks", len(chunks))
	}
	if !strings.HasPrefix(string(chunks[0]), "id,name,score\n") {
		t.Fatalf("first chunk lacks header: %q", chunks[0][:20])
	}
	for i, c := range chunks[1:] {
		if strings.Contains(string(c), "id,name,score") {
			t.Fatalf("chunk %d repeats the header", i+1)
		}
	}
	if n := decodeCSV(t, store.Bytes("out/full.csv")).Len(); n != 120 {
		t.Fatalf("full write has %d rows", n)
	}
	if w := store.Writes("out/sample.csv"); w != 3 {
		t.Fatalf("want one sample write per chunk, got %d", w)
	}
	if n := decodeCSV(t, store.Bytes("out/sample.csv")).Len(); n != 20 {
		t.Fatalf("last sample has %d rows, want 20", n)
	}
	if m := tr.Metadata(); m.Chunks != 3 || len(m.Columns) != 3 {
		t.Fatalf("unexpected metadata %+v", m)
	}
}

func TestOverallSampleWritesOnce(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(300)))

	tr, err := New(identity, WithStorage(reg), WithChunkRows(50),
		WithSampleMode(SampleOverall), WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Run(context.Background(), RunParams{
		Input:  map[string]dataref.Reference{"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"})},
		Output: outRef(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w := store.Writes("out/sample.csv"); w != 1 {
		t.Fatalf("want a single sample write, got %d", w)
	}
	if n := decodeCSV(t, store.Bytes("out/sample.csv")).Len(); n != table.DefaultSampleSize {
		t.Fatalf("sample has %d rows", n)
	}
}

func TestMetadataRecordedFromFirstChunkOnly(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(30)))

	var n atomic.Int32
	fn := func(ctx context.Context, p Params) (table.Result, error) {
		in := p["data"].(*table.Table)
		if n.Add(1) == 1 {
			return in, nil
		}
		return table.New([]string{"other"}, []any{int64(1)}), nil
	}
	tr, _ := New(fn, WithStorage(reg), WithChunkRows(10))
	err := tr.Run(context.Background(), RunParams{
		Input:  map[string]dataref.Reference{"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"})},
		Output: outRef(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	m := tr.Metadata()
	if len(m.Columns) != 3 || m.Columns[0].Name != "id" || m.Chunks != 3 {
		t.Fatalf("metadata not from first chunk: %+v", m)
	}
}

func TestRecordResultMetadataOnce(t *testing.T) {
	tr, _ := New(identity)
	tr.RecordResultMetadata(table.New([]string{"a", "b"}))
	tr.RecordResultMetadata(table.Document{Value: "x"})
	if m := tr.Metadata(); m.PayloadKind != table.KindTabular || len(m.Columns) != 2 {
		t.Fatalf("second record overwrote metadata: %+v", m)
	}
}

func TestDefaultLoaderRejectsUnsupportedFormatBeforeReading(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.xml", []byte("<a/>"))

	ref := dataref.Reference{Storage: dataref.StorageMemory, Format: "xml",
		Value: map[dataref.Variant]string{dataref.VariantImported: "in.xml"}}
	_, err := DefaultLoader(reg, 0, 0)(context.Background(), ref, dataref.VariantImported)
	if !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
	if store.reads.Load() != 0 {
		t.Fatalf("loader read %d times", store.reads.Load())
	}
}

func TestLoadDispatchesPerName(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(2)))

	var model dataref.Reference
	tr, err := New(identity, WithStorage(reg), WithLoader("model", func(_ context.Context, ref dataref.Reference, v dataref.Variant) (any, error) {
		model = ref
		if v != dataref.VariantImported {
			t.Errorf("loader got variant %q", v)
		}
		return "weights", nil
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loaded, err := tr.Load(context.Background(), map[string]dataref.Reference{
		"data":  memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"}),
		"model": {Storage: dataref.StorageLocal, Format: dataref.FormatRaw, Value: map[dataref.Variant]string{dataref.VariantImported: "m.bin"}},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded["model"] != "weights" || model.Storage != dataref.StorageLocal {
		t.Fatalf("model loader not used: %v", loaded["model"])
	}
	if tbl, ok := loaded["data"].(*table.Table); !ok || tbl.Len() != 2 {
		t.Fatalf("default loader not used: %T", loaded["data"])
	}
}

func TestLoadMergesOverTemplate(t *testing.T) {
	store, reg := setup(t)
	store.Put("override.csv", []byte(csvRows(4)))

	tr, _ := New(identity, WithStorage(reg), WithDefaultInputs(dataref.Template{
		"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "default.csv"}),
	}))
	loaded, err := tr.Load(context.Background(), map[string]dataref.Reference{
		"data": {Value: map[dataref.Variant]string{dataref.VariantImported: "override.csv"}},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded["data"].(*table.Table).Len() != 4 {
		t.Fatal("per-run locator did not win")
	}
}

func TestTwoStreamingInputsFailRun(t *testing.T) {
	store, reg := setup(t)
	store.Put("a.csv", []byte(csvRows(5)))
	store.Put("b.csv", []byte(csvRows(5)))

	tr, _ := New(identity, WithStorage(reg), WithChunkRows(2))
	err := tr.Run(context.Background(), RunParams{
		Input: map[string]dataref.Reference{
			"data":  memRef(map[dataref.Variant]string{dataref.VariantImported: "a.csv"}),
			"other": memRef(map[dataref.Variant]string{dataref.VariantImported: "b.csv"}),
		},
		Output: outRef(),
	})
	if !errors.Is(err, errs.ErrStreamConfiguration) {
		t.Fatalf("want stream configuration error, got %v", err)
	}
}

func TestOutputMustNameSampleVariant(t *testing.T) {
	_, reg := setup(t)
	tr, _ := New(identity, WithStorage(reg))
	err := tr.Run(context.Background(), RunParams{
		Output: memRef(map[dataref.Variant]string{dataref.VariantImported: "out.csv"}),
	})
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestFailedFullWriteStillWritesSample(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(10)))

	boom := errors.New("disk full")
	def := DefaultWriter(reg, nil)
	w := func(ctx context.Context, rs iter.Seq2[table.Result, error], ref dataref.Reference, v dataref.Variant) error {
		if v == dataref.VariantImported {
			return boom
		}
		return def(ctx, rs, ref, v)
	}
	tr, _ := New(identity, WithStorage(reg), WithWriter(w))
	err := tr.Run(context.Background(), RunParams{
		Input:  map[string]dataref.Reference{"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"})},
		Output: outRef(),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
	if store.Writes("out/sample.csv") != 1 {
		t.Fatal("sample write did not complete after full write failed")
	}
	if len(tr.Metadata().Columns) != 3 {
		t.Fatal("metadata task did not complete after full write failed")
	}
}

func TestTransformErrorReachesCaller(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(10)))
	boom := errors.New("bad row")
	tr, _ := New(func(context.Context, Params) (table.Result, error) { return nil, boom }, WithStorage(reg))
	err := tr.Run(context.Background(), RunParams{
		Input:  map[string]dataref.Reference{"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"})},
		Output: outRef(),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
	if store.Writes("out/full.csv") != 0 {
		t.Fatal("full write completed despite transform failure")
	}
}

func TestCancelledRunCommitsNoFullWrite(t *testing.T) {
	store, reg := setup(t)
	store.Put("in.csv", []byte(csvRows(1000)))
	root := t.TempDir()
	if err := reg.Register(dataref.StorageLocal, local.New(root)); err != nil {
		t.Fatalf("register: %v", err)
	}

	// the sample writer holds its fork back until the run is cancelled
	blocked := make(chan struct{})
	var once sync.Once
	full := DefaultWriter(reg, nil)
	writer := func(ctx context.Context, results iter.Seq2[table.Result, error], ref dataref.Reference, v dataref.Variant) error {
		if v == dataref.VariantSample {
			once.Do(func() { close(blocked) })
			<-ctx.Done()
			return ctx.Err()
		}
		return full(ctx, results, ref, v)
	}

	tr, err := New(identity, WithStorage(reg), WithChunkRows(10), WithForkCapacity(1), WithWriter(writer),
		WithDefaultInputs(dataref.Template{
			"data": memRef(map[dataref.Variant]string{dataref.VariantImported: "in.csv"}),
		}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-blocked
		cancel()
	}()

	out := dataref.Reference{Storage: dataref.StorageLocal, Format: dataref.FormatCSV, Value: map[dataref.Variant]string{
		dataref.VariantImported: "out.csv",
		dataref.VariantSample:   "sample.csv",
	}}
	if err := tr.Run(ctx, RunParams{Output: out}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "out.csv")); !errors.Is(err, fs.ErrNotExist) {
		b, _ := os.ReadFile(filepath.Join(root, "out.csv"))
		t.Fatalf("cancelled run committed out.csv (%d rows)", strings.Count(string(b), "\n")-1)
	}
}
