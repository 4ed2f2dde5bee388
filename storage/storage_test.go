package storage_test

import (
	"context"
	"errors"
	"testing"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/storage"
	"adi/storage/memory"
)

func ref(loc string) dataref.Reference {
	return dataref.Reference{
		Storage: dataref.StorageMemory,
		Format:  dataref.FormatCSV,
		Value:   map[dataref.Variant]string{dataref.VariantImported: loc},
	}
}

func TestRegisterRejectsUnknownKind(t *testing.T) {
	r := storage.NewRegistry()
	if err := r.Register("ftp", memory.New()); !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
}

func TestRegistryClassifiesDriverFailures(t *testing.T) {
	r := storage.NewRegistry()
	_ = r.Register(dataref.StorageMemory, memory.New())

	_, err := r.Read(context.Background(), ref("missing"), dataref.VariantImported)
	if !errors.Is(err, errs.ErrStorage) || !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("want storage error wrapping not found, got %v", err)
	}
}

func TestRegistryMissingVariantIsConfiguration(t *testing.T) {
	r := storage.NewRegistry()
	_ = r.Register(dataref.StorageMemory, memory.New())

	_, err := r.SizeOf(context.Background(), ref("x"), dataref.VariantSample)
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestRegistryUnregisteredKind(t *testing.T) {
	r := storage.NewRegistry()
	rf := ref("x")
	rf.Storage = dataref.StorageMinio
	if err := r.Write(context.Background(), rf, dataref.VariantImported, nil); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestWriteStreamPassesUpstreamErrorThrough(t *testing.T) {
	r := storage.NewRegistry()
	store := memory.New()
	_ = r.Register(dataref.StorageMemory, store)

	boom := errors.New("transform failed")
	chunks := func(yield func([]byte, error) bool) {
		if yield([]byte("a"), nil) {
			yield(nil, boom)
		}
	}
	err := r.WriteStream(context.Background(), ref("out"), dataref.VariantImported, chunks)
	if !errors.Is(err, boom) || errors.Is(err, errs.ErrStorage) {
		t.Fatalf("want unclassified upstream error, got %v", err)
	}
	if store.Writes("out") != 0 {
		t.Fatal("a failed stream must not complete a write")
	}
}

func TestChunksAndCollect(t *testing.T) {
	var sizes []int
	for c := range storage.Chunks([]byte("abcdefg"), 3) {
		sizes = append(sizes, len(c))
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Fatalf("unexpected chunk sizes %v", sizes)
	}
	b, err := storage.Collect(storage.Chunks([]byte("abcdefg"), 2))
	if err != nil || string(b) != "abcdefg" {
		t.Fatalf("Collect = %q, %v", b, err)
	}
}
