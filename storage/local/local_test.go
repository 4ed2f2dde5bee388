package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteStreamThenRead(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()

	chunks := func(yield func([]byte, error) bool) {
		for _, c := range []string{"a,b\n", "1,2\n"} {
			if !yield([]byte(c), nil) {
				return
			}
		}
	}
	if err := d.WriteStream(ctx, "out/data.csv", chunks); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	b, err := d.Read(ctx, "out/data.csv")
	if err != nil || string(b) != "a,b\n1,2\n" {
		t.Fatalf("Read = %q, %v", b, err)
	}
	if n, _ := d.SizeOf(ctx, "out/data.csv"); n != 8 {
		t.Fatalf("SizeOf = %d", n)
	}
}

func TestFailedStreamLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	boom := errors.New("boom")
	chunks := func(yield func([]byte, error) bool) {
		if yield([]byte("partial"), nil) {
			yield(nil, boom)
		}
	}
	if err := d.WriteStream(context.Background(), "x.csv", chunks); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected empty root, found %d entries", len(entries))
	}
}

func TestReadChunkedSizes(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	var sizes []int
	for c, err := range New(root).ReadChunked(context.Background(), "in", 4) {
		if err != nil {
			t.Fatalf("ReadChunked: %v", err)
		}
		sizes = append(sizes, len(c))
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[2] != 2 {
		t.Fatalf("unexpected sizes %v", sizes)
	}
}

func TestLocatorEscapingRoot(t *testing.T) {
	if _, err := New(t.TempDir()).Read(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestCancelledStreamLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	chunks := func(yield func([]byte, error) bool) {
		if yield([]byte("a,b\n"), nil) {
			cancel()
		}
	}
	if err := New(root).WriteStream(ctx, "x.csv", chunks); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected empty root, found %d entries", len(entries))
	}
}
