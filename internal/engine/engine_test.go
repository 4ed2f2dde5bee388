package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"adi/internal/config"
	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/plugin"
	"adi/internal/table"
	"adi/internal/transformation"
)

func TestRunSpecEndToEnd(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("city,temp\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "c%d,%d\n", i, i)
	}
	if err := os.WriteFile(filepath.Join(dir, "in.csv"), []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := `schema_version: v1
transform:
  builtin: head
  options: {n: 4}
engine:
  chunk_rows: 10
input:
  weather: {storage: local, format: csv, value: {imported: in.csv}}
output:
  storage: local
  format: csv
  value: {imported: out/full.csv, sample: out/sample.csv}
`
	specPath := filepath.Join(dir, "run.yml")
	if err := os.WriteFile(specPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{Engine: config.EngineConfig{SampleSize: 2, SampleMode: "per-chunk", ForkCapacity: 4}}
	e, err := Bootstrap(context.Background(), cfg, WithoutMetrics())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()

	md, err := e.RunSpec(context.Background(), specPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if md.Chunks != 3 || md.PayloadKind != table.KindTabular {
		t.Fatalf("metadata = %+v", md)
	}

	full, err := os.ReadFile(filepath.Join(dir, "out", "full.csv"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if lines := strings.Count(string(full), "\n"); lines != 13 {
		t.Fatalf("want 1 header + 12 rows, got %d lines:\n%s", lines, full)
	}
	if md.ByteSize != int64(len(full)) {
		t.Fatalf("byte size %d, file is %d", md.ByteSize, len(full))
	}
	want := `
# HELP adi_chunks_transformed_total Parameter chunks passed through a transform function.
# TYPE adi_chunks_transformed_total counter
adi_chunks_transformed_total 3
`
	if err := testutil.GatherAndCompare(e.Gatherer(), strings.NewReader(want), "adi_chunks_transformed_total"); err != nil {
		t.Fatalf("chunks metric: %v", err)
	}
}

func TestRunSpecMissingOutputSample(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "run.yml")
	doc := `transform: {builtin: identity}
input:
  a: {storage: memory, format: csv, value: {imported: a}}
output: {storage: memory, format: csv, value: {imported: out}}
`
	if err := os.WriteFile(specPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := Bootstrap(context.Background(), config.Config{}, WithoutMetrics())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()
	if _, err := e.RunSpec(context.Background(), specPath); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestBootstrapRegistersDefaultStorage(t *testing.T) {
	e, err := Bootstrap(context.Background(), config.Config{}, WithoutMetrics())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()
	for _, k := range []dataref.StorageKind{dataref.StorageLocal, dataref.StorageMemory, dataref.StorageSwiftTempURL} {
		if _, err := e.Storage().Driver(k); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
	}
	for _, k := range []dataref.StorageKind{dataref.StorageMinio, dataref.StorageKafka} {
		if _, err := e.Storage().Driver(k); !errors.Is(err, errs.ErrConfiguration) {
			t.Fatalf("%s should be unregistered, got %v", k, err)
		}
	}
}

func TestBootstrapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Bootstrap(ctx, config.Config{}, WithoutMetrics()); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestServeBuiltins(t *testing.T) {
	e, err := Bootstrap(context.Background(), config.Config{}, WithServer(), WithoutMetrics())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	port := e.TransportAddr().(*net.TCPAddr).Port
	cli, err := plugin.Dial(fmt.Sprintf("localhost:%d", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	in := &table.Table{Columns: []string{"x"}, Rows: [][]any{{int64(1)}, {int64(2)}}}
	res, err := cli.Transform(callCtx, "identity", transformation.Params{"t": in})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	out, ok := res.(*table.Table)
	if !ok || len(out.Rows) != 2 || out.Rows[1][0] != int64(2) {
		t.Fatalf("result = %#v", res)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestPlatformNeedsKey(t *testing.T) {
	t.Setenv("ADI_API_KEY", "")
	e, err := Bootstrap(context.Background(), config.Config{Platform: config.PlatformConfig{Host: "http://h"}}, WithoutMetrics())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer e.Close()
	if _, err := e.Platform(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
}
