package codec

import (
	"errors"
	"strings"
	"testing"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

func TestJSONDecodeStreamOneDocumentPerValue(t *testing.T) {
	c, _ := For(dataref.FormatJSON)
	var docs []table.Document
	for r, err := range c.DecodeStream(split(`{"a":1} {"a":2}`+"\n"+`[3]`, 4), 0) {
		if err != nil {
			t.Fatalf("DecodeStream: %v", err)
		}
		docs = append(docs, r.(table.Document))
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 documents, got %d", len(docs))
	}
	if docs[1].Value.(map[string]any)["a"] != float64(2) {
		t.Fatalf("unexpected second document %v", docs[1].Value)
	}
}

func TestJSONEncodeTableAsRowObjects(t *testing.T) {
	c, _ := For(dataref.FormatJSON)
	b, err := c.NewEncoder().Encode(table.New([]string{"a"}, []any{int64(1)}, []any{nil}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != "{\"a\":1}\n{\"a\":null}" {
		t.Fatalf("unexpected ndjson %q", got)
	}
}

func TestRawEncodesBytesOnly(t *testing.T) {
	c, _ := For(dataref.FormatRaw)
	enc := c.NewEncoder()
	b, err := enc.Encode(table.Document{Value: []byte("abc")})
	if err != nil || string(b) != "abc" {
		t.Fatalf("got %q, %v", b, err)
	}
	if _, err := enc.Encode(table.New([]string{"a"})); !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
}
