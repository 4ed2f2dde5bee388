package codec

import (
	"bytes"
	"errors"
	"iter"
	"strings"
	"testing"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

// split cuts data into n-byte pieces so records straddle chunk boundaries.
func split(data string, n int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		b := []byte(data)
		for len(b) > 0 {
			k := min(n, len(b))
			if !yield(b[:k], nil) {
				return
			}
			b = b[k:]
		}
	}
}

func irisCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("sepal_length,species,petals,ok\n")
	for i := 0; i < rows; i++ {
		sb.WriteString("5.1,setosa,")
		sb.WriteString(strings.Repeat("1", 1+i%3))
		sb.WriteString(",true\n")
	}
	return sb.String()
}

func TestCSVDecodeInfersCells(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	r, err := c.Decode([]byte("a,b,c,d,e\n1,2.5,true,x,\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tbl := r.(*table.Table)
	row := tbl.Rows[0]
	if row[0] != int64(1) || row[1] != 2.5 || row[2] != true || row[3] != "x" || row[4] != nil {
		t.Fatalf("unexpected inference %#v", row)
	}
}

func TestCSVDecodeStreamChunksRows(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	var sizes []int
	for r, err := range c.DecodeStream(split(irisCSV(120), 37), 50) {
		if err != nil {
			t.Fatalf("DecodeStream: %v", err)
		}
		tbl := r.(*table.Table)
		if len(tbl.Columns) != 4 || tbl.Columns[1] != "species" {
			t.Fatalf("header not carried: %v", tbl.Columns)
		}
		sizes = append(sizes, tbl.Len())
	}
	if len(sizes) != 3 || sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 20 {
		t.Fatalf("want 50/50/20, got %v", sizes)
	}
}

func TestCSVDecodeStreamPropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := func(yield func([]byte, error) bool) {
		if yield([]byte("a\n1\n"), nil) {
			yield(nil, boom)
		}
	}
	c, _ := For(dataref.FormatCSV)
	var got error
	for _, err := range c.DecodeStream(src, 10) {
		if err != nil {
			got = err
		}
	}
	if !errors.Is(got, boom) {
		t.Fatalf("want %v, got %v", boom, got)
	}
}

func TestCSVEncoderWritesHeaderOnce(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	enc := c.NewEncoder()
	first, err := enc.Encode(table.New([]string{"a", "b"}, []any{int64(1), "x"}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := enc.Encode(table.New([]string{"a", "b"}, []any{2.5, nil}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(first) != "a,b\n1,x\n" {
		t.Fatalf("first chunk %q", first)
	}
	if string(second) != "2.5,\n" {
		t.Fatalf("second chunk %q", second)
	}
}

func TestCSVEncoderRejectsDocuments(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	_, err := c.NewEncoder().Encode(table.Document{Value: "x"})
	if !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
}

func TestEncodeAllRoundTripsThroughDecode(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	results := func(yield func(table.Result, error) bool) {
		for i := 0; i < 3; i++ {
			if !yield(table.New([]string{"n"}, []any{int64(i)}), nil) {
				return
			}
		}
	}
	var buf bytes.Buffer
	chunks := 0
	for b, err := range EncodeAll(c.NewEncoder(), results) {
		if err != nil {
			t.Fatalf("EncodeAll: %v", err)
		}
		chunks++
		buf.Write(b)
	}
	if chunks != 3 {
		t.Fatalf("want 3 encoded chunks, got %d", chunks)
	}
	r, err := c.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.(*table.Table).Len() != 3 {
		t.Fatalf("round trip lost rows: %q", buf.String())
	}
}

func TestForRejectsUnknownFormat(t *testing.T) {
	if _, err := For("xml"); !errors.Is(err, errs.ErrUnsupportedKind) {
		t.Fatalf("want unsupported kind, got %v", err)
	}
}

func TestCSVNonFiniteWordsStayText(t *testing.T) {
	c, _ := For(dataref.FormatCSV)
	in := "name,city\nNan,Infinity\nBob,inf\n"
	r, err := c.Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tbl := r.(*table.Table)
	if tbl.Rows[0][0] != "Nan" || tbl.Rows[0][1] != "Infinity" || tbl.Rows[1][1] != "inf" {
		t.Fatalf("non-finite words were converted: %#v", tbl.Rows)
	}
	for _, col := range table.Describe(tbl) {
		if len(col.Tags) != 1 || col.Tags[0] != table.TagString {
			t.Fatalf("column %s tagged %v", col.Name, col.Tags)
		}
	}

	out, err := c.NewEncoder().Encode(tbl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip changed the payload: %q", out)
	}
}
