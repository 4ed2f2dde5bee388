package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

type csvCodec struct{}

func (csvCodec) Format() dataref.DataFormat { return dataref.FormatCSV }

func (c csvCodec) Decode(data []byte) (table.Result, error) {
	var out table.Result = table.New(nil)
	for r, err := range c.DecodeStream(single(data), 0) {
		if err != nil {
			return nil, err
		}
		out = r
	}
	return out, nil
}

func (csvCodec) DecodeStream(chunks iter.Seq2[[]byte, error], rows int) iter.Seq2[table.Result, error] {
	return func(yield func(table.Result, error) bool) {
		src := newSeqReader(chunks)
		defer src.Close()

		rd := csv.NewReader(src)
		rd.FieldsPerRecord = -1
		header, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("csv: header: %w", err))
			return
		}
		header = append([]string(nil), header...)

		cur := table.New(header)
		for {
			rec, err := rd.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("csv: %w", err))
				return
			}
			row := make([]any, len(header))
			for i := range row {
				if i < len(rec) {
					row[i] = inferCell(rec[i])
				}
			}
			cur.Rows = append(cur.Rows, row)
			if rows > 0 && len(cur.Rows) == rows {
				if !yield(cur, nil) {
					return
				}
				cur = table.New(header)
			}
		}
		if len(cur.Rows) > 0 || rows <= 0 {
			yield(cur, nil)
		}
	}
}

func inferCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	// ParseFloat also accepts "nan" and "inf"; those stay text
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func (csvCodec) NewEncoder() Encoder { return &csvEncoder{} }

type csvEncoder struct {
	wroteHeader bool
}

func (e *csvEncoder) Encode(r table.Result) ([]byte, error) {
	t, ok := r.(*table.Table)
	if !ok {
		return nil, errs.UnsupportedKind("codec csv", "cannot encode %s payload", kindOf(r))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if !e.wroteHeader {
		if err := w.Write(t.Columns); err != nil {
			return nil, err
		}
		e.wroteHeader = true
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = formatCell(row[i])
			}
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (*csvEncoder) Close() ([]byte, error) { return nil, nil }

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func kindOf(r table.Result) table.PayloadKind {
	if r == nil {
		return "empty"
	}
	return r.Kind()
}

func single(data []byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield(data, nil)
	}
}
