package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

type jsonCodec struct{}

func (jsonCodec) Format() dataref.DataFormat { return dataref.FormatJSON }

func (jsonCodec) Decode(data []byte) (table.Result, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return table.Document{Value: v}, nil
}

// DecodeStream yields one document per top-level JSON value.
func (jsonCodec) DecodeStream(chunks iter.Seq2[[]byte, error], _ int) iter.Seq2[table.Result, error] {
	return func(yield func(table.Result, error) bool) {
		src := newSeqReader(chunks)
		defer src.Close()

		dec := json.NewDecoder(src)
		for {
			var v any
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("json: %w", err))
				return
			}
			if !yield(table.Document{Value: v}, nil) {
				return
			}
		}
	}
}

func (jsonCodec) NewEncoder() Encoder { return jsonEncoder{} }

// jsonEncoder writes newline-delimited JSON: one line per document, one
// object per table row.
type jsonEncoder struct{}

func (jsonEncoder) Encode(r table.Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	switch v := r.(type) {
	case table.Document:
		if err := enc.Encode(v.Value); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	case *table.Table:
		for _, row := range v.Rows {
			obj := make(map[string]any, len(v.Columns))
			for i, col := range v.Columns {
				if i < len(row) {
					obj[col] = row[i]
				}
			}
			if err := enc.Encode(obj); err != nil {
				return nil, fmt.Errorf("json: %w", err)
			}
		}
	default:
		return nil, errs.UnsupportedKind("codec json", "cannot encode %s payload", kindOf(r))
	}
	return buf.Bytes(), nil
}

func (jsonEncoder) Close() ([]byte, error) { return nil, nil }
