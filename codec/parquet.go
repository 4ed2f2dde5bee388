package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

// parquetCodec only writes: inputs are never loaded from parquet.
type parquetCodec struct{}

func (parquetCodec) Format() dataref.DataFormat { return dataref.FormatParquet }

func (parquetCodec) Decode([]byte) (table.Result, error) {
	return nil, errs.UnsupportedKind("codec parquet", "reading parquet inputs is not supported")
}

func (parquetCodec) DecodeStream(iter.Seq2[[]byte, error], int) iter.Seq2[table.Result, error] {
	return func(yield func(table.Result, error) bool) {
		yield(nil, errs.UnsupportedKind("codec parquet", "reading parquet inputs is not supported"))
	}
}

func (parquetCodec) NewEncoder() Encoder { return &parquetEncoder{} }

// parquetEncoder keeps one parquet file open across all chunks: the magic
// header goes out with the first chunk, the footer with Close. Each chunk
// becomes its own row group.
type parquetEncoder struct {
	buf     *bytes.Buffer
	pw      *writer.JSONWriter
	columns []table.ColumnDescriptor
}

func (e *parquetEncoder) Encode(r table.Result) ([]byte, error) {
	t, ok := r.(*table.Table)
	if !ok {
		return nil, errs.UnsupportedKind("codec parquet", "cannot encode %s payload", kindOf(r))
	}
	if e.pw == nil {
		if err := e.open(t); err != nil {
			return nil, err
		}
	}
	for _, row := range t.Rows {
		obj := make(map[string]any, len(e.columns))
		for i, col := range e.columns {
			if i < len(row) {
				obj[col.Name] = parquetValue(row[i], col.Tags[0])
			}
		}
		line, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("parquet: %w", err)
		}
		if err := e.pw.Write(string(line)); err != nil {
			return nil, fmt.Errorf("parquet: %w", err)
		}
	}
	if err := e.pw.Flush(true); err != nil {
		return nil, fmt.Errorf("parquet: flush: %w", err)
	}
	return e.take(), nil
}

func (e *parquetEncoder) Close() ([]byte, error) {
	if e.pw == nil {
		return nil, nil
	}
	if err := e.pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet: %w", err)
	}
	return e.take(), nil
}

func (e *parquetEncoder) open(t *table.Table) error {
	e.columns = table.Describe(t)
	e.buf = &bytes.Buffer{}
	pw, err := writer.NewJSONWriter(parquetSchema(e.columns), writerfile.NewWriterFile(e.buf), 4)
	if err != nil {
		return fmt.Errorf("parquet: schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	e.pw = pw
	return nil
}

func (e *parquetEncoder) take() []byte {
	out := append([]byte(nil), e.buf.Bytes()...)
	e.buf.Reset()
	return out
}

func parquetSchema(cols []table.ColumnDescriptor) string {
	fields := make([]map[string]string, 0, len(cols))
	for _, c := range cols {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, parquetType(c.Tags[0])),
		})
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	return string(b)
}

func parquetType(tag table.TypeTag) string {
	switch tag {
	case table.TagBoolean:
		return "type=BOOLEAN"
	case table.TagInteger:
		return "type=INT64"
	case table.TagFloat:
		return "type=DOUBLE"
	default:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

// parquetValue coerces v to the column's physical type so a later chunk
// with a different native type still fits the schema of the first.
func parquetValue(v any, tag table.TypeTag) any {
	if v == nil {
		return nil
	}
	switch tag {
	case table.TagFloat:
		if f, ok := asFloat64(v); ok {
			return f
		}
		return nil
	case table.TagInteger:
		if i, ok := asInt64(v); ok {
			return i
		}
		return nil
	case table.TagBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		return formatCell(v)
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
