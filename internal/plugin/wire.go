package plugin

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"adi/internal/table"
)

// Results and table parameters are tagged objects so they survive the
// trip through Struct, which has only one number type.
const (
	tableKey    = "$table"
	documentKey = "$document"
)

// Struct carries every number as a float64, so integers are exact only
// within ±2^53.
const maxExactInt = 1 << 53

var ErrIntegerPrecision = errors.New("plugin: integer exceeds 2^53 and would lose precision")

// EncodeParams converts a parameter chunk to a Struct.
func EncodeParams(params map[string]any) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, len(params))
	for k, v := range params {
		pv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("plugin: param %q: %w", k, err)
		}
		fields[k] = pv
	}
	return &structpb.Struct{Fields: fields}, nil
}

func DecodeParams(s *structpb.Struct) (map[string]any, error) {
	out := make(map[string]any, len(s.GetFields()))
	for k, v := range s.GetFields() {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("plugin: param %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

// EncodeResult wraps a transform result. A nil result encodes as null.
func EncodeResult(r table.Result) (*structpb.Value, error) {
	return encodeValue(r)
}

func DecodeResult(v *structpb.Value) (table.Result, error) {
	dv, err := decodeValue(v)
	if err != nil {
		return nil, err
	}
	switch r := dv.(type) {
	case nil:
		return nil, nil
	case table.Result:
		return r, nil
	default:
		return table.Document{Value: r}, nil
	}
}

func encodeValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case *table.Table:
		return encodeTable(x)
	case table.Document:
		inner, err := encodeValue(x.Value)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{documentKey: inner}}), nil
	case map[string]any:
		fields := make(map[string]*structpb.Value, len(x))
		for k, e := range x {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			fields[k] = ev
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case []any:
		vals := make([]*structpb.Value, len(x))
		for i, e := range x {
			ev, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			vals[i] = ev
		}
		return structpb.NewListValue(&structpb.ListValue{Values: vals}), nil
	default:
		return scalar(v)
	}
}

func scalar(v any) (*structpb.Value, error) {
	var n uint64
	switch x := v.(type) {
	case int:
		n = absInt(int64(x))
	case int64:
		n = absInt(x)
	case uint:
		n = uint64(x)
	case uint64:
		n = x
	}
	if n > maxExactInt {
		return nil, fmt.Errorf("%w: %v", ErrIntegerPrecision, v)
	}
	return structpb.NewValue(v)
}

func absInt(x int64) uint64 {
	if x < 0 {
		return uint64(-(x + 1)) + 1
	}
	return uint64(x)
}

func encodeTable(t *table.Table) (*structpb.Value, error) {
	desc := table.Describe(t)
	cols := make([]*structpb.Value, len(t.Columns))
	tags := make([]*structpb.Value, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = structpb.NewStringValue(c)
		tags[i] = structpb.NewStringValue(string(desc[i].Tags[0]))
	}
	rows := make([]*structpb.Value, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]*structpb.Value, len(row))
		for j, cell := range row {
			cv, err := scalar(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			cells[j] = cv
		}
		rows[i] = structpb.NewListValue(&structpb.ListValue{Values: cells})
	}
	body := &structpb.Struct{Fields: map[string]*structpb.Value{
		"columns": structpb.NewListValue(&structpb.ListValue{Values: cols}),
		"tags":    structpb.NewListValue(&structpb.ListValue{Values: tags}),
		"rows":    structpb.NewListValue(&structpb.ListValue{Values: rows}),
	}}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		tableKey: structpb.NewStructValue(body),
	}}), nil
}

func decodeValue(v *structpb.Value) (any, error) {
	s := v.GetStructValue()
	if s == nil {
		return v.AsInterface(), nil
	}
	if len(s.GetFields()) == 1 {
		if body, ok := s.GetFields()[tableKey]; ok {
			return decodeTable(body.GetStructValue())
		}
		if inner, ok := s.GetFields()[documentKey]; ok {
			dv, err := decodeValue(inner)
			if err != nil {
				return nil, err
			}
			return table.Document{Value: dv}, nil
		}
	}
	return s.AsMap(), nil
}

func decodeTable(body *structpb.Struct) (*table.Table, error) {
	if body == nil {
		return nil, fmt.Errorf("plugin: malformed table")
	}
	f := body.GetFields()
	var cols []string
	for _, c := range f["columns"].GetListValue().GetValues() {
		cols = append(cols, c.GetStringValue())
	}
	tags := make([]table.TypeTag, len(cols))
	for i, tv := range f["tags"].GetListValue().GetValues() {
		if i < len(tags) {
			tags[i] = table.TypeTag(tv.GetStringValue())
		}
	}
	t := table.New(cols)
	for _, rv := range f["rows"].GetListValue().GetValues() {
		cells := rv.GetListValue().GetValues()
		row := make([]any, len(cells))
		for j, cv := range cells {
			row[j] = cv.AsInterface()
			if j < len(tags) && tags[j] == table.TagInteger {
				if n, ok := row[j].(float64); ok && n == math.Trunc(n) {
					row[j] = int64(n)
				}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
