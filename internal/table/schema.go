package table

import (
	"strconv"
	"strings"
	"unicode"
)

type TypeTag string

const (
	TagString  TypeTag = "String"
	TagInteger TypeTag = "Integer"
	TagFloat   TypeTag = "Float"
	TagBoolean TypeTag = "Boolean"
)

// ColumnDescriptor is the schema entry recorded for one column.
type ColumnDescriptor struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"originalName"`
	Tags         []TypeTag `json:"tags"`
	Order        int       `json:"order"`
}

// Describe derives one descriptor per column, in column order, numbered from 1.
func Describe(t *Table) []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = ColumnDescriptor{
			Name:         normalizeName(col, i),
			OriginalName: col,
			Tags:         []TypeTag{columnTag(t, i)},
			Order:        i + 1,
		}
	}
	return out
}

func columnTag(t *Table, col int) TypeTag {
	var ints, floats, bools, others int
	for _, row := range t.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch nativeTag(row[col]) {
		case TagInteger:
			ints++
		case TagFloat:
			floats++
		case TagBoolean:
			bools++
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return TagString
	case bools > 0 && ints+floats == 0:
		return TagBoolean
	case bools > 0:
		return TagString
	case floats > 0:
		return TagFloat
	case ints > 0:
		return TagInteger
	default:
		return TagString
	}
}

// TagOf maps a single native value to its tag; unknown types are String.
func TagOf(v any) TypeTag { return nativeTag(v) }

func nativeTag(v any) TypeTag {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagInteger
	case float32, float64:
		return TagFloat
	case bool:
		return TagBoolean
	default:
		return TagString
	}
}

func normalizeName(s string, idx int) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" {
		return "column_" + strconv.Itoa(idx+1)
	}
	return name
}
