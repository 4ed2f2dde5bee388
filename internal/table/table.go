// Package table holds the values a transformation produces: ordered tabular
// data or an opaque document.
package table

type PayloadKind string

const (
	KindTabular  PayloadKind = "tabular"
	KindDocument PayloadKind = "document"
)

// Result is what a transform function returns, once per chunk.
type Result interface {
	Kind() PayloadKind
}

// Table is an ordered set of named columns with positional rows.
type Table struct {
	Columns []string
	Rows    [][]any
}

func New(columns []string, rows ...[]any) *Table {
	return &Table{Columns: columns, Rows: rows}
}

func (*Table) Kind() PayloadKind { return KindTabular }

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns a table sharing the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n < 0 {
		n = 0
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Column returns the index of name, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Document is any non-tabular value.
type Document struct {
	Value any
}

func (Document) Kind() PayloadKind { return KindDocument }
