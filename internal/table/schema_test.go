package table

import "testing"

func TestDescribeOrdersAndTags(t *testing.T) {
	tbl := New([]string{"Sepal Length", "species", "count", "ok", "mixed", ""},
		[]any{5.1, "setosa", int64(3), true, int64(1), nil},
		[]any{4.9, "setosa", int64(4), false, 2.5, nil},
		[]any{nil, "virginica", int64(5), nil, int64(7), nil},
	)
	cols := Describe(tbl)
	if len(cols) != len(tbl.Columns) {
		t.Fatalf("want %d descriptors, got %d", len(tbl.Columns), len(cols))
	}
	want := []struct {
		name string
		tag  TypeTag
	}{
		{"sepal_length", TagFloat},
		{"species", TagString},
		{"count", TagInteger},
		{"ok", TagBoolean},
		{"mixed", TagFloat},
		{"column_6", TagString},
	}
	for i, c := range cols {
		if c.Order != i+1 {
			t.Fatalf("column %d: order %d", i, c.Order)
		}
		if c.OriginalName != tbl.Columns[i] {
			t.Fatalf("column %d: original name %q", i, c.OriginalName)
		}
		if c.Name != want[i].name {
			t.Fatalf("column %d: name %q want %q", i, c.Name, want[i].name)
		}
		if len(c.Tags) != 1 || c.Tags[0] != want[i].tag {
			t.Fatalf("column %d: tags %v want %v", i, c.Tags, want[i].tag)
		}
	}
}

func TestTagOfFallsBackToString(t *testing.T) {
	if TagOf(struct{}{}) != TagString {
		t.Fatal("unknown native type must map to String")
	}
	if TagOf(uint8(1)) != TagInteger || TagOf(float32(1)) != TagFloat || TagOf(true) != TagBoolean {
		t.Fatal("native tag mismatch")
	}
}
