package table

import (
	"math/rand/v2"
	"sort"
)

// DefaultSampleSize bounds every sample written next to a result.
const DefaultSampleSize = 100

// Sample draws a uniform subset of min(rows, n) rows from tabular results,
// keeping source order. Documents have no sample and yield nil.
func Sample(r Result, n int, rng *rand.Rand) Result {
	t, ok := r.(*Table)
	if !ok || t == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	if len(t.Rows) <= n {
		return &Table{Columns: t.Columns, Rows: append([][]any(nil), t.Rows...)}
	}
	idx := rng.Perm(len(t.Rows))[:n]
	sort.Ints(idx)
	rows := make([][]any, n)
	for i, j := range idx {
		rows[i] = t.Rows[j]
	}
	return &Table{Columns: t.Columns, Rows: rows}
}

// Reservoir keeps a uniform sample of up to n rows over any number of
// tables offered one after another.
type Reservoir struct {
	n       int
	rng     *rand.Rand
	seen    int
	columns []string
	rows    [][]any
}

func NewReservoir(n int, rng *rand.Rand) *Reservoir {
	return &Reservoir{n: n, rng: rng}
}

// Offer feeds a result; documents are ignored.
func (s *Reservoir) Offer(r Result) {
	t, ok := r.(*Table)
	if !ok || t == nil {
		return
	}
	if s.columns == nil {
		s.columns = t.Columns
	}
	for _, row := range t.Rows {
		s.seen++
		if len(s.rows) < s.n {
			s.rows = append(s.rows, row)
			continue
		}
		if j := s.rng.IntN(s.seen); j < s.n {
			s.rows[j] = row
		}
	}
}

// Result returns the sample, or nil when no table was offered.
func (s *Reservoir) Result() Result {
	if s.columns == nil {
		return nil
	}
	return &Table{Columns: s.columns, Rows: s.rows}
}
