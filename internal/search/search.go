// Package search matches substrings against the textual fields of every
// gene. The match set is recomputed synchronously per query; debouncing
// rapid keystrokes is the caller's concern.
package search

import "strings"

// Index holds lowercased copies of the searchable text columns, built once
// at dataset load so queries never re-lowercase the corpus.
type Index struct {
	n      int
	fields [][]string
}

// New builds an index over the given text columns. All columns must be the
// same length; extra columns simply widen the match surface.
func New(columns ...[]string) *Index {
	ix := &Index{}
	for _, col := range columns {
		if len(col) == 0 {
			continue
		}
		if ix.n == 0 {
			ix.n = len(col)
		}
		lowered := make([]string, len(col))
		for i, s := range col {
			lowered[i] = strings.ToLower(s)
		}
		ix.fields = append(ix.fields, lowered)
	}
	return ix
}

// Query returns the IDs of genes whose indexed fields contain the query,
// case-insensitively. An empty (or all-space) query matches nothing: a
// cleared search box clears the markers, it does not select the world.
func (ix *Index) Query(q string) []int {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}

	var out []int
	for gene := 0; gene < ix.n; gene++ {
		for _, field := range ix.fields {
			if strings.Contains(field[gene], q) {
				out = append(out, gene)
				break
			}
		}
	}
	return out
}
