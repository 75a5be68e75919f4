// Package dataset holds the loaded gene collection and its display
// ordering. The collection itself is immutable after load; the ordering is
// the single mutable piece, written only by the sort operations and read
// by the renderers and hit-tester.
package dataset

import "fmt"

// Store is one loaded dataset in columnar form. Numeric and text columns
// are keyed by their field index in the original record layout, so track
// accessors stay plain integer lookups.
type Store struct {
	n        int
	na       float64
	nums     map[int][]float64
	texts    map[int][]string
	ordering []int
}

// NewStore builds a store from fully populated columns. Every column must
// have the same length; the initial ordering is genome order.
func NewStore(na float64, nums map[int][]float64, texts map[int][]string) (*Store, error) {
	n := -1
	check := func(field, length int) error {
		if n == -1 {
			n = length
			return nil
		}
		if length != n {
			return fmt.Errorf("dataset: field %d has %d values, want %d", field, length, n)
		}
		return nil
	}
	for field, col := range nums {
		if err := check(field, len(col)); err != nil {
			return nil, err
		}
	}
	for field, col := range texts {
		if err := check(field, len(col)); err != nil {
			return nil, err
		}
	}
	if n <= 0 {
		return nil, fmt.Errorf("dataset: no columns")
	}

	s := &Store{
		n:        n,
		na:       na,
		nums:     nums,
		texts:    texts,
		ordering: make([]int, n),
	}
	s.ResetOrdering()
	return s, nil
}

// GeneCount returns the number of genes in the collection.
func (s *Store) GeneCount() int {
	return s.n
}

// NA returns the universal not-applicable sentinel for this dataset.
func (s *Store) NA() float64 {
	return s.na
}

// NumericColumn returns the backing column for a numeric field. Callers
// must not modify it; fetching the column once per row keeps the render
// loop free of per-cell map lookups.
func (s *Store) NumericColumn(field int) ([]float64, bool) {
	col, ok := s.nums[field]
	return col, ok
}

// TextColumn returns the backing column for a text field.
func (s *Store) TextColumn(field int) ([]string, bool) {
	col, ok := s.texts[field]
	return col, ok
}

// Value reads one numeric field of one gene.
func (s *Store) Value(field, gene int) (float64, bool) {
	col, ok := s.nums[field]
	if !ok || gene < 0 || gene >= s.n {
		return 0, false
	}
	return col[gene], true
}

// Text reads one text field of one gene.
func (s *Store) Text(field, gene int) (string, bool) {
	col, ok := s.texts[field]
	if !ok || gene < 0 || gene >= s.n {
		return "", false
	}
	return col[gene], true
}

// Range returns the observed min and max of a numeric field, ignoring the
// N/A sentinel. ok is false when the field is missing or entirely N/A.
func (s *Store) Range(field int) (min, max float64, ok bool) {
	col, found := s.nums[field]
	if !found {
		return 0, 0, false
	}
	for _, v := range col {
		if v == s.na {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}

// View returns a store that shares this store's columns but owns an
// independent ordering, initialized to genome order. Column data stays
// shared; each viewer session sorts its own view without disturbing the
// others.
func (s *Store) View() *Store {
	v := &Store{
		n:        s.n,
		na:       s.na,
		nums:     s.nums,
		texts:    s.texts,
		ordering: make([]int, s.n),
	}
	v.ResetOrdering()
	return v
}

// Ordering returns the current display ordering. The slice is owned by the
// store: callers read it, never write it.
func (s *Store) Ordering() []int {
	return s.ordering
}

// SetOrdering replaces the display ordering. The new ordering must be a
// permutation of [0, GeneCount).
func (s *Store) SetOrdering(perm []int) error {
	if len(perm) != s.n {
		return fmt.Errorf("dataset: ordering has %d entries, want %d", len(perm), s.n)
	}
	seen := make([]bool, s.n)
	for _, id := range perm {
		if id < 0 || id >= s.n || seen[id] {
			return fmt.Errorf("dataset: ordering is not a permutation of [0, %d)", s.n)
		}
		seen[id] = true
	}
	s.ordering = append(s.ordering[:0], perm...)
	return nil
}

// ResetOrdering restores genome order exactly. This is not a sort: it
// rewrites the identity permutation regardless of what sorting did before.
func (s *Store) ResetOrdering() {
	for i := range s.ordering {
		s.ordering[i] = i
	}
}
