package dataset

import (
	"fmt"
	"sort"
)

// Direction selects sort order for real values. N/A placement is not
// affected by it.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// ParseDirection converts "asc"/"desc" request strings.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "asc", "":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return 0, fmt.Errorf("dataset: unknown sort direction %q", s)
}

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortBy reorders the display ordering by one numeric field. The sort is
// stable over the current ordering, so repeating the same sort is a no-op
// and ties keep their prior relative positions. Genes holding the N/A
// sentinel always collate to the trailing end, ascending or descending:
// missing data must never masquerade as an extreme value.
func (s *Store) SortBy(field int, dir Direction) error {
	col, ok := s.nums[field]
	if !ok {
		return fmt.Errorf("dataset: no numeric field %d to sort by", field)
	}

	next := make([]int, len(s.ordering))
	copy(next, s.ordering)
	sort.SliceStable(next, func(a, b int) bool {
		va, vb := col[next[a]], col[next[b]]
		naA, naB := va == s.na, vb == s.na
		if naA || naB {
			return !naA && naB
		}
		if dir == Descending {
			return va > vb
		}
		return va < vb
	})

	s.ordering = next
	return nil
}
