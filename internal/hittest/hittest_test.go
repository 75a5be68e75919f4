package hittest

import (
	"testing"

	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/track"
)

const testNA = -1.0

func testFixture(t *testing.T, n int) (*dataset.Store, []*track.Track) {
	t.Helper()

	vals := make([]float64, n)
	cons := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
		cons[i] = float64(i%10) / 9
	}
	store, err := dataset.NewStore(testNA, map[int][]float64{0: vals, 1: cons}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg, err := track.NewRegistry(testNA, []*track.Track{
		{ID: "score", Field: 0, Kind: track.Sequential, Min: 0, Max: float64(n - 1)},
		{ID: "cons", Field: 1, Kind: track.Consistency},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return store, reg.Tracks()
}

// The hit-tester must report exactly the gene the renderer drew, for every
// pixel of the surface, including sorted orderings and sub-pixel columns.
func TestLocateAgreesWithRenderTransform(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		total        int
		width        int
		start, count int
	}{
		{"full view", 100, 1200, 0, 100},
		{"zoomed window", 4617, 1200, 2077, 462},
		{"more genes than pixels", 4617, 1200, 0, 4617},
		{"single gene", 100, 1200, 42, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, tracks := testFixture(t, tc.total)
			if err := store.SortBy(1, dataset.Descending); err != nil {
				t.Fatalf("SortBy: %v", err)
			}
			ordering := store.Ordering()

			tester := New(tc.width, 20)
			tf := render.NewTransform(tc.width, tc.count)

			for px := 0; px < tc.width; px++ {
				hit, ok := tester.Locate(px, 25, ordering, tracks, tc.start, tc.count)
				if !ok {
					t.Fatalf("Locate(%d, 25) not ok", px)
				}
				i, _ := tf.Index(px)
				wantGene := ordering[tc.start+i]
				if hit.GeneID != wantGene {
					t.Fatalf("pixel %d: hit gene %d, renderer drew %d", px, hit.GeneID, wantGene)
				}
				if hit.TrackID != "cons" || hit.Row != 1 {
					t.Fatalf("pixel %d: hit row %d track %q", px, hit.Row, hit.TrackID)
				}
			}
		})
	}
}

func TestLocateOutOfBounds(t *testing.T) {
	t.Parallel()

	store, tracks := testFixture(t, 100)
	ordering := store.Ordering()
	tester := New(1200, 20)

	tests := []struct {
		name   string
		px, py int
	}{
		{"left of surface", -1, 10},
		{"right of surface", 1200, 10},
		{"above surface", 50, -1},
		{"below last row", 50, 40},
		{"far below", 50, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tester.Locate(tt.px, tt.py, ordering, tracks, 0, 100); ok {
				t.Fatalf("Locate(%d, %d) returned a hit", tt.px, tt.py)
			}
		})
	}
}

func TestLocateRowBoundaries(t *testing.T) {
	t.Parallel()

	store, tracks := testFixture(t, 100)
	ordering := store.Ordering()
	tester := New(1200, 20)

	top, ok := tester.Locate(0, 0, ordering, tracks, 0, 100)
	if !ok || top.TrackID != "score" {
		t.Fatalf("top row hit = %+v, ok %v", top, ok)
	}
	last, ok := tester.Locate(0, 19, ordering, tracks, 0, 100)
	if !ok || last.TrackID != "score" {
		t.Fatalf("row 0 bottom edge hit = %+v, ok %v", last, ok)
	}
	second, ok := tester.Locate(0, 20, ordering, tracks, 0, 100)
	if !ok || second.TrackID != "cons" {
		t.Fatalf("row 1 top edge hit = %+v, ok %v", second, ok)
	}
}

func TestLocateReportsSortedPosition(t *testing.T) {
	t.Parallel()

	store, tracks := testFixture(t, 10)
	if err := store.SetOrdering([]int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}); err != nil {
		t.Fatalf("SetOrdering: %v", err)
	}

	tester := New(100, 20)
	hit, ok := tester.Locate(0, 5, store.Ordering(), tracks, 0, 10)
	if !ok {
		t.Fatalf("Locate not ok")
	}
	if hit.GeneID != 9 || hit.Position != 0 {
		t.Fatalf("hit = %+v, want gene 9 at position 0", hit)
	}
}
