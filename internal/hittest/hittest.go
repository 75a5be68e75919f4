// Package hittest inverse-maps pointer coordinates on the heatmap surface
// back to the gene and track under the cursor. It runs on every pointer
// move, so the lookup is constant time and allocates nothing.
package hittest

import (
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/track"
)

// Hit identifies the cell under a pixel.
type Hit struct {
	GeneID   int    `json:"geneId"`
	Position int    `json:"position"`
	TrackID  string `json:"trackId"`
	Row      int    `json:"row"`
}

// Tester shares the renderer's surface geometry. Divergence between the
// two is a correctness bug, so both must be built from the same config.
type Tester struct {
	surfaceWidth int
	rowHeight    int
}

// New creates a tester for the given surface geometry.
func New(surfaceWidth, rowHeight int) *Tester {
	return &Tester{surfaceWidth: surfaceWidth, rowHeight: rowHeight}
}

// Locate maps a pixel to the (gene, track) drawn there. ok is false for
// any coordinate outside the drawn grid: negative, past the last track
// row, or past the surface width.
func (t *Tester) Locate(px, py int, ordering []int, tracks []*track.Track, start, count int) (Hit, bool) {
	if py < 0 || t.rowHeight <= 0 {
		return Hit{}, false
	}
	row := py / t.rowHeight
	if row >= len(tracks) {
		return Hit{}, false
	}

	tf := render.NewTransform(t.surfaceWidth, count)
	i, ok := tf.Index(px)
	if !ok {
		return Hit{}, false
	}

	pos := start + i
	if pos < 0 || pos >= len(ordering) {
		return Hit{}, false
	}

	return Hit{
		GeneID:   ordering[pos],
		Position: pos,
		TrackID:  tracks[row].ID,
		Row:      row,
	}, true
}
