package render

import "math"

// Transform is the authoritative mapping between visible gene positions
// and pixel columns. The renderer, minimap viewport overlay and hit-tester
// all go through it; nothing else may do its own gene-to-pixel math.
//
// Column i spans pixels [Edge(i), Edge(i+1)). Edges are rounded from the
// ideal fractional position, so each edge is within half a pixel of exact
// and rounding never accumulates across the surface.
type Transform struct {
	width int
	count int
	ppg   float64
}

// NewTransform builds the mapping for one render pass: surface width in
// pixels over the number of visible genes.
func NewTransform(width, visibleCount int) Transform {
	t := Transform{width: width, count: visibleCount}
	if visibleCount > 0 {
		t.ppg = float64(width) / float64(visibleCount)
	}
	return t
}

// PixelsPerGene returns the fractional column width.
func (t Transform) PixelsPerGene() float64 {
	return t.ppg
}

// Edge returns the left pixel edge of visible position i. Edge(count)
// equals the surface width exactly.
func (t Transform) Edge(i int) int {
	return int(math.Round(float64(i) * t.ppg))
}

// Index inverts Edge: it returns the visible position whose span contains
// the pixel column px, or ok=false outside the surface. For integer px,
// Edge(i) <= px < Edge(i+1) holds exactly for i = ceil((px+0.5)/ppg) - 1,
// which keeps the inverse O(1) and bit-for-bit consistent with rendering.
func (t Transform) Index(px int) (int, bool) {
	if px < 0 || px >= t.width || t.count <= 0 {
		return 0, false
	}
	i := int(math.Ceil((float64(px)+0.5)/t.ppg)) - 1
	if i < 0 {
		i = 0
	}
	if i >= t.count {
		i = t.count - 1
	}
	// Snap against the real edges in case the division rounded across an
	// exact boundary; never off by more than one step.
	if i > 0 && t.Edge(i) > px {
		i--
	} else if i < t.count-1 && px >= t.Edge(i+1) {
		i++
	}
	return i, true
}
