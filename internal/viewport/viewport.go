// Package viewport owns the zoom factor and scroll offset of the visible
// window. Every input is clamped into a valid window; the state can never
// become invalid from user interaction.
package viewport

import (
	"fmt"
	"math"
)

// Controller is the single writer of the viewport state. The window is
// always fully inside [0, total).
type Controller struct {
	total        int
	zoom         float64
	visibleStart int
	visibleCount int
}

// New starts at the full-genome view: zoom 1, offset 0.
func New(total int) *Controller {
	if total < 0 {
		total = 0
	}
	c := &Controller{total: total}
	c.Reset()
	return c
}

// SetZoom changes the zoom factor, clamped to [1, total]. The gene under
// the window center stays centered as closely as clamping allows, so
// repeated zooming does not drift the view.
func (c *Controller) SetZoom(factor float64) {
	center := c.visibleStart + c.visibleCount/2

	if factor < 1 || math.IsNaN(factor) {
		factor = 1
	}
	if c.total > 0 && factor > float64(c.total) {
		factor = float64(c.total)
	}
	c.zoom = factor
	c.visibleCount = int(math.Ceil(float64(c.total) / factor))
	if c.visibleCount > c.total {
		c.visibleCount = c.total
	}

	c.ScrollTo(center - c.visibleCount/2)
}

// ScrollTo moves the window start, clamped to [0, total-visibleCount].
func (c *Controller) ScrollTo(offset int) {
	max := c.total - c.visibleCount
	if offset > max {
		offset = max
	}
	if offset < 0 {
		offset = 0
	}
	c.visibleStart = offset
}

// CenterOn scrolls so the given gene position sits in the middle of the
// current window. This is the minimap click path.
func (c *Controller) CenterOn(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos >= c.total && c.total > 0 {
		pos = c.total - 1
	}
	c.ScrollTo(pos - c.visibleCount/2)
}

// Reset restores the full-genome view.
func (c *Controller) Reset() {
	c.zoom = 1
	c.visibleStart = 0
	c.visibleCount = c.total
}

// Zoom returns the current zoom factor.
func (c *Controller) Zoom() float64 {
	return c.zoom
}

// VisibleStart returns the first visible sorted position.
func (c *Controller) VisibleStart() int {
	return c.visibleStart
}

// VisibleCount returns the number of visible positions.
func (c *Controller) VisibleCount() int {
	return c.visibleCount
}

// Total returns the gene count the window ranges over.
func (c *Controller) Total() int {
	return c.total
}

// RangeLabel renders the "start - end of total" caption shown above the
// heatmap.
func (c *Controller) RangeLabel() string {
	return fmt.Sprintf("%d - %d of %d", c.visibleStart, c.visibleStart+c.visibleCount, c.total)
}
