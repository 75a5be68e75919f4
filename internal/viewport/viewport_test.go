package viewport

import "testing"

const totalGenes = 4617

func assertBounds(t *testing.T, c *Controller) {
	t.Helper()
	if c.VisibleStart() < 0 {
		t.Fatalf("visibleStart %d < 0", c.VisibleStart())
	}
	if c.VisibleStart()+c.VisibleCount() > c.Total() {
		t.Fatalf("window [%d, %d) overruns total %d",
			c.VisibleStart(), c.VisibleStart()+c.VisibleCount(), c.Total())
	}
}

func TestZoomTenShowsFourSixtyTwo(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	if c.VisibleCount() != totalGenes {
		t.Fatalf("zoom 1 visibleCount = %d, want %d", c.VisibleCount(), totalGenes)
	}
	if got := c.RangeLabel(); got != "0 - 4617 of 4617" {
		t.Fatalf("full view label = %q", got)
	}

	c.SetZoom(10)
	if c.VisibleCount() != 462 {
		t.Fatalf("zoom 10 visibleCount = %d, want 462", c.VisibleCount())
	}

	// While zoomed the label must never read the full range again.
	for _, offset := range []int{0, 100, 4000, 9999, -5} {
		c.ScrollTo(offset)
		assertBounds(t, c)
		if c.RangeLabel() == "0 - 4617 of 4617" {
			t.Fatalf("zoomed label reads full range at offset %d", offset)
		}
	}
}

func TestBoundsHoldUnderArbitrarySequences(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	steps := []func(){
		func() { c.SetZoom(3.5) },
		func() { c.ScrollTo(-100) },
		func() { c.SetZoom(50) },
		func() { c.ScrollTo(totalGenes * 2) },
		func() { c.SetZoom(0.01) },
		func() { c.SetZoom(1e9) },
		func() { c.ScrollTo(17) },
		func() { c.SetZoom(2) },
		func() { c.Reset() },
		func() { c.CenterOn(-3) },
		func() { c.CenterOn(totalGenes + 7) },
	}
	for i, step := range steps {
		step()
		assertBounds(t, c)
		if c.Zoom() < 1 {
			t.Fatalf("step %d left zoom %v < 1", i, c.Zoom())
		}
	}
}

func TestZoomIsCenterAnchored(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	c.SetZoom(10)
	c.ScrollTo(2077) // center 2077 + 231 = 2308

	center := c.VisibleStart() + c.VisibleCount()/2
	c.SetZoom(20)
	newCenter := c.VisibleStart() + c.VisibleCount()/2
	if diff := newCenter - center; diff < -1 || diff > 1 {
		t.Fatalf("center drifted from %d to %d on zoom in", center, newCenter)
	}

	c.SetZoom(10)
	backCenter := c.VisibleStart() + c.VisibleCount()/2
	if diff := backCenter - center; diff < -1 || diff > 1 {
		t.Fatalf("center drifted from %d to %d on zoom out", center, backCenter)
	}
}

func TestExtremeZoomShowsSingleGene(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	c.SetZoom(1e12)
	if c.VisibleCount() != 1 {
		t.Fatalf("visibleCount = %d, want 1", c.VisibleCount())
	}
	assertBounds(t, c)
}

func TestCenterOnClampsAtEdges(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	c.SetZoom(10)

	c.CenterOn(0)
	if c.VisibleStart() != 0 {
		t.Fatalf("centering on gene 0 left start %d", c.VisibleStart())
	}

	c.CenterOn(totalGenes - 1)
	if c.VisibleStart() != totalGenes-c.VisibleCount() {
		t.Fatalf("centering on last gene left start %d", c.VisibleStart())
	}

	c.CenterOn(2308)
	wantStart := 2308 - c.VisibleCount()/2
	if c.VisibleStart() != wantStart {
		t.Fatalf("centering on 2308 left start %d, want %d", c.VisibleStart(), wantStart)
	}
}

func TestResetRestoresFullView(t *testing.T) {
	t.Parallel()

	c := New(totalGenes)
	c.SetZoom(25)
	c.ScrollTo(1000)
	c.Reset()

	if c.Zoom() != 1 || c.VisibleStart() != 0 || c.VisibleCount() != totalGenes {
		t.Fatalf("reset state = zoom %v, start %d, count %d",
			c.Zoom(), c.VisibleStart(), c.VisibleCount())
	}
}
