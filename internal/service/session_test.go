package service

import (
	"bytes"
	"image/png"
	"testing"
	"time"
)

func testSession(t testing.TB) (*SessionManager, *Session) {
	t.Helper()

	m := NewSessionManager(time.Minute)
	t.Cleanup(m.Close)
	return m, m.Create(testService(t))
}

func TestSessionInitialState(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)
	st := s.State()

	if st.Session != s.ID || st.Dataset != "ecoli" {
		t.Fatalf("state = %+v", st)
	}
	if st.Zoom != 1 || st.VisibleStart != 0 || st.VisibleCount != 10 || st.Total != 10 {
		t.Fatalf("initial window = %+v, want full view", st)
	}
	if st.Sort != (SortState{}) {
		t.Fatalf("initial sort = %+v, want genome order", st.Sort)
	}
	want := []string{"length", "pan_category", "consistency"}
	if len(st.ActiveTracks) != len(want) {
		t.Fatalf("active tracks = %v, want defaults %v", st.ActiveTracks, want)
	}
	for i, id := range want {
		if st.ActiveTracks[i] != id {
			t.Fatalf("active tracks = %v, want catalog order %v", st.ActiveTracks, want)
		}
	}
}

func TestSessionZoomScroll(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)

	st := s.SetZoom(4)
	if st.Zoom != 4 || st.VisibleCount != 3 || st.VisibleStart != 4 {
		t.Fatalf("after zoom 4: %+v, want window [4, 7) centered on old center", st)
	}
	if st.Label != "4 - 7 of 10" {
		t.Fatalf("label = %q", st.Label)
	}

	if st = s.ScrollTo(100); st.VisibleStart != 7 {
		t.Fatalf("overshoot scroll start = %d, want clamp to 7", st.VisibleStart)
	}
	if st = s.ScrollTo(-5); st.VisibleStart != 0 {
		t.Fatalf("negative scroll start = %d, want clamp to 0", st.VisibleStart)
	}

	if st = s.ResetView(); st.Zoom != 1 || st.VisibleStart != 0 || st.VisibleCount != 10 {
		t.Fatalf("after reset: %+v", st)
	}
}

func TestSessionCenterOnMinimap(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)
	s.SetZoom(4)

	// Minimap is 100px over 10 genes: mid-strip click lands on gene 5.
	st := s.CenterOnMinimap(50)
	if st.VisibleStart != 4 {
		t.Fatalf("center on gene 5 start = %d, want 4", st.VisibleStart)
	}

	// Far-edge click clamps to the last gene, window clamps to the end.
	if st = s.CenterOnMinimap(100); st.VisibleStart != 7 {
		t.Fatalf("far edge start = %d, want 7", st.VisibleStart)
	}
}

func TestSessionSortAndReset(t *testing.T) {
	t.Parallel()

	m, s1 := testSession(t)
	s2 := m.Create(s1.svc)

	st, err := s1.SortBy("length", "desc")
	if err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if st.Sort.Track != "length" || st.Sort.Direction != "desc" {
		t.Fatalf("sort state = %+v", st.Sort)
	}

	ord := s1.store.Ordering()
	if ord[0] != 4 {
		t.Fatalf("longest gene first, got gene %d", ord[0])
	}
	if ord[len(ord)-1] != 3 {
		t.Fatalf("sentinel gene must trail a descending sort, got %d", ord[len(ord)-1])
	}

	// The other session keeps genome order.
	for i, g := range s2.store.Ordering() {
		if g != i {
			t.Fatalf("second session ordering disturbed at %d: %d", i, g)
		}
	}

	st = s1.ResetOrder()
	if st.Sort != (SortState{}) {
		t.Fatalf("after reset sort = %+v", st.Sort)
	}
	for i, g := range s1.store.Ordering() {
		if g != i {
			t.Fatalf("reset must restore genome order, position %d holds %d", i, g)
		}
	}

	if _, err := s1.SortBy("nope", "asc"); err == nil {
		t.Fatal("unknown track should error")
	}
	if _, err := s1.SortBy("length", "sideways"); err == nil {
		t.Fatal("bad direction should error")
	}
}

func TestSessionSearchSurvivesSorting(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)

	st := s.SetQuery("hypothetical")
	if st.MatchCount != 3 || st.Query != "hypothetical" {
		t.Fatalf("state = %+v, want 3 matches", st)
	}

	if _, err := s.SortBy("length", "asc"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if st = s.State(); st.MatchCount != 3 {
		t.Fatalf("matches after sort = %d, want identity set unchanged", st.MatchCount)
	}

	if st = s.SetQuery(""); st.MatchCount != 0 {
		t.Fatalf("cleared query matches = %d", st.MatchCount)
	}
}

func TestSessionToggleTrack(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)

	st, err := s.ToggleTrack("pan_category")
	if err != nil {
		t.Fatalf("ToggleTrack: %v", err)
	}
	if len(st.ActiveTracks) != 2 || st.ActiveTracks[0] != "length" || st.ActiveTracks[1] != "consistency" {
		t.Fatalf("active after toggle off = %v", st.ActiveTracks)
	}

	st, err = s.ToggleTrack("is_hypothetical")
	if err != nil {
		t.Fatalf("ToggleTrack: %v", err)
	}
	// Re-enabled tracks come back in catalog order, not toggle order.
	if len(st.ActiveTracks) != 3 || st.ActiveTracks[2] != "is_hypothetical" {
		t.Fatalf("active after toggle on = %v", st.ActiveTracks)
	}

	if _, err := s.ToggleTrack("nope"); err == nil {
		t.Fatal("unknown track should error")
	}
}

func TestSessionFramesSharedAcrossSessions(t *testing.T) {
	t.Parallel()

	m, s1 := testSession(t)
	s2 := m.Create(s1.svc)

	png1, err := s1.HeatmapPNG()
	if err != nil {
		t.Fatalf("HeatmapPNG: %v", err)
	}
	png2, err := s2.HeatmapPNG()
	if err != nil {
		t.Fatalf("HeatmapPNG: %v", err)
	}
	if !bytes.Equal(png1, png2) {
		t.Fatal("identical view state should serve one cached frame")
	}

	if _, err := s1.SortBy("length", "desc"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	sorted, err := s1.HeatmapPNG()
	if err != nil {
		t.Fatalf("HeatmapPNG sorted: %v", err)
	}
	if bytes.Equal(png1, sorted) {
		t.Fatal("sorting must produce a different frame")
	}
}

func TestSessionMinimapPNG(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)
	s.SetZoom(2)
	s.SetQuery("gyrase")

	data, err := s.MinimapPNG()
	if err != nil {
		t.Fatalf("MinimapPNG: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 40 {
		t.Fatalf("minimap = %dx%d, want 100x40", cfg.Width, cfg.Height)
	}
}

func TestSessionHit(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)

	// 200px over 10 visible genes is 20px per column; rows are 10px.
	hit, ok := s.Hit(30, 15)
	if !ok {
		t.Fatal("expected a hit inside the grid")
	}
	if hit.GeneID != 1 || hit.Position != 1 || hit.TrackID != "pan_category" || hit.Row != 1 {
		t.Fatalf("hit = %+v", hit)
	}

	for _, px := range [][2]int{{30, 35}, {250, 5}, {-1, 5}, {30, -4}} {
		if _, ok := s.Hit(px[0], px[1]); ok {
			t.Fatalf("pixel (%d, %d) should miss", px[0], px[1])
		}
	}

	// After sorting, the same pixel resolves the new occupant.
	if _, err := s.SortBy("length", "desc"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	hit, ok = s.Hit(30, 15)
	if !ok || hit.GeneID != 6 {
		t.Fatalf("hit after sort = %+v, want gene 6 at position 1", hit)
	}
}

func TestSessionSnapshotIsFrozen(t *testing.T) {
	t.Parallel()

	_, s := testSession(t)
	snap := s.Snapshot()

	if _, err := s.SortBy("length", "desc"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	for i, g := range snap.Ordering {
		if g != i {
			t.Fatalf("snapshot ordering mutated at %d: %d", i, g)
		}
	}
	if snap.SortTrack != "" {
		t.Fatalf("snapshot sort track = %q, want genome order", snap.SortTrack)
	}
}

func TestSessionManagerLifecycle(t *testing.T) {
	t.Parallel()

	m, s := testSession(t)

	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Fatal("Get should return the created session")
	}
	if _, ok := m.Get("nope"); ok {
		t.Fatal("unknown session should not resolve")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}

	m.Delete(s.ID)
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("deleted session should be gone")
	}

	m.Close()
	m.Close() // idempotent
}

func TestSessionManagerExpiresIdle(t *testing.T) {
	t.Parallel()

	m, s := testSession(t)

	s.mu.Lock()
	s.lastSeen = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	m.expire()
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("idle session should be expired")
	}

	// A touched session survives the sweep.
	s2 := m.Create(s.svc)
	m.expire()
	if _, ok := m.Get(s2.ID); !ok {
		t.Fatal("fresh session should survive the sweep")
	}
}
