package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heatview/server/internal/cache"
	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/hittest"
	"github.com/heatview/server/internal/logger"
	"github.com/heatview/server/internal/minimap"
	"github.com/heatview/server/internal/track"
	"github.com/heatview/server/internal/viewport"
)

// Session carries one viewer's live state: display ordering, viewport,
// active tracks and search matches. Every operation holds the session
// lock, so concurrent requests against the same session serialize.
type Session struct {
	ID string

	svc    *ViewerService
	tester *hittest.Tester

	mu        sync.Mutex
	store     *dataset.Store
	view      *viewport.Controller
	active    *track.ActiveSet
	query     string
	matches   []int
	sortTrack string
	sortDir   dataset.Direction
	lastSeen  time.Time
}

func newSession(svc *ViewerService) *Session {
	return &Session{
		ID:       uuid.NewString(),
		svc:      svc,
		tester:   hittest.New(svc.heatmap.SurfaceWidth(), svc.heatmap.RowHeight()),
		store:    svc.ds.Store.View(),
		view:     viewport.New(svc.ds.Store.GeneCount()),
		active:   track.NewActiveSet(svc.ds.Registry),
		lastSeen: time.Now(),
	}
}

// SortState reports the active sort; zero value means genome order.
type SortState struct {
	Track     string `json:"track,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// State is the session snapshot served after every interaction.
type State struct {
	Session      string    `json:"session"`
	Dataset      string    `json:"dataset"`
	Total        int       `json:"total"`
	Zoom         float64   `json:"zoom"`
	VisibleStart int       `json:"visibleStart"`
	VisibleCount int       `json:"visibleCount"`
	Label        string    `json:"label"`
	Sort         SortState `json:"sort"`
	Query        string    `json:"query,omitempty"`
	MatchCount   int       `json:"matchCount"`
	ActiveTracks []string  `json:"activeTracks"`
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		Session:      s.ID,
		Dataset:      s.svc.datasetID,
		Total:        s.view.Total(),
		Zoom:         s.view.Zoom(),
		VisibleStart: s.view.VisibleStart(),
		VisibleCount: s.view.VisibleCount(),
		Label:        s.view.RangeLabel(),
		Query:        s.query,
		MatchCount:   len(s.matches),
		ActiveTracks: s.active.IDs(),
	}
	if s.sortTrack != "" {
		st.Sort = SortState{Track: s.sortTrack, Direction: s.sortDir.String()}
	}
	return st
}

// SetZoom sets the zoom factor, keeping the view center anchored. Out of
// range input is clamped, never rejected.
func (s *Session) SetZoom(factor float64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SetZoom(factor)
	return s.stateLocked()
}

// ScrollTo moves the visible window to an absolute start position.
func (s *Session) ScrollTo(start int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ScrollTo(start)
	return s.stateLocked()
}

// CenterOnMinimap recenters the view on the gene under a minimap click.
func (s *Session) CenterOnMinimap(px int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.svc.minimap.ClickIndex(px, s.view.Total())
	s.view.CenterOn(idx)
	return s.stateLocked()
}

// ResetView restores the full-genome view at zoom 1.
func (s *Session) ResetView() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Reset()
	return s.stateLocked()
}

// SortBy reorders the display by one track's values. Genes holding the
// N/A sentinel go to the trailing end in either direction.
func (s *Session) SortBy(trackID, direction string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := dataset.ParseDirection(direction)
	if err != nil {
		return s.stateLocked(), err
	}
	tr, ok := s.svc.ds.Registry.Get(trackID)
	if !ok {
		return s.stateLocked(), fmt.Errorf("sort by unknown track %q", trackID)
	}
	if err := s.store.SortBy(tr.Field, dir); err != nil {
		return s.stateLocked(), err
	}
	s.sortTrack = trackID
	s.sortDir = dir
	return s.stateLocked(), nil
}

// ResetOrder restores genome order exactly. This is not a sort.
func (s *Session) ResetOrder() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ResetOrdering()
	s.sortTrack = ""
	s.sortDir = dataset.Ascending
	return s.stateLocked()
}

// ToggleTrack flips one track's visibility.
func (s *Session) ToggleTrack(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.active.Toggle(id); err != nil {
		return s.stateLocked(), err
	}
	return s.stateLocked(), nil
}

// SetQuery replaces the search query and recomputes the match set. The
// matches are gene identities; sorting and zooming never change them.
func (s *Session) SetQuery(query string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.matches = s.svc.Search(query)
	return s.stateLocked()
}

func (s *Session) sortKeyLocked() string {
	if s.sortTrack == "" {
		return "genome"
	}
	return s.sortTrack + ":" + s.sortDir.String()
}

// HeatmapPNG renders the visible window. Frames are cached on everything
// that affects the pixels, so identical views across sessions render once.
func (s *Session) HeatmapPNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks := s.active.Tracks()
	start, count := s.view.VisibleStart(), s.view.VisibleCount()
	key := cache.FrameKey("heatmap", s.svc.datasetID,
		s.svc.heatmap.SurfaceWidth(), s.svc.heatmap.SurfaceHeight(len(tracks)),
		s.sortKeyLocked(),
		fmt.Sprintf("%d+%d", start, count),
		strings.Join(s.active.IDs(), ","),
	)
	if data, ok := s.svc.cache.GetFrame(key); ok {
		return data, nil
	}

	data, err := s.svc.heatmap.Render(s.store, tracks, start, count)
	if err != nil {
		return nil, err
	}
	s.svc.cache.SetFrame(key, data)
	return data, nil
}

// MinimapPNG renders the whole-genome overview with the view window and
// search tick overlays.
func (s *Session) MinimapPNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := minimap.View{
		ViewStart: s.view.VisibleStart(),
		ViewCount: s.view.VisibleCount(),
		Matches:   s.matches,
	}
	key := cache.FrameKey("minimap", s.svc.datasetID,
		s.svc.minimap.Width(), s.svc.minimap.Height(),
		s.sortKeyLocked(),
		fmt.Sprintf("%d+%d", v.ViewStart, v.ViewCount),
		strings.Join(s.active.IDs(), ","),
		"q="+strings.ToLower(strings.TrimSpace(s.query)),
	)
	if data, ok := s.svc.cache.GetFrame(key); ok {
		return data, nil
	}

	data, err := s.svc.minimap.Render(s.store, s.active.Tracks(), v)
	if err != nil {
		return nil, err
	}
	s.svc.cache.SetFrame(key, data)
	return data, nil
}

// Hit resolves the cell under a heatmap pixel. ok is false outside the
// drawn grid.
func (s *Session) Hit(px, py int) (hittest.Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tester.Locate(px, py, s.store.Ordering(), s.active.Tracks(),
		s.view.VisibleStart(), s.view.VisibleCount())
}

// Snapshot freezes the current view for asynchronous export work. An
// empty SortTrack means genome order.
type Snapshot struct {
	Dataset   string
	Ordering  []int
	TrackIDs  []string
	SortTrack string
	SortDir   string
	Query     string
}

// Snapshot copies the state an export job needs; the job renders from the
// copy while the session keeps moving.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Dataset:  s.svc.datasetID,
		Ordering: append([]int(nil), s.store.Ordering()...),
		TrackIDs: s.active.IDs(),
		Query:    s.query,
	}
	if s.sortTrack != "" {
		snap.SortTrack = s.sortTrack
		snap.SortDir = s.sortDir.String()
	}
	return snap
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionManager tracks live sessions and expires idle ones.
type SessionManager struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSessionManager creates a manager and starts its expiry sweeper.
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	m := &SessionManager{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	go m.sweeper()
	return m
}

// Create opens a session against one dataset's viewer service.
func (m *SessionManager) Create(svc *ViewerService) *Session {
	s := newSession(svc)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Debug("session created",
		zap.String("session", s.ID),
		zap.String("dataset", svc.DatasetID()))
	return s
}

// Get returns a live session and marks it used.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Delete removes a session.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the expiry sweeper. Sessions already handed out stay valid.
func (m *SessionManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *SessionManager) sweeper() {
	period := m.ttl / 4
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.expire()
		}
	}
}

func (m *SessionManager) expire() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			logger.Debug("session expired", zap.String("session", id))
		}
	}
}
