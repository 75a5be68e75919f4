package track

import "fmt"

// ActiveSet is the ordered set of currently enabled tracks. Rows in the
// heatmap follow this order. Only the toggle handler writes it; sorting,
// zooming and searching never touch it.
type ActiveSet struct {
	reg     *Registry
	enabled map[string]bool
}

// NewActiveSet enables every track flagged default-enabled in the catalog.
func NewActiveSet(reg *Registry) *ActiveSet {
	s := &ActiveSet{
		reg:     reg,
		enabled: make(map[string]bool, reg.Len()),
	}
	for _, t := range reg.Tracks() {
		if t.DefaultEnabled {
			s.enabled[t.ID] = true
		}
	}
	return s
}

// Toggle flips one track's visibility. Unknown IDs are an error: the
// checklist is built from the same catalog, so a miss is a caller bug.
func (s *ActiveSet) Toggle(id string) error {
	if _, ok := s.reg.Get(id); !ok {
		return fmt.Errorf("track: toggle of unknown track %q", id)
	}
	if s.enabled[id] {
		delete(s.enabled, id)
	} else {
		s.enabled[id] = true
	}
	return nil
}

// Enabled reports whether a track is currently shown.
func (s *ActiveSet) Enabled(id string) bool {
	return s.enabled[id]
}

// Tracks returns the enabled tracks in catalog order. Row r of the heatmap
// is Tracks()[r]; the hit-tester resolves rows against the same slice.
func (s *ActiveSet) Tracks() []*Track {
	out := make([]*Track, 0, len(s.enabled))
	for _, t := range s.reg.Tracks() {
		if s.enabled[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// IDs returns the enabled track IDs in catalog order.
func (s *ActiveSet) IDs() []string {
	ts := s.Tracks()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

// Len returns the number of enabled tracks.
func (s *ActiveSet) Len() int {
	return len(s.enabled)
}
