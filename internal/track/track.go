// Package track holds the track catalog: which gene-record fields are
// rendered as heatmap rows and how their values are encoded. Encoding
// dispatch is resolved once when the registry is built; nothing downstream
// re-inspects value types per cell.
package track

import (
	"fmt"
	"image/color"

	"github.com/heatview/server/pkg/colormap"
)

// Kind is the encoding of a track's values.
type Kind int

const (
	// Sequential is a continuous gradient over the observed value range.
	Sequential Kind = iota
	// Binary has exactly two enumerated states.
	Binary
	// Categorical has N labeled integer codes with a fixed color table.
	Categorical
	// Consistency is a continuous [0,1] agreement scale plus N/A.
	Consistency
)

var kindNames = map[Kind]string{
	Sequential:  "sequential",
	Binary:      "binary",
	Categorical: "categorical",
	Consistency: "consistency",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts the metadata encoding name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("track: unknown encoding kind %q", s)
}

// Category is one labeled state of a binary or categorical track.
type Category struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Track describes one heatmap row source.
type Track struct {
	ID             string
	Name           string
	Field          int
	Kind           Kind
	DefaultEnabled bool
	Gradient       string
	Categories     []Category

	// Observed value range, filled by the dataset loader before the
	// registry is built. Sequential mappers spread their gradient over it.
	Min, Max float64

	mapper colormap.Mapper
}

// Mapper returns the color mapper resolved for this track.
func (t *Track) Mapper() colormap.Mapper {
	return t.mapper
}

// Registry is the immutable track catalog for one loaded dataset.
type Registry struct {
	na     float64
	tracks []*Track
	byID   map[string]*Track
}

// NewRegistry validates the track definitions and resolves one color
// mapper per track. Validation failures identify the offending track.
func NewRegistry(na float64, tracks []*Track) (*Registry, error) {
	r := &Registry{
		na:     na,
		tracks: tracks,
		byID:   make(map[string]*Track, len(tracks)),
	}
	for _, t := range tracks {
		if t.ID == "" {
			return nil, fmt.Errorf("track: empty track ID (name %q)", t.Name)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("track %q: duplicate track ID", t.ID)
		}
		m, err := buildMapper(na, t)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", t.ID, err)
		}
		t.mapper = m
		r.byID[t.ID] = t
	}
	return r, nil
}

func buildMapper(na float64, t *Track) (colormap.Mapper, error) {
	switch t.Kind {
	case Sequential:
		g := colormap.Blues
		if t.Gradient != "" {
			named, ok := colormap.Gradient(t.Gradient)
			if !ok {
				return nil, fmt.Errorf("unknown gradient %q", t.Gradient)
			}
			g = named
		}
		return colormap.SequentialMapper{Gradient: g, Min: t.Min, Max: t.Max, NA: na}, nil

	case Binary:
		zero, one := colormap.BinaryOff, colormap.BinaryOn
		if len(t.Categories) > 0 {
			if len(t.Categories) != 2 {
				return nil, fmt.Errorf("binary track declares %d categories, want 2", len(t.Categories))
			}
			table, err := resolveCategoryColors(t.Categories)
			if err != nil {
				return nil, err
			}
			var ok0, ok1 bool
			zero, ok0 = table[0]
			one, ok1 = table[1]
			if !ok0 || !ok1 {
				return nil, fmt.Errorf("binary track categories must use codes 0 and 1")
			}
		}
		return colormap.BinaryMapper{Zero: zero, One: one, NA: na}, nil

	case Categorical:
		if len(t.Categories) == 0 {
			return nil, fmt.Errorf("categorical track declares no categories")
		}
		table, err := resolveCategoryColors(t.Categories)
		if err != nil {
			return nil, err
		}
		return colormap.CategoricalMapper{Colors: table, NA: na}, nil

	case Consistency:
		return colormap.ConsistencyMapper{Gradient: colormap.YlOrRd, NA: na}, nil
	}
	return nil, fmt.Errorf("unknown encoding kind %v", t.Kind)
}

// resolveCategoryColors parses declared colors and assigns palette
// fallbacks to categories that declare none. The resolved hex is written
// back so legends serve exactly what the renderer uses.
func resolveCategoryColors(cats []Category) (map[int]color.RGBA, error) {
	table := make(map[int]color.RGBA, len(cats))
	for i := range cats {
		c := &cats[i]
		if _, dup := table[c.Code]; dup {
			return nil, fmt.Errorf("duplicate category code %d", c.Code)
		}
		var rgba color.RGBA
		if c.Color != "" {
			parsed, err := colormap.ParseHex(c.Color)
			if err != nil {
				return nil, fmt.Errorf("category %d: %w", c.Code, err)
			}
			rgba = parsed
		} else {
			rgba = colormap.Categorical.AtIndex(i).(color.RGBA)
			c.Color = colormap.Hex(rgba)
		}
		table[c.Code] = rgba
	}
	return table, nil
}

// NA returns the dataset's universal not-applicable sentinel.
func (r *Registry) NA() float64 {
	return r.na
}

// Tracks returns every track in declared order.
func (r *Registry) Tracks() []*Track {
	return r.tracks
}

// Get looks a track up by ID.
func (r *Registry) Get(id string) (*Track, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	return len(r.tracks)
}
