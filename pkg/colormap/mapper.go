package colormap

import (
	"fmt"
	"image/color"
)

// Mapper converts one track's raw values to display colors. A mapper is
// built once per track when the registry is assembled and is a pure
// function afterwards: the renderer, minimap and legend all get identical
// colors for the same value.
type Mapper interface {
	Map(v float64) (color.RGBA, error)
}

// SequentialMapper spreads a two-stop gradient across the observed value
// range of a track. The range is fixed at dataset load, not per frame.
type SequentialMapper struct {
	Gradient LinearColormap
	Min, Max float64
	NA       float64
}

func (m SequentialMapper) Map(v float64) (color.RGBA, error) {
	if v == m.NA {
		return NeutralNA, nil
	}
	span := m.Max - m.Min
	if span <= 0 {
		// Degenerate track where every value is identical.
		return m.Gradient.rgba(0), nil
	}
	return m.Gradient.rgba((v - m.Min) / span), nil
}

// BinaryMapper colors the two enumerated states of a binary track. Any
// value other than the two states or the N/A sentinel is a data error.
type BinaryMapper struct {
	Zero, One color.RGBA
	NA        float64
}

func (m BinaryMapper) Map(v float64) (color.RGBA, error) {
	switch v {
	case 0:
		return m.Zero, nil
	case 1:
		return m.One, nil
	case m.NA:
		return NeutralNA, nil
	}
	return color.RGBA{}, fmt.Errorf("colormap: binary value %v is not a known state", v)
}

// CategoricalMapper looks codes up in a fixed table. Unknown codes fail
// loudly so upstream pipeline bugs surface instead of hiding behind a
// default color.
type CategoricalMapper struct {
	Colors map[int]color.RGBA
	NA     float64
}

func (m CategoricalMapper) Map(v float64) (color.RGBA, error) {
	if v == m.NA {
		return NeutralNA, nil
	}
	code := int(v)
	if float64(code) != v {
		return color.RGBA{}, fmt.Errorf("colormap: category code %v is not an integer", v)
	}
	c, ok := m.Colors[code]
	if !ok {
		return color.RGBA{}, fmt.Errorf("colormap: unknown category code %d", code)
	}
	return c, nil
}

// ConsistencyMapper maps the fixed [0,1] agreement scale. Unlike
// SequentialMapper the domain never depends on the dataset.
type ConsistencyMapper struct {
	Gradient LinearColormap
	NA       float64
}

func (m ConsistencyMapper) Map(v float64) (color.RGBA, error) {
	if v == m.NA {
		return NeutralNA, nil
	}
	return m.Gradient.rgba(v), nil
}
