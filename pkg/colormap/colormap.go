// Package colormap provides the color schemes and per-encoding value
// mappers used by the heatmap, minimap and legend renderers.
package colormap

import (
	"fmt"
	"image/color"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
}

// LinearColormap interpolates linearly between an ordered list of stops.
type LinearColormap struct {
	colors []color.RGBA
}

// NewLinear builds a colormap from two or more gradient stops.
func NewLinear(stops ...color.RGBA) LinearColormap {
	return LinearColormap{colors: stops}
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	return c.rgba(t)
}

// AtIndex returns the stop at index i (wraps around).
func (c LinearColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

func (c LinearColormap) rgba(t float64) color.RGBA {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// NeutralNA is the fixed color for the N/A sentinel across every encoding.
// It is deliberately not an endpoint of any gradient below.
var NeutralNA = color.RGBA{204, 204, 204, 255}

// Blues is the default sequential gradient (ColorBrewer Blues, two stops).
var Blues = NewLinear(
	color.RGBA{247, 251, 255, 255},
	color.RGBA{8, 48, 107, 255},
)

// YlOrRd is the consistency gradient (light yellow to dark red), chosen to
// be unmistakable next to Blues.
var YlOrRd = NewLinear(
	color.RGBA{255, 255, 178, 255},
	color.RGBA{189, 0, 38, 255},
)

// Viridis colormap (matplotlib viridis), available as a named alternative
// for sequential tracks.
var Viridis = LinearColormap{
	colors: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}

// BinaryOff and BinaryOn are the fixed colors for binary tracks. Blue and
// orange, never a red/green pairing.
var (
	BinaryOff = color.RGBA{174, 199, 232, 255}
	BinaryOn  = color.RGBA{31, 119, 180, 255}
)

var gradients = map[string]LinearColormap{
	"blues":   Blues,
	"ylorrd":  YlOrRd,
	"viridis": Viridis,
}

// Gradient looks up a named gradient.
func Gradient(name string) (LinearColormap, bool) {
	g, ok := gradients[name]
	return g, ok
}

// ParseHex parses a #RRGGBB color string.
func ParseHex(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("colormap: bad hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("colormap: bad hex color %q", s)
	}
	return color.RGBA{r, g, b, 255}, nil
}

// Hex formats a color as #RRGGBB.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// At returns color at position t.
func (c CategoricalColormap) At(t float64) color.Color {
	idx := int(t * float64(len(c.colors)))
	if idx >= len(c.colors) {
		idx = len(c.colors) - 1
	}
	return c.colors[idx]
}

// AtIndex returns color at index.
func (c CategoricalColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Categorical is the fallback palette for category tables that declare no
// explicit colors, 20 distinct values.
var Categorical = CategoricalColormap{
	colors: []color.RGBA{
		{31, 119, 180, 255},   // Blue
		{255, 127, 14, 255},   // Orange
		{44, 160, 44, 255},    // Green
		{214, 39, 40, 255},    // Red
		{148, 103, 189, 255},  // Purple
		{140, 86, 75, 255},    // Brown
		{227, 119, 194, 255},  // Pink
		{127, 127, 127, 255},  // Gray
		{188, 189, 34, 255},   // Olive
		{23, 190, 207, 255},   // Cyan
		{174, 199, 232, 255},  // Light blue
		{255, 187, 120, 255},  // Light orange
		{152, 223, 138, 255},  // Light green
		{255, 152, 150, 255},  // Light red
		{197, 176, 213, 255},  // Light purple
		{196, 156, 148, 255},  // Light brown
		{247, 182, 210, 255},  // Light pink
		{199, 199, 199, 255},  // Light gray
		{219, 219, 141, 255},  // Light olive
		{158, 218, 229, 255},  // Light cyan
	},
}
