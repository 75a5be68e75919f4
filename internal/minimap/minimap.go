// Package minimap draws the compressed whole-dataset overview: every gene
// in the current ordering squeezed into a fixed-width strip, the viewport
// window highlighted on top, and tick marks for search matches.
package minimap

import (
	"bytes"
	"fmt"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/track"
)

// Config holds the minimap geometry.
type Config struct {
	Width  int
	Height int
}

// DefaultConfig returns the standard minimap geometry.
func DefaultConfig() Config {
	return Config{
		Width:  256,
		Height: 96,
	}
}

// View is the interactive state drawn on top of the gene strip.
type View struct {
	ViewStart int
	ViewCount int
	Matches   []int
}

// Renderer aggregates gene buckets per pixel column. Aggregation follows
// the encoding kinds: continuous tracks average their non-N/A values,
// discrete tracks take the majority code, and a bucket holding nothing
// but N/A renders as the neutral gray.
type Renderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewRenderer creates a minimap renderer. Zero config values fall back to
// defaults.
func NewRenderer(config Config) *Renderer {
	def := DefaultConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}

	r := &Renderer{config: config}
	r.contextPool = sync.Pool{
		New: func() interface{} {
			return gg.NewContext(config.Width, config.Height)
		},
	}
	r.bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
	return r
}

// Width returns the minimap width in pixels.
func (r *Renderer) Width() int {
	return r.config.Width
}

// Height returns the minimap height in pixels.
func (r *Renderer) Height() int {
	return r.config.Height
}

// ClickIndex converts a click on the minimap into the desired center gene
// position: round(px / width * total), clamped into the dataset.
func (r *Renderer) ClickIndex(px, total int) int {
	idx := int(math.Round(float64(px) / float64(r.config.Width) * float64(total)))
	if idx < 0 {
		idx = 0
	}
	if idx >= total && total > 0 {
		idx = total - 1
	}
	return idx
}

// Render draws the whole dataset in the current ordering plus the view
// overlay and returns an encoded PNG.
func (r *Renderer) Render(store *dataset.Store, tracks []*track.Track, v View) ([]byte, error) {
	n := store.GeneCount()
	if n == 0 {
		return nil, fmt.Errorf("minimap: empty dataset")
	}

	width := r.config.Width
	height := r.config.Height
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	ordering := store.Ordering()
	na := store.NA()

	if len(tracks) > 0 {
		rowH := float64(height) / float64(len(tracks))
		for row, tr := range tracks {
			col, ok := store.NumericColumn(tr.Field)
			if !ok {
				return nil, fmt.Errorf("minimap: track %q has no numeric field %d", tr.ID, tr.Field)
			}
			mapper := tr.Mapper()
			discrete := tr.Kind == track.Binary || tr.Kind == track.Categorical
			y := float64(row) * rowH

			for b := 0; b < width; b++ {
				lo := b * n / width
				hi := (b + 1) * n / width
				if hi <= lo {
					hi = lo + 1
				}
				if hi > n {
					hi = n
				}

				var value float64
				if discrete {
					value = majorityValue(col, ordering[lo:hi])
				} else {
					value = meanValue(col, ordering[lo:hi], na)
				}

				c, err := mapper.Map(value)
				if err != nil {
					return nil, fmt.Errorf("minimap: track %q bucket %d: %w", tr.ID, b, err)
				}
				dc.SetColor(c)
				dc.DrawRectangle(float64(b), y, 1, rowH)
				dc.Fill()
			}
		}
	}

	r.drawViewWindow(dc, v, n)
	r.drawMatchTicks(dc, v.Matches, ordering, n)

	return r.encodeContext(dc)
}

// majorityValue returns the most frequent raw value in the bucket. Ties go
// to the smaller value so the result never depends on map iteration order.
func majorityValue(col []float64, genes []int) float64 {
	counts := make(map[float64]int, 4)
	for _, g := range genes {
		counts[col[g]]++
	}
	var (
		best      float64
		bestCount int
	)
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// meanValue averages the bucket's non-N/A values; an all-N/A bucket keeps
// the sentinel so the mapper paints it neutral gray.
func meanValue(col []float64, genes []int, na float64) float64 {
	var (
		sum float64
		cnt int
	)
	for _, g := range genes {
		if col[g] == na {
			continue
		}
		sum += col[g]
		cnt++
	}
	if cnt == 0 {
		return na
	}
	return sum / float64(cnt)
}

func (r *Renderer) drawViewWindow(dc *gg.Context, v View, total int) {
	if v.ViewCount <= 0 || v.ViewCount >= total {
		// Full view: no window to call out.
		return
	}
	width := float64(r.config.Width)
	x0 := math.Round(float64(v.ViewStart) / float64(total) * width)
	x1 := math.Round(float64(v.ViewStart+v.ViewCount) / float64(total) * width)
	if x1 <= x0 {
		x1 = x0 + 1
	}

	h := float64(r.config.Height)
	dc.SetRGBA(0.12, 0.47, 0.71, 0.18)
	dc.DrawRectangle(x0, 0, x1-x0, h)
	dc.Fill()
	dc.SetRGBA(0.12, 0.47, 0.71, 0.9)
	dc.SetLineWidth(1.5)
	dc.DrawRectangle(x0, 0, x1-x0, h)
	dc.Stroke()
}

func (r *Renderer) drawMatchTicks(dc *gg.Context, matches []int, ordering []int, total int) {
	if len(matches) == 0 {
		return
	}

	posOf := make([]int, total)
	for pos, gene := range ordering {
		posOf[gene] = pos
	}

	tickH := float64(r.config.Height) / 8
	if tickH < 4 {
		tickH = 4
	}
	width := float64(r.config.Width)

	dc.SetRGB255(255, 127, 14)
	for _, gene := range matches {
		if gene < 0 || gene >= total {
			continue
		}
		x := math.Round(float64(posOf[gene]) / float64(total) * width)
		if x >= width {
			x = width - 1
		}
		dc.DrawRectangle(x, 0, 1, tickH)
		dc.Fill()
	}
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.bufferPool.Put(buf)

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("minimap: encode png: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
