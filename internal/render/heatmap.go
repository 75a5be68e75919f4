// Package render draws the heatmap surface and owns the gene-to-pixel
// transform shared with the hit-tester and minimap.
package render

import (
	"bytes"
	"fmt"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/track"
)

// Config holds the fixed surface geometry.
type Config struct {
	SurfaceWidth int
	RowHeight    int
}

// DefaultConfig returns the standard surface geometry.
func DefaultConfig() Config {
	return Config{
		SurfaceWidth: 1200,
		RowHeight:    22,
	}
}

// HeatmapRenderer draws one row per active track, one column span per
// visible gene. Drawing contexts and encode buffers are pooled; the
// context pool is only hit when the active track count keeps the surface
// height stable, which is the common case between toggles.
type HeatmapRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewHeatmapRenderer creates a renderer with the given geometry. Zero
// config values fall back to defaults.
func NewHeatmapRenderer(config Config) *HeatmapRenderer {
	def := DefaultConfig()
	if config.SurfaceWidth <= 0 {
		config.SurfaceWidth = def.SurfaceWidth
	}
	if config.RowHeight <= 0 {
		config.RowHeight = def.RowHeight
	}

	return &HeatmapRenderer{
		config: config,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// SurfaceWidth returns the configured surface width in pixels.
func (r *HeatmapRenderer) SurfaceWidth() int {
	return r.config.SurfaceWidth
}

// RowHeight returns the configured track row height in pixels.
func (r *HeatmapRenderer) RowHeight() int {
	return r.config.RowHeight
}

// SurfaceHeight returns the surface height for a number of track rows.
func (r *HeatmapRenderer) SurfaceHeight(rows int) int {
	if rows < 1 {
		rows = 1
	}
	return rows * r.config.RowHeight
}

// Render draws the visible window [start, start+count) of the current
// ordering for the given active tracks and returns an encoded PNG.
// Unknown category codes abort the pass: a wrong color over thousands of
// cells is worse than a loud failure.
func (r *HeatmapRenderer) Render(store *dataset.Store, tracks []*track.Track, start, count int) ([]byte, error) {
	if count <= 0 {
		return nil, fmt.Errorf("render: nothing visible (count %d)", count)
	}

	width := r.config.SurfaceWidth
	height := r.SurfaceHeight(len(tracks))
	dc := r.getContext(width, height)
	defer r.putContext(dc)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	ordering := store.Ordering()
	if start < 0 || start+count > len(ordering) {
		return nil, fmt.Errorf("render: window [%d, %d) outside ordering of %d", start, start+count, len(ordering))
	}

	tf := NewTransform(width, count)
	rowHeight := float64(r.config.RowHeight)

	for row, tr := range tracks {
		col, ok := store.NumericColumn(tr.Field)
		if !ok {
			return nil, fmt.Errorf("render: track %q has no numeric field %d", tr.ID, tr.Field)
		}
		mapper := tr.Mapper()
		y := float64(row) * rowHeight

		for i := 0; i < count; i++ {
			x0 := tf.Edge(i)
			x1 := tf.Edge(i + 1)
			if x1 <= x0 {
				// Sub-pixel column collapsed into its neighbor.
				continue
			}

			gene := ordering[start+i]
			c, err := mapper.Map(col[gene])
			if err != nil {
				return nil, fmt.Errorf("render: track %q gene %d: %w", tr.ID, gene, err)
			}

			dc.SetColor(c)
			dc.DrawRectangle(float64(x0), y, float64(x1-x0), rowHeight)
			dc.Fill()
		}
	}

	return r.encodeContext(dc)
}

func (r *HeatmapRenderer) getContext(width, height int) *gg.Context {
	if v := r.contextPool.Get(); v != nil {
		dc := v.(*gg.Context)
		if dc.Width() == width && dc.Height() == height {
			return dc
		}
	}
	return gg.NewContext(width, height)
}

func (r *HeatmapRenderer) putContext(dc *gg.Context) {
	r.contextPool.Put(dc)
}

func (r *HeatmapRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer r.bufferPool.Put(buf)

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
