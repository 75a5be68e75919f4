package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/track"
)

// BuildSnapshot reconstructs a frozen view from replayable export
// parameters: the sort is applied to a fresh view of the dataset, so a
// queued job reproduces the ordering it was submitted under even after a
// restart.
func (s *ViewerService) BuildSnapshot(trackIDs []string, sortTrack, sortDirection string) (Snapshot, error) {
	view := s.ds.Store.View()
	if sortTrack != "" {
		dir, err := dataset.ParseDirection(sortDirection)
		if err != nil {
			return Snapshot{}, fmt.Errorf("export: %w", err)
		}
		tr, ok := s.ds.Registry.Get(sortTrack)
		if !ok {
			return Snapshot{}, fmt.Errorf("export: sort by unknown track %q", sortTrack)
		}
		if err := view.SortBy(tr.Field, dir); err != nil {
			return Snapshot{}, fmt.Errorf("export: %w", err)
		}
	}

	return Snapshot{
		Dataset:   s.datasetID,
		Ordering:  append([]int(nil), view.Ordering()...),
		TrackIDs:  trackIDs,
		SortTrack: sortTrack,
		SortDir:   sortDirection,
	}, nil
}

// exportView rebuilds a frozen session view from a snapshot.
func (s *ViewerService) exportView(snap Snapshot) (*dataset.Store, []*track.Track, error) {
	view := s.ds.Store.View()
	if err := view.SetOrdering(snap.Ordering); err != nil {
		return nil, nil, fmt.Errorf("export: %w", err)
	}

	tracks := make([]*track.Track, 0, len(snap.TrackIDs))
	for _, id := range snap.TrackIDs {
		tr, ok := s.ds.Registry.Get(id)
		if !ok {
			return nil, nil, fmt.Errorf("export: unknown track %q", id)
		}
		tracks = append(tracks, tr)
	}
	return view, tracks, nil
}

// RenderExport draws the whole dataset under a snapshot's ordering as a
// PNG. width <= 0 means one pixel column per gene; rowHeight <= 0 falls
// back to the interactive row height.
func (s *ViewerService) RenderExport(snap Snapshot, width, rowHeight int) ([]byte, error) {
	view, tracks, err := s.exportView(snap)
	if err != nil {
		return nil, err
	}

	total := view.GeneCount()
	if width <= 0 {
		width = total
	}
	if rowHeight <= 0 {
		rowHeight = s.heatmap.RowHeight()
	}

	r := render.NewHeatmapRenderer(render.Config{SurfaceWidth: width, RowHeight: rowHeight})
	return r.Render(view, tracks, 0, total)
}

// ExportCSV writes the snapshot's tracks as one row per display position.
// Values are formatted the way the detail panel shows them, so category
// codes come out as labels and sentinels as N/A.
func (s *ViewerService) ExportCSV(snap Snapshot) ([]byte, error) {
	view, tracks, err := s.exportView(snap)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(tracks)+2)
	header = append(header, "position", "gene")
	for _, tr := range tracks {
		header = append(header, tr.ID)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("export: write csv header: %w", err)
	}

	row := make([]string, len(header))
	for pos, gene := range view.Ordering() {
		row[0] = strconv.Itoa(pos)
		row[1] = s.detail.Identity(gene)
		for i, tr := range tracks {
			value, _, ok := s.detail.FormatValue(tr.Field, gene)
			if !ok {
				return nil, fmt.Errorf("export: track %q has no numeric field %d", tr.ID, tr.Field)
			}
			row[i+2] = value
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export: write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
