// Package service provides business logic for the heatmap viewer.
package service

import (
	"encoding/json"
	"fmt"

	"github.com/heatview/server/internal/cache"
	"github.com/heatview/server/internal/data/genes"
	"github.com/heatview/server/internal/data/pav"
	"github.com/heatview/server/internal/data/pipeline"
	"github.com/heatview/server/internal/detail"
	"github.com/heatview/server/internal/minimap"
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/search"
	"github.com/heatview/server/internal/track"
	"github.com/heatview/server/pkg/colormap"
)

// ViewerServiceConfig contains viewer service configuration.
type ViewerServiceConfig struct {
	DatasetID string
	Dataset   *genes.Dataset
	Artifacts *pipeline.Artifacts
	Pav       *pav.Matrix
	Cache     *cache.Manager
	Heatmap   *render.HeatmapRenderer
	Minimap   *minimap.Renderer
}

// ViewerService serves one dataset: frames, search, the detail panel and
// the pipeline artifacts. Per-viewer state lives in Session; everything
// here is immutable after construction and safe for concurrent use.
type ViewerService struct {
	datasetID string
	ds        *genes.Dataset
	arts      *pipeline.Artifacts
	pav       *pav.Matrix
	cache     *cache.Manager
	heatmap   *render.HeatmapRenderer
	minimap   *minimap.Renderer
	search    *search.Index
	detail    *detail.Provider
}

// NewViewerService creates a new viewer service.
func NewViewerService(cfg ViewerServiceConfig) *ViewerService {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}

	var columns [][]string
	for _, f := range cfg.Dataset.SearchFields() {
		if col, ok := cfg.Dataset.Store.TextColumn(f); ok {
			columns = append(columns, col)
		}
	}

	return &ViewerService{
		datasetID: datasetID,
		ds:        cfg.Dataset,
		arts:      cfg.Artifacts,
		pav:       cfg.Pav,
		cache:     cfg.Cache,
		heatmap:   cfg.Heatmap,
		minimap:   cfg.Minimap,
		search:    search.New(columns...),
		detail:    detail.NewProvider(cfg.Dataset, cfg.Artifacts),
	}
}

// DatasetID returns the dataset identifier.
func (s *ViewerService) DatasetID() string {
	return s.datasetID
}

// Meta returns the dataset metadata.
func (s *ViewerService) Meta() *genes.Metadata {
	return s.ds.Meta
}

// Registry returns the track catalog.
func (s *ViewerService) Registry() *track.Registry {
	return s.ds.Registry
}

// GeneCount returns the number of genes in the dataset.
func (s *ViewerService) GeneCount() int {
	return s.ds.Store.GeneCount()
}

// Stats summarizes the dataset and the shared cache state.
func (s *ViewerService) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"dataset":       s.datasetID,
		"organism":      s.ds.Meta.Organism,
		"n_genes":       s.GeneCount(),
		"n_ref_genomes": s.ds.Meta.NRefGenomes,
		"n_tracks":      s.ds.Registry.Len(),
		"presence":      s.PresenceSupported(),
	}
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	return stats
}

// TrackLegendItem describes one track for the catalog endpoint, including
// exactly the colors the renderer will use.
type TrackLegendItem struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	Default    bool             `json:"default"`
	Gradient   []string         `json:"gradient,omitempty"`
	Categories []track.Category `json:"categories,omitempty"`
	NAColor    string           `json:"na_color"`
}

// TrackCatalog returns legend data for every track in catalog order.
func (s *ViewerService) TrackCatalog() []TrackLegendItem {
	naHex := colormap.Hex(colormap.NeutralNA)

	items := make([]TrackLegendItem, 0, s.ds.Registry.Len())
	for _, tr := range s.ds.Registry.Tracks() {
		item := TrackLegendItem{
			ID:      tr.ID,
			Name:    tr.Name,
			Kind:    tr.Kind.String(),
			Default: tr.DefaultEnabled,
			NAColor: naHex,
		}

		switch tr.Kind {
		case track.Sequential:
			item.Gradient = gradientStops(tr.Mapper(), tr.Min, tr.Max)
		case track.Consistency:
			item.Gradient = gradientStops(tr.Mapper(), 0, 1)
		case track.Binary:
			item.Categories = tr.Categories
			if len(item.Categories) == 0 {
				item.Categories = []track.Category{
					{Code: 0, Label: "no", Color: colormap.Hex(colormap.BinaryOff)},
					{Code: 1, Label: "yes", Color: colormap.Hex(colormap.BinaryOn)},
				}
			}
		case track.Categorical:
			item.Categories = tr.Categories
		}

		items = append(items, item)
	}
	return items
}

func gradientStops(m colormap.Mapper, lo, hi float64) []string {
	cLo, err := m.Map(lo)
	if err != nil {
		return nil
	}
	cHi, err := m.Map(hi)
	if err != nil {
		return nil
	}
	return []string{colormap.Hex(cLo), colormap.Hex(cHi)}
}

// Search returns the gene identities matching a query, in genome order.
// An empty or whitespace query matches nothing.
func (s *ViewerService) Search(query string) []int {
	return s.search.Query(query)
}

// SearchJSON returns the match-set payload for a query, cached per
// dataset and query.
func (s *ViewerService) SearchJSON(query string) ([]byte, error) {
	key := cache.SearchKey(s.datasetID, query)
	if data, ok := s.cache.GetQuery(key); ok {
		return data, nil
	}

	matches := s.search.Query(query)
	if matches == nil {
		matches = []int{}
	}
	payload := struct {
		Query   string `json:"query"`
		Count   int    `json:"count"`
		Matches []int  `json:"matches"`
	}{query, len(matches), matches}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search result: %w", err)
	}
	s.cache.SetQuery(key, data)
	return data, nil
}

// Detail returns the labeled full record of one gene.
func (s *ViewerService) Detail(gene int) (*detail.Info, error) {
	return s.detail.Describe(gene)
}

// DetailByID resolves a gene identifier and returns its record.
func (s *ViewerService) DetailByID(id string) (*detail.Info, error) {
	gene, ok := s.detail.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("gene %q not found in dataset %s", id, s.datasetID)
	}
	return s.detail.Describe(gene)
}

// HasGene reports whether an identifier resolves in this dataset.
func (s *ViewerService) HasGene(id string) bool {
	_, ok := s.detail.Lookup(id)
	return ok
}

// LookupGene resolves a gene identifier to its genome position.
func (s *ViewerService) LookupGene(id string) (int, bool) {
	return s.detail.Lookup(id)
}

// GenePresence is the per-genome presence strip for one gene.
type GenePresence struct {
	Gene    int     `json:"gene"`
	Genomes int     `json:"genomes"`
	Present []uint8 `json:"present"`
}

// Presence reads one gene's presence/absence row. Datasets without a PAV
// array, and binaries built without TileDB, report an error the API maps
// to an unavailable status.
func (s *ViewerService) Presence(gene int) (*GenePresence, error) {
	if s.pav == nil {
		return nil, fmt.Errorf("presence data not available for dataset %s", s.datasetID)
	}
	if gene < 0 || gene >= s.GeneCount() {
		return nil, fmt.Errorf("gene %d out of range [0, %d)", gene, s.GeneCount())
	}
	row, err := s.pav.PresenceRow(gene)
	if err != nil {
		return nil, err
	}
	return &GenePresence{Gene: gene, Genomes: len(row), Present: row}, nil
}

// PresenceSupported reports whether PAV reads can succeed in this build.
func (s *ViewerService) PresenceSupported() bool {
	return s.pav != nil && s.pav.Supported()
}

// Tree returns the raw genome tree artifact, or nil when absent.
func (s *ViewerService) Tree() json.RawMessage {
	if s.arts == nil {
		return nil
	}
	return s.arts.Tree
}

// Clusters returns the raw cluster embedding artifact, or nil when absent.
func (s *ViewerService) Clusters() json.RawMessage {
	if s.arts == nil {
		return nil
	}
	return s.arts.Clusters
}

// Summary returns the raw pan-genome summary artifact, or nil when absent.
func (s *ViewerService) Summary() json.RawMessage {
	if s.arts == nil {
		return nil
	}
	return s.arts.Summary
}

// Reactions returns the raw reaction network artifact, or nil when absent.
func (s *ViewerService) Reactions() json.RawMessage {
	if s.arts == nil {
		return nil
	}
	return s.arts.ReactionsRaw
}

// ReactionColoringJSON returns the reaction-to-hex coloring payload for
// one metric, cached per dataset and metric.
func (s *ViewerService) ReactionColoringJSON(metric string) ([]byte, error) {
	if s.arts == nil {
		return nil, fmt.Errorf("no reaction data for dataset %s", s.datasetID)
	}

	key := cache.ReactionKey(s.datasetID, metric)
	if data, ok := s.cache.GetQuery(key); ok {
		return data, nil
	}

	colors, err := s.arts.ReactionColoring(metric)
	if err != nil {
		return nil, err
	}
	payload := struct {
		Metric string            `json:"metric"`
		Colors map[string]string `json:"colors"`
	}{metric, colors}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reaction coloring: %w", err)
	}
	s.cache.SetQuery(key, data)
	return data, nil
}
