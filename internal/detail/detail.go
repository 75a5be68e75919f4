// Package detail assembles the labeled full record shown when a heatmap
// cell is clicked.
package detail

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/heatview/server/internal/data/genes"
	"github.com/heatview/server/internal/data/pipeline"
	"github.com/heatview/server/internal/track"
)

// Value is one formatted record field.
type Value struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
	NA    bool   `json:"na,omitempty"`
}

// Info is the detail-panel payload for one gene.
type Info struct {
	Gene      int      `json:"gene"`
	ID        string   `json:"id,omitempty"`
	Fields    []Value  `json:"fields"`
	Reactions []string `json:"reactions,omitempty"`
}

// Provider formats gene records for the detail panel. Numeric sentinel
// values come out as a flagged "N/A", category codes come out as their
// declared labels. Everything else is the record verbatim.
type Provider struct {
	ds      *genes.Dataset
	arts    *pipeline.Artifacts
	idField int
	byField map[int]*track.Track
	byID    map[string]int
}

// NewProvider indexes the dataset for detail lookups. arts is optional
// and only consulted when the records carry no reaction field.
func NewProvider(ds *genes.Dataset, arts *pipeline.Artifacts) *Provider {
	p := &Provider{
		ds:      ds,
		arts:    arts,
		idField: -1,
		byField: make(map[int]*track.Track),
	}

	for _, t := range ds.Registry.Tracks() {
		if t.Kind == track.Categorical || t.Kind == track.Binary {
			p.byField[t.Field] = t
		}
	}

	// Gene identity: the first searchable text field, else the first text
	// field at all.
	first := -1
	for _, f := range ds.Meta.Fields {
		if f.Type != "text" {
			continue
		}
		if first < 0 {
			first = f.Index
		}
		if f.Search {
			p.idField = f.Index
			break
		}
	}
	if p.idField < 0 {
		p.idField = first
	}

	if p.idField >= 0 {
		if col, ok := ds.Store.TextColumn(p.idField); ok {
			p.byID = make(map[string]int, len(col))
			for i, id := range col {
				if _, dup := p.byID[id]; id != "" && !dup {
					p.byID[id] = i
				}
			}
		}
	}
	return p
}

// Lookup resolves a gene identifier to its genome position.
func (p *Provider) Lookup(id string) (int, bool) {
	gene, ok := p.byID[id]
	return gene, ok
}

// Identity returns the display identifier for a gene, empty when the
// dataset declares no identity field.
func (p *Provider) Identity(gene int) string {
	if p.idField < 0 {
		return ""
	}
	id, _ := p.ds.Store.Text(p.idField, gene)
	return id
}

// FormatValue renders one numeric field of one gene exactly as Describe
// does; na reports the sentinel. ok is false when the field has no
// numeric column or the gene is out of range.
func (p *Provider) FormatValue(field, gene int) (value string, na, ok bool) {
	raw, found := p.ds.Store.Value(field, gene)
	if !found {
		return "", false, false
	}
	value, na = p.formatNumeric(field, raw, p.ds.Store.NA())
	return value, na, true
}

// Describe returns the full labeled record of one gene.
func (p *Provider) Describe(gene int) (*Info, error) {
	n := p.ds.Store.GeneCount()
	if gene < 0 || gene >= n {
		return nil, fmt.Errorf("detail: gene %d out of range [0, %d)", gene, n)
	}

	info := &Info{Gene: gene}
	if p.idField >= 0 {
		info.ID, _ = p.ds.Store.Text(p.idField, gene)
	}

	na := p.ds.Store.NA()
	for _, f := range p.ds.Meta.Fields {
		v := Value{Field: f.ID, Label: f.Name}
		switch f.Type {
		case "text":
			v.Value, _ = p.ds.Store.Text(f.Index, gene)
		default:
			raw, _ := p.ds.Store.Value(f.Index, gene)
			v.Value, v.NA = p.formatNumeric(f.Index, raw, na)
		}
		info.Fields = append(info.Fields, v)
	}

	info.Reactions = p.reactions(gene, info.ID)
	return info, nil
}

func (p *Provider) formatNumeric(field int, v, na float64) (string, bool) {
	if v == na {
		return "N/A", true
	}
	if t, ok := p.byField[field]; ok {
		if label, ok := categoryLabel(t, v); ok {
			return label, false
		}
	}
	return strconv.FormatFloat(v, 'g', -1, 64), false
}

func categoryLabel(t *track.Track, v float64) (string, bool) {
	code := int(v)
	if float64(code) != v {
		return "", false
	}
	for _, c := range t.Categories {
		if c.Code == code {
			return c.Label, true
		}
	}
	if t.Kind == track.Binary && len(t.Categories) == 0 {
		switch code {
		case 0:
			return "no", true
		case 1:
			return "yes", true
		}
	}
	return "", false
}

// reactions prefers the record's own reaction field; the pipeline index
// is the fallback for datasets that ship reactions separately.
func (p *Provider) reactions(gene int, id string) []string {
	if f := p.ds.ReactionsField(); f >= 0 {
		raw, _ := p.ds.Store.Text(f, gene)
		return splitReactions(raw)
	}
	if id != "" {
		return p.arts.ReactionsFor(id)
	}
	return nil
}

func splitReactions(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
