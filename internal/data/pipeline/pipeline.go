// Package pipeline loads the statistical-pipeline artifacts shipped next
// to the gene records: the genome tree, the precomputed embeddings, the
// reaction network and the summary stats. The engine never recomputes any
// of it; files are shape-checked, then served as opaque payloads.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/heatview/server/pkg/colormap"
)

const (
	treeFile      = "tree.json"
	clustersFile  = "clusters.json"
	reactionsFile = "reactions.json"
	summaryFile   = "summary.json"
)

// Reaction is one metabolic reaction with its precomputed statistics.
type Reaction struct {
	Genes        []string `json:"genes"`
	Equation     string   `json:"equation"`
	Direction    string   `json:"directionality"`
	GapFilling   string   `json:"gapfilling,omitempty"`
	Conservation float64  `json:"conservation"`
	FluxRich     *float64 `json:"flux_rich"`
	FluxMin      *float64 `json:"flux_min"`
	ClassRich    string   `json:"class_rich"`
	ClassMin     string   `json:"class_min"`
}

// Artifacts bundles whatever pipeline outputs the dataset directory
// carries. Absent files leave their slot nil; the API surfaces them as 404
// rather than failing the whole dataset.
type Artifacts struct {
	Tree         json.RawMessage
	Clusters     json.RawMessage
	Summary      json.RawMessage
	ReactionsRaw json.RawMessage

	Reactions map[string]Reaction
	GeneIndex map[string][]string

	na float64
}

// Load reads the optional artifact files. nRefGenomes comes from the
// dataset metadata and pins the tree's leaf count; it is never hardcoded.
func Load(dir string, nRefGenomes int, na float64) (*Artifacts, error) {
	a := &Artifacts{na: na}

	if raw, ok, err := readOptional(filepath.Join(dir, treeFile)); err != nil {
		return nil, err
	} else if ok {
		var tree struct {
			LeafOrder []string `json:"leaf_order"`
		}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("pipeline: failed to parse %s: %w", treeFile, err)
		}
		if len(tree.LeafOrder) != nRefGenomes {
			return nil, fmt.Errorf("pipeline: tree has %d leaves, metadata declares %d reference genomes",
				len(tree.LeafOrder), nRefGenomes)
		}
		a.Tree = raw
	}

	if raw, ok, err := readOptional(filepath.Join(dir, clustersFile)); err != nil {
		return nil, err
	} else if ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("pipeline: %s is not valid JSON", clustersFile)
		}
		a.Clusters = raw
	}

	if raw, ok, err := readOptional(filepath.Join(dir, summaryFile)); err != nil {
		return nil, err
	} else if ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("pipeline: %s is not valid JSON", summaryFile)
		}
		a.Summary = raw
	}

	if raw, ok, err := readOptional(filepath.Join(dir, reactionsFile)); err != nil {
		return nil, err
	} else if ok {
		var parsed struct {
			Reactions map[string]Reaction `json:"reactions"`
			GeneIndex map[string][]string `json:"gene_index"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("pipeline: failed to parse %s: %w", reactionsFile, err)
		}
		a.ReactionsRaw = raw
		a.Reactions = parsed.Reactions
		a.GeneIndex = parsed.GeneIndex
	}

	return a, nil
}

func readOptional(path string) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pipeline: failed to read %s: %w", filepath.Base(path), err)
	}
	return data, true, nil
}

// ReactionsFor returns the reaction IDs a gene participates in.
func (a *Artifacts) ReactionsFor(geneID string) []string {
	if a == nil || a.GeneIndex == nil {
		return nil
	}
	return a.GeneIndex[geneID]
}

// ColoringMetrics lists the scalar metrics ReactionColoring accepts.
func ColoringMetrics() []string {
	return []string{"conservation", "flux_rich", "flux_min"}
}

// ReactionColoring computes one hex color per reaction from a single
// scalar metric. This is the whole contract with the pathway-diagram
// collaborator: it lays out the map, we hand it colors built with the
// same mappers the heatmap uses.
func (a *Artifacts) ReactionColoring(metric string) (map[string]string, error) {
	if a == nil || a.Reactions == nil {
		return nil, fmt.Errorf("pipeline: no reaction data loaded")
	}

	value, err := a.metricAccessor(metric)
	if err != nil {
		return nil, err
	}

	var mapper colormap.Mapper
	switch metric {
	case "conservation":
		mapper = colormap.ConsistencyMapper{Gradient: colormap.YlOrRd, NA: a.na}
	default:
		min, max, any := a.metricRange(value)
		if !any {
			min, max = 0, 1
		}
		mapper = colormap.SequentialMapper{Gradient: colormap.Blues, Min: min, Max: max, NA: a.na}
	}

	out := make(map[string]string, len(a.Reactions))
	for id, r := range a.Reactions {
		c, err := mapper.Map(value(r))
		if err != nil {
			return nil, fmt.Errorf("pipeline: reaction %s: %w", id, err)
		}
		out[id] = colormap.Hex(c)
	}
	return out, nil
}

func (a *Artifacts) metricAccessor(metric string) (func(Reaction) float64, error) {
	switch metric {
	case "conservation":
		return func(r Reaction) float64 { return r.Conservation }, nil
	case "flux_rich":
		return func(r Reaction) float64 { return a.orNA(r.FluxRich) }, nil
	case "flux_min":
		return func(r Reaction) float64 { return a.orNA(r.FluxMin) }, nil
	}
	return nil, fmt.Errorf("pipeline: unknown coloring metric %q", metric)
}

func (a *Artifacts) orNA(v *float64) float64 {
	if v == nil {
		return a.na
	}
	return *v
}

func (a *Artifacts) metricRange(value func(Reaction) float64) (min, max float64, any bool) {
	for _, r := range a.Reactions {
		v := value(r)
		if v == a.na {
			continue
		}
		if !any {
			min, max, any = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, any
}
