// Package genes loads a dataset directory: the gene record collection plus
// the metadata that declares its fields, tracks and organism counts. All
// shape validation happens here, at load time, so the interactive engine
// never sees a malformed record.
package genes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/heatview/server/internal/dataset"
	"github.com/heatview/server/internal/track"
)

const (
	metadataFile   = "metadata.json"
	genesFile      = "genes.json"
	genesFileZstd  = "genes.json.zst"
	defaultNAValue = -1
)

// Field declares one column of every gene record.
type Field struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Index     int    `json:"index"`
	Type      string `json:"type"` // "numeric" or "text"
	Search    bool   `json:"search,omitempty"`
	Reactions bool   `json:"reactions,omitempty"`
}

// TrackSpec declares one heatmap track over a numeric field.
type TrackSpec struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Field      int              `json:"field"`
	Encoding   string           `json:"encoding"`
	Default    bool             `json:"default"`
	Gradient   string           `json:"gradient,omitempty"`
	Categories []track.Category `json:"categories,omitempty"`
}

// Metadata is the dataset description shipped next to the gene records.
// Organism cardinalities live here and only here: the engine reads them,
// it never hardcodes them.
type Metadata struct {
	Organism       string   `json:"organism"`
	GenomeID       string   `json:"genome_id"`
	GenomeAssembly string   `json:"genome_assembly,omitempty"`
	Taxonomy       string   `json:"taxonomy,omitempty"`
	DatabaseType   string   `json:"database_type,omitempty"`
	NGenes         int      `json:"n_genes"`
	NRefGenomes    int      `json:"n_ref_genomes"`
	NContigs       int      `json:"n_contigs,omitempty"`
	NAValue        *float64 `json:"na_value,omitempty"`

	Fields []Field     `json:"fields"`
	Tracks []TrackSpec `json:"tracks"`
}

// NA returns the dataset's universal not-applicable sentinel.
func (m *Metadata) NA() float64 {
	if m.NAValue != nil {
		return *m.NAValue
	}
	return defaultNAValue
}

// Dataset bundles everything built from one dataset directory.
type Dataset struct {
	Meta     *Metadata
	Store    *dataset.Store
	Registry *track.Registry
}

// SearchFields returns the indices of text fields flagged searchable.
func (d *Dataset) SearchFields() []int {
	var out []int
	for _, f := range d.Meta.Fields {
		if f.Search && f.Type == "text" {
			out = append(out, f.Index)
		}
	}
	return out
}

// ReactionsField returns the index of the reaction-list text field, or -1.
func (d *Dataset) ReactionsField() int {
	for _, f := range d.Meta.Fields {
		if f.Reactions && f.Type == "text" {
			return f.Index
		}
	}
	return -1
}

// Load reads and validates one dataset directory. Any shape mismatch
// aborts with a diagnostic naming the offending field or track.
func Load(dir string) (*Dataset, error) {
	meta, err := loadMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}

	records, err := loadRecords(dir)
	if err != nil {
		return nil, err
	}
	if len(records) != meta.NGenes {
		return nil, fmt.Errorf("genes: %d records but metadata declares n_genes=%d", len(records), meta.NGenes)
	}

	store, err := buildStore(meta, records)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(meta, store)
	if err != nil {
		return nil, err
	}

	return &Dataset{Meta: meta, Store: store, Registry: registry}, nil
}

func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genes: failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("genes: failed to parse metadata: %w", err)
	}

	if meta.NGenes <= 0 {
		return nil, fmt.Errorf("genes: metadata declares n_genes=%d", meta.NGenes)
	}
	if meta.NRefGenomes <= 0 {
		return nil, fmt.Errorf("genes: metadata declares n_ref_genomes=%d", meta.NRefGenomes)
	}
	if len(meta.Fields) == 0 {
		return nil, fmt.Errorf("genes: metadata declares no fields")
	}

	seen := make(map[int]*Field, len(meta.Fields))
	for i := range meta.Fields {
		f := &meta.Fields[i]
		if f.Index < 0 || f.Index >= len(meta.Fields) {
			return nil, fmt.Errorf("genes: field %q index %d outside record of %d fields", f.ID, f.Index, len(meta.Fields))
		}
		if prev, dup := seen[f.Index]; dup {
			return nil, fmt.Errorf("genes: fields %q and %q both claim index %d", prev.ID, f.ID, f.Index)
		}
		seen[f.Index] = f
		if f.Type != "numeric" && f.Type != "text" {
			return nil, fmt.Errorf("genes: field %q has unknown type %q", f.ID, f.Type)
		}
	}

	for _, ts := range meta.Tracks {
		f, ok := seen[ts.Field]
		if !ok {
			return nil, fmt.Errorf("genes: track %q references undeclared field %d", ts.ID, ts.Field)
		}
		if f.Type != "numeric" {
			return nil, fmt.Errorf("genes: track %q references text field %q", ts.ID, f.ID)
		}
	}

	return &meta, nil
}

// loadRecords reads the record file, preferring the zstd-compressed form.
func loadRecords(dir string) ([][]json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if compressed, cerr := os.ReadFile(filepath.Join(dir, genesFileZstd)); cerr == nil {
		dec, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, fmt.Errorf("genes: failed to create zstd decoder: %w", derr)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("genes: zstd decompress failed: %w", err)
		}
	} else {
		data, err = os.ReadFile(filepath.Join(dir, genesFile))
		if err != nil {
			return nil, fmt.Errorf("genes: failed to read gene records: %w", err)
		}
	}

	var records [][]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("genes: failed to parse gene records: %w", err)
	}
	return records, nil
}

// buildStore converts row records into typed columns, checking every value
// against the declared field types.
func buildStore(meta *Metadata, records [][]json.RawMessage) (*dataset.Store, error) {
	n := len(records)
	na := meta.NA()

	nums := make(map[int][]float64)
	texts := make(map[int][]string)
	for _, f := range meta.Fields {
		if f.Type == "numeric" {
			nums[f.Index] = make([]float64, n)
		} else {
			texts[f.Index] = make([]string, n)
		}
	}

	for gene, rec := range records {
		if len(rec) != len(meta.Fields) {
			return nil, fmt.Errorf("genes: record %d has %d fields, expected %d", gene, len(rec), len(meta.Fields))
		}
		for _, f := range meta.Fields {
			raw := rec[f.Index]
			if f.Type == "numeric" {
				v, err := decodeNumeric(raw, na)
				if err != nil {
					return nil, fmt.Errorf("genes: record %d field %q: %w", gene, f.ID, err)
				}
				nums[f.Index][gene] = v
			} else {
				s, err := decodeText(raw)
				if err != nil {
					return nil, fmt.Errorf("genes: record %d field %q: %w", gene, f.ID, err)
				}
				texts[f.Index][gene] = s
			}
		}
	}

	return dataset.NewStore(na, nums, texts)
}

// decodeNumeric accepts a JSON number or null; null collapses into the
// universal N/A sentinel.
func decodeNumeric(raw json.RawMessage, na float64) (float64, error) {
	if isNull(raw) {
		return na, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("value %s is not numeric", compact(raw))
	}
	return v, nil
}

func decodeText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("value %s is not text", compact(raw))
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func compact(raw json.RawMessage) string {
	if len(raw) > 40 {
		return string(raw[:40]) + "..."
	}
	return string(raw)
}

// buildRegistry turns track specs into the resolved registry, filling each
// sequential track's observed range from the loaded columns.
func buildRegistry(meta *Metadata, store *dataset.Store) (*track.Registry, error) {
	tracks := make([]*track.Track, 0, len(meta.Tracks))
	for _, ts := range meta.Tracks {
		kind, err := track.ParseKind(ts.Encoding)
		if err != nil {
			return nil, fmt.Errorf("genes: track %q: %w", ts.ID, err)
		}

		t := &track.Track{
			ID:             ts.ID,
			Name:           ts.Name,
			Field:          ts.Field,
			Kind:           kind,
			DefaultEnabled: ts.Default,
			Gradient:       ts.Gradient,
			Categories:     ts.Categories,
		}

		if kind == track.Sequential {
			min, max, ok := store.Range(ts.Field)
			if !ok {
				return nil, fmt.Errorf("genes: track %q has no real values to scale against", ts.ID)
			}
			t.Min, t.Max = min, max
		}

		tracks = append(tracks, t)
	}

	return track.NewRegistry(meta.NA(), tracks)
}
