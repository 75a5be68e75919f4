package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heatview/server/pkg/colormap"
)

const testNA = -1.0

func writeArtifacts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func leafTree(n int) string {
	leaves := make([]string, n)
	for i := range leaves {
		leaves[i] = fmt.Sprintf("%q", fmt.Sprintf("genome_%03d", i))
	}
	return fmt.Sprintf(`{"leaf_order": [%s], "branches": []}`, strings.Join(leaves, ","))
}

const testReactions = `{
  "reactions": {
    "rxn00001": {
      "genes": ["peg.1", "peg.2"],
      "equation": "ATP + H2O -> ADP + Pi",
      "directionality": ">",
      "conservation": 1.0,
      "flux_rich": 4.25,
      "flux_min": null,
      "class_rich": "essential",
      "class_min": "blocked"
    },
    "rxn00002": {
      "genes": ["peg.2"],
      "equation": "A -> B",
      "directionality": "=",
      "conservation": 0.0,
      "flux_rich": -2.0,
      "flux_min": 0.5,
      "class_rich": "variable",
      "class_min": "variable"
    }
  },
  "gene_index": {
    "peg.1": ["rxn00001"],
    "peg.2": ["rxn00001", "rxn00002"]
  }
}`

func TestLoadAllArtifacts(t *testing.T) {
	t.Parallel()

	dir := writeArtifacts(t, map[string]string{
		"tree.json":      leafTree(13),
		"clusters.json":  `{"umap": [[0.1, 0.2]]}`,
		"summary.json":   `{"core": 3012, "accessory": 1605}`,
		"reactions.json": testReactions,
	})

	a, err := Load(dir, 13, testNA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Tree == nil || a.Clusters == nil || a.Summary == nil || a.ReactionsRaw == nil {
		t.Fatalf("expected all raw artifacts loaded, got tree=%v clusters=%v summary=%v reactions=%v",
			a.Tree != nil, a.Clusters != nil, a.Summary != nil, a.ReactionsRaw != nil)
	}
	if len(a.Reactions) != 2 {
		t.Fatalf("expected 2 reactions, got %d", len(a.Reactions))
	}
	r := a.Reactions["rxn00001"]
	if r.Equation != "ATP + H2O -> ADP + Pi" || r.FluxRich == nil || *r.FluxRich != 4.25 {
		t.Fatalf("rxn00001 parsed wrong: %+v", r)
	}
	if r.FluxMin != nil {
		t.Fatalf("null flux_min should stay nil, got %v", *r.FluxMin)
	}
}

func TestLoadMissingFilesAreOptional(t *testing.T) {
	t.Parallel()

	a, err := Load(t.TempDir(), 13, testNA)
	if err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if a.Tree != nil || a.Clusters != nil || a.Summary != nil || a.ReactionsRaw != nil || a.Reactions != nil {
		t.Fatalf("expected all slots nil, got %+v", a)
	}
	if got := a.ReactionsFor("peg.1"); got != nil {
		t.Fatalf("ReactionsFor without data = %v, want nil", got)
	}
	if _, err := a.ReactionColoring("conservation"); err == nil {
		t.Fatal("expected error coloring without reaction data")
	}
}

func TestLoadRejectsWrongLeafCount(t *testing.T) {
	t.Parallel()

	dir := writeArtifacts(t, map[string]string{"tree.json": leafTree(3)})
	_, err := Load(dir, 13, testNA)
	if err == nil {
		t.Fatal("expected error for tree/metadata leaf mismatch")
	}
	if !strings.Contains(err.Error(), "3 leaves") || !strings.Contains(err.Error(), "13") {
		t.Fatalf("error should name both counts, got: %v", err)
	}
}

func TestLoadRejectsMalformedArtifacts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"truncated tree", "tree.json", `{"leaf_order": [`},
		{"invalid clusters", "clusters.json", `{not json}`},
		{"invalid summary", "summary.json", `,`},
		{"reactions wrong shape", "reactions.json", `{"reactions": [1, 2]}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := writeArtifacts(t, map[string]string{tc.file: tc.body})
			if _, err := Load(dir, 13, testNA); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestReactionsFor(t *testing.T) {
	t.Parallel()

	dir := writeArtifacts(t, map[string]string{"reactions.json": testReactions})
	a, err := Load(dir, 13, testNA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := a.ReactionsFor("peg.2")
	if len(got) != 2 || got[0] != "rxn00001" || got[1] != "rxn00002" {
		t.Fatalf("ReactionsFor(peg.2) = %v", got)
	}
	if a.ReactionsFor("peg.999") != nil {
		t.Fatal("unknown gene should return nil")
	}
}

func TestReactionColoring(t *testing.T) {
	t.Parallel()

	dir := writeArtifacts(t, map[string]string{"reactions.json": testReactions})
	a, err := Load(dir, 13, testNA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Run("conservation spans the consistency gradient", func(t *testing.T) {
		colors, err := a.ReactionColoring("conservation")
		if err != nil {
			t.Fatalf("ReactionColoring: %v", err)
		}
		mapper := colormap.ConsistencyMapper{Gradient: colormap.YlOrRd, NA: testNA}
		lo, err := mapper.Map(0)
		if err != nil {
			t.Fatalf("mapper: %v", err)
		}
		hi, err := mapper.Map(1)
		if err != nil {
			t.Fatalf("mapper: %v", err)
		}
		if colors["rxn00002"] != colormap.Hex(lo) {
			t.Fatalf("conservation 0 = %s, want %s", colors["rxn00002"], colormap.Hex(lo))
		}
		if colors["rxn00001"] != colormap.Hex(hi) {
			t.Fatalf("conservation 1 = %s, want %s", colors["rxn00001"], colormap.Hex(hi))
		}
	})

	t.Run("missing flux values map to the neutral color", func(t *testing.T) {
		colors, err := a.ReactionColoring("flux_min")
		if err != nil {
			t.Fatalf("ReactionColoring: %v", err)
		}
		if colors["rxn00001"] != colormap.Hex(colormap.NeutralNA) {
			t.Fatalf("null flux_min = %s, want neutral %s",
				colors["rxn00001"], colormap.Hex(colormap.NeutralNA))
		}
		if colors["rxn00002"] == colormap.Hex(colormap.NeutralNA) {
			t.Fatal("real flux value must not map to the neutral color")
		}
	})

	t.Run("flux scales to observed range", func(t *testing.T) {
		colors, err := a.ReactionColoring("flux_rich")
		if err != nil {
			t.Fatalf("ReactionColoring: %v", err)
		}
		// Observed flux_rich range in the fixture is [-2, 4.25].
		mapper := colormap.SequentialMapper{Gradient: colormap.Blues, Min: -2, Max: 4.25, NA: testNA}
		lo, err := mapper.Map(-2)
		if err != nil {
			t.Fatalf("mapper: %v", err)
		}
		hi, err := mapper.Map(4.25)
		if err != nil {
			t.Fatalf("mapper: %v", err)
		}
		if colors["rxn00002"] != colormap.Hex(lo) {
			t.Fatalf("min flux = %s, want gradient start %s", colors["rxn00002"], colormap.Hex(lo))
		}
		if colors["rxn00001"] != colormap.Hex(hi) {
			t.Fatalf("max flux = %s, want gradient end %s", colors["rxn00001"], colormap.Hex(hi))
		}
	})

	t.Run("unknown metric fails", func(t *testing.T) {
		if _, err := a.ReactionColoring("velocity"); err == nil {
			t.Fatal("expected error for unknown metric")
		}
	})
}
