package search

import (
	"fmt"
	"testing"
)

// testIndex builds a 4,617-gene corpus where the substring "kinase"
// appears in a known band of function labels.
func testIndex(t testing.TB) (*Index, int) {
	t.Helper()

	const n = 4617
	ids := make([]string, n)
	functions := make([]string, n)
	kinases := 0
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("fig|83333.1.peg.%d", i+1)
		switch {
		case i%23 == 0:
			functions[i] = fmt.Sprintf("Sensor histidine KINASE %d", i)
			kinases++
		case i%7 == 0:
			functions[i] = "ABC transporter permease"
		default:
			functions[i] = "hypothetical protein"
		}
	}
	return New(ids, functions), kinases
}

func TestQueryIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	ix, kinases := testIndex(t)

	matches := ix.Query("kinase")
	if len(matches) != kinases {
		t.Fatalf("Query(kinase) matched %d genes, want %d", len(matches), kinases)
	}

	upper := ix.Query("KiNaSe")
	if len(upper) != kinases {
		t.Fatalf("mixed-case query matched %d genes, want %d", len(upper), kinases)
	}
}

func TestQueryBandRegression(t *testing.T) {
	t.Parallel()

	ix, _ := testIndex(t)

	// A query hitting many function labels must land in the expected
	// band, not zero and not the whole dataset.
	n := len(ix.Query("kinase"))
	if n < 50 || n >= 300 {
		t.Fatalf("match count %d outside [50, 300)", n)
	}
}

func TestEmptyQueryMatchesNothing(t *testing.T) {
	t.Parallel()

	ix, _ := testIndex(t)
	for _, q := range []string{"", "   ", "\t"} {
		if got := ix.Query(q); len(got) != 0 {
			t.Fatalf("Query(%q) matched %d genes, want none", q, len(got))
		}
	}
}

func TestQueryMatchesIdentifiers(t *testing.T) {
	t.Parallel()

	ix, _ := testIndex(t)

	matches := ix.Query("peg.4617")
	if len(matches) != 1 || matches[0] != 4616 {
		t.Fatalf("identifier query = %v, want the last gene only", matches)
	}
}

func TestQueryNoMatch(t *testing.T) {
	t.Parallel()

	ix, _ := testIndex(t)
	if got := ix.Query("zzzz-not-a-gene"); len(got) != 0 {
		t.Fatalf("nonsense query matched %d genes", len(got))
	}
}

func BenchmarkQuery(b *testing.B) {
	ix, _ := testIndex(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Query("kinase")
	}
}
