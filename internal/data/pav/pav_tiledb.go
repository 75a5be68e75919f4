//go:build pav

package pav

import (
	"fmt"
	"math"
	"os"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Matrix reads the dense gene x genome presence array via TileDB.
type Matrix struct {
	arrayURI string
	ctx      *tiledb.Context

	domOnce sync.Once
	domErr  error
	geneMin int64
	geneMax int64
	genMin  int64
	genMax  int64
}

func Open(pavPath string) (*Matrix, error) {
	uri, err := ResolveArrayURI(pavPath)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(uri); statErr != nil {
		return nil, fmt.Errorf("pav array not found at %s: %w", uri, statErr)
	}

	ctx, err := tiledb.NewContext(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create TileDB context: %w", err)
	}

	return &Matrix{
		arrayURI: uri,
		ctx:      ctx,
	}, nil
}

func (m *Matrix) Supported() bool { return true }

func (m *Matrix) ArrayURI() string { return m.arrayURI }

// GenomeCount returns the number of reference genome columns.
func (m *Matrix) GenomeCount() (int, error) {
	if err := m.loadDomain(); err != nil {
		return 0, err
	}
	return int(m.genMax - m.genMin + 1), nil
}

// PresenceRow reads one gene's presence flags across all reference
// genomes, 1 for present and 0 for absent.
func (m *Matrix) PresenceRow(gene int) ([]uint8, error) {
	if err := m.loadDomain(); err != nil {
		return nil, err
	}
	g := m.geneMin + int64(gene)
	if int64(gene) < 0 || g > m.geneMax {
		return nil, fmt.Errorf("gene %d outside pav array domain [0, %d]", gene, m.geneMax-m.geneMin)
	}

	arr, err := tiledb.NewArray(m.ctx, m.arrayURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open pav array (%s): %w", m.arrayURI, err)
	}
	defer arr.Free()
	if err := arr.Open(tiledb.TILEDB_READ); err != nil {
		return nil, fmt.Errorf("failed to open pav array for read: %w", err)
	}
	defer arr.Close()

	sub, err := arr.NewSubarray()
	if err != nil {
		return nil, fmt.Errorf("failed to create subarray: %w", err)
	}
	defer sub.Free()

	if err := sub.AddRangeByName("gene", tiledb.MakeRange[int64](g, g)); err != nil {
		return nil, fmt.Errorf("failed to add gene range: %w", err)
	}
	if err := sub.AddRangeByName("genome", tiledb.MakeRange[int64](m.genMin, m.genMax)); err != nil {
		return nil, fmt.Errorf("failed to add genome range: %w", err)
	}

	q, err := tiledb.NewQuery(m.ctx, arr)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer q.Free()

	if err := q.SetSubarray(sub); err != nil {
		return nil, fmt.Errorf("failed to set subarray: %w", err)
	}
	if err := q.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, fmt.Errorf("failed to set query layout: %w", err)
	}

	n := int(m.genMax - m.genMin + 1)
	out := make([]uint8, n)
	if _, err := q.SetDataBuffer("present", out); err != nil {
		return nil, fmt.Errorf("failed to set buffer present: %w", err)
	}

	if err := q.Submit(); err != nil {
		return nil, fmt.Errorf("query submit failed: %w", err)
	}
	status, err := q.Status()
	if err != nil {
		return nil, fmt.Errorf("query status failed: %w", err)
	}
	// One row of uint8 always fits the buffer; anything but COMPLETED
	// means the array is not the shape we expect.
	if status != tiledb.TILEDB_COMPLETED {
		return nil, fmt.Errorf("unexpected query status: %v", status)
	}

	elems, err := q.ResultBufferElements()
	if err != nil {
		return nil, fmt.Errorf("failed to get result buffer elements: %w", err)
	}
	got := int(elems["present"][1])
	if got > len(out) {
		got = len(out)
	}
	return out[:got], nil
}

func (m *Matrix) loadDomain() error {
	m.domOnce.Do(func() { m.domErr = m.readDomain() })
	return m.domErr
}

func (m *Matrix) readDomain() error {
	arr, err := tiledb.NewArray(m.ctx, m.arrayURI)
	if err != nil {
		return fmt.Errorf("failed to open pav array (%s): %w", m.arrayURI, err)
	}
	defer arr.Free()
	if err := arr.Open(tiledb.TILEDB_READ); err != nil {
		return fmt.Errorf("failed to open pav array for read: %w", err)
	}
	defer arr.Close()

	for _, dim := range []struct {
		name string
		min  *int64
		max  *int64
	}{
		{"gene", &m.geneMin, &m.geneMax},
		{"genome", &m.genMin, &m.genMax},
	} {
		ned, isEmpty, err := arr.NonEmptyDomainFromName(dim.name)
		if err != nil {
			return fmt.Errorf("failed to get %s non-empty domain: %w", dim.name, err)
		}
		if isEmpty || ned == nil {
			return fmt.Errorf("pav array has no data on dimension %s", dim.name)
		}
		lo, hi, err := boundsMinMaxInt64(ned.Bounds)
		if err != nil {
			return fmt.Errorf("failed to parse %s domain bounds: %w", dim.name, err)
		}
		*dim.min, *dim.max = lo, hi
	}
	return nil
}

func boundsMinMaxInt64(bounds interface{}) (int64, int64, error) {
	switch v := bounds.(type) {
	case []int64:
		if len(v) >= 2 {
			return v[0], v[1], nil
		}
	case []int32:
		if len(v) >= 2 {
			return int64(v[0]), int64(v[1]), nil
		}
	case []uint64:
		if len(v) >= 2 {
			if v[0] > math.MaxInt64 || v[1] > math.MaxInt64 {
				return 0, 0, fmt.Errorf("uint64 bounds exceed int64 range")
			}
			return int64(v[0]), int64(v[1]), nil
		}
	case []uint32:
		if len(v) >= 2 {
			return int64(v[0]), int64(v[1]), nil
		}
	}
	return 0, 0, fmt.Errorf("unsupported bounds type for non-empty domain")
}
