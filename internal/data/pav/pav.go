// Package pav provides read-only access to the presence/absence matrix
// backing the detail panel: one row per gene, one column per reference
// genome, stored as a dense TileDB array.
//
// The matrix is optional equipment. Datasets without one still serve the
// heatmap; only the per-genome strip in the detail panel goes dark.
package pav

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupported indicates this binary was built without TileDB support.
	ErrUnsupported = errors.New("pav support is not enabled in this build (build server with: go build -tags pav)")
)

// ResolveArrayURI accepts either:
//   - /path/to/.../pav.tiledb
//   - /path/to/dataset-dir  (directory containing pav.tiledb)
//
// and returns the array path.
func ResolveArrayURI(pavPath string) (string, error) {
	p := strings.TrimSpace(pavPath)
	if p == "" {
		return "", errors.New("empty pav_path")
	}
	p = os.ExpandEnv(p)
	p = filepath.Clean(p)

	if strings.HasSuffix(p, ".tiledb") {
		return p, nil
	}
	return filepath.Join(p, "pav.tiledb"), nil
}
