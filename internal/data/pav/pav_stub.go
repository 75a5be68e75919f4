//go:build !pav

package pav

import (
	"fmt"
	"os"
)

// Matrix is a stub when built without "-tags pav".
type Matrix struct {
	arrayURI string
}

// Open creates a PAV matrix handle (stub). It still resolves and validates
// the array path, so config issues surface at startup, but all read
// methods return ErrUnsupported.
func Open(pavPath string) (*Matrix, error) {
	uri, err := ResolveArrayURI(pavPath)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(uri); statErr != nil {
		return nil, fmt.Errorf("pav array not found at %s: %w", uri, statErr)
	}
	return &Matrix{arrayURI: uri}, nil
}

func (m *Matrix) Supported() bool { return false }

func (m *Matrix) ArrayURI() string { return m.arrayURI }

// GenomeCount returns the number of reference genome columns.
func (m *Matrix) GenomeCount() (int, error) {
	return 0, ErrUnsupported
}

// PresenceRow reads one gene's presence flags across all reference
// genomes, 1 for present and 0 for absent.
func (m *Matrix) PresenceRow(gene int) ([]uint8, error) {
	return nil, ErrUnsupported
}
