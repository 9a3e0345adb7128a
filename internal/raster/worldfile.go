// Package raster turns georeferenced coverage tiles into category polygons.
package raster

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Transform is the affine mapping from pixel grid to projected coordinates,
// read from an ESRI world file. The six lines are A (pixel width), D and B
// (rotation terms), E (pixel height, negative for north-up), C and F (the
// projected center of the top-left pixel).
type Transform struct {
	A, D, B, E, C, F float64
}

// ParseWorldFile reads a six-line world file sidecar.
// Rotated grids are rejected: the tile grid is axis-aligned by contract.
func ParseWorldFile(path string) (Transform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transform{}, eris.Wrapf(err, "raster: read world file %s", path)
	}

	fields := strings.Fields(string(data))
	if len(fields) != 6 {
		return Transform{}, eris.Errorf("raster: world file %s: want 6 values, got %d", path, len(fields))
	}

	vals := make([]float64, 6)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Transform{}, eris.Wrapf(err, "raster: world file %s: value %d", path, i+1)
		}
		vals[i] = v
	}

	t := Transform{A: vals[0], D: vals[1], B: vals[2], E: vals[3], C: vals[4], F: vals[5]}
	if t.D != 0 || t.B != 0 {
		return Transform{}, eris.Errorf("raster: world file %s: rotated grids are not supported", path)
	}
	if t.A == 0 || t.E == 0 {
		return Transform{}, eris.Errorf("raster: world file %s: zero pixel size", path)
	}
	return t, nil
}

// CellCorner returns the projected coordinates of the top-left corner of the
// pixel at (col, row). World files reference pixel centers, hence the
// half-pixel shift.
func (t Transform) CellCorner(col, row int) (x, y float64) {
	x = t.C - t.A/2 + float64(col)*t.A
	y = t.F - t.E/2 + float64(row)*t.E
	return x, y
}
