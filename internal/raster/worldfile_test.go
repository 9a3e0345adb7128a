package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorldFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tile.pgw")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseWorldFile_Valid(t *testing.T) {
	path := writeWorldFile(t, "2.5\n0\n0\n-2.5\n1489000.25\n6894000.75\n")

	tr, err := ParseWorldFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, tr.A)
	assert.Equal(t, -2.5, tr.E)
	assert.Equal(t, 1489000.25, tr.C)
	assert.Equal(t, 6894000.75, tr.F)
}

func TestParseWorldFile_RejectsRotation(t *testing.T) {
	path := writeWorldFile(t, "1\n0.1\n0\n-1\n0\n0\n")

	_, err := ParseWorldFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotated")
}

func TestParseWorldFile_RejectsZeroPixelSize(t *testing.T) {
	path := writeWorldFile(t, "0\n0\n0\n-1\n0\n0\n")

	_, err := ParseWorldFile(path)
	require.Error(t, err)
}

func TestParseWorldFile_RejectsWrongCount(t *testing.T) {
	path := writeWorldFile(t, "1\n0\n0\n-1\n0\n")

	_, err := ParseWorldFile(path)
	require.Error(t, err)
}

func TestParseWorldFile_RejectsGarbage(t *testing.T) {
	path := writeWorldFile(t, "1\n0\nzero\n-1\n0\n0\n")

	_, err := ParseWorldFile(path)
	require.Error(t, err)
}

func TestTransform_CellCorner(t *testing.T) {
	// World files reference the center of the top-left pixel.
	tr := Transform{A: 2, E: -2, C: 101, F: 199}

	x, y := tr.CellCorner(0, 0)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 200.0, y)

	x, y = tr.CellCorner(3, 2)
	assert.Equal(t, 106.0, x)
	assert.Equal(t, 196.0, y)
}
