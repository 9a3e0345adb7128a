package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
)

// unitTransform maps pixel (0,0) top-left corner to (0, h) with 1-unit
// pixels, i.e. plain image coordinates flipped to north-up.
func unitTransform(h int) Transform {
	return Transform{A: 1, E: -1, C: 0.5, F: float64(h) - 0.5}
}

func TestVectorize_SingleBlock(t *testing.T) {
	m := blockMask(8, 8, 2, 4, 2, 4)

	polys, err := Vectorize(m, unitTransform(8))
	require.NoError(t, err)
	require.Len(t, polys, 1)

	assert.InDelta(t, 9.0, polys[0].Area(), 1e-9)

	b := polys[0].Bounds()
	assert.InDelta(t, 2.0, b.Min(0), 1e-9)
	assert.InDelta(t, 5.0, b.Max(0), 1e-9)
}

func TestVectorize_DisjointBlobsStaySeparate(t *testing.T) {
	m := blockMask(12, 6, 1, 2, 1, 2)
	b := blockMask(12, 6, 8, 9, 3, 4)
	for i, v := range b.Bits {
		if v {
			m.Bits[i] = true
		}
	}

	polys, err := Vectorize(m, unitTransform(6))
	require.NoError(t, err)
	assert.Len(t, polys, 2)

	var total float64
	for _, p := range polys {
		total += p.Area()
	}
	assert.InDelta(t, 8.0, total, 1e-9)
}

func TestVectorize_DiagonalTouchMerges(t *testing.T) {
	// Two pixels sharing only a corner union into one polygon because the
	// shared vertex connects them.
	m := NewMask(4, 4)
	m.Set(1, 1, true)
	m.Set(2, 2, true)

	polys, err := Vectorize(m, unitTransform(4))
	require.NoError(t, err)

	var total float64
	for _, p := range polys {
		total += p.Area()
	}
	assert.InDelta(t, 2.0, total, 1e-9)
}

func TestVectorize_RingKeepsHole(t *testing.T) {
	// A 5x5 block with the center pixel unset.
	m := blockMask(7, 7, 1, 5, 1, 5)
	m.Set(3, 3, false)

	polys, err := Vectorize(m, unitTransform(7))
	require.NoError(t, err)
	require.Len(t, polys, 1)

	assert.Equal(t, 2, polys[0].NumLinearRings(), "hole must survive as an interior ring")
	assert.InDelta(t, 24.0, polys[0].Area(), 1e-9)
}

func TestVectorize_EmptyMask(t *testing.T) {
	polys, err := Vectorize(NewMask(4, 4), unitTransform(4))
	require.NoError(t, err)
	assert.Empty(t, polys)
}

func TestVectorize_ProjectedCoordinates(t *testing.T) {
	m := NewMask(2, 2)
	m.Set(0, 0, true)

	tr := Transform{A: 10, E: -10, C: 1005, F: 2015}
	polys, err := Vectorize(m, tr)
	require.NoError(t, err)
	require.Len(t, polys, 1)

	assert.InDelta(t, 100.0, geomx.Area(polys[0]), 1e-9)
	b := polys[0].Bounds()
	assert.InDelta(t, 1000.0, b.Min(0), 1e-9)
	assert.InDelta(t, 2020.0, b.Max(1), 1e-9)
}
