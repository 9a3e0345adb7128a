package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func blockMask(w, h int, x0, x1, y0, y1 int) *Mask {
	m := NewMask(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

func TestClose_BridgesOnePixelGap(t *testing.T) {
	// Two blocks separated by a single empty column.
	m := blockMask(9, 5, 1, 2, 1, 3)
	b := blockMask(9, 5, 4, 5, 1, 3)
	for i, v := range b.Bits {
		if v {
			m.Bits[i] = true
		}
	}

	closed := Close(m, 1)

	for y := 1; y <= 3; y++ {
		for x := 1; x <= 5; x++ {
			assert.True(t, closed.At(x, y), "pixel (%d,%d) should be set", x, y)
		}
	}
	assert.Equal(t, 15, closed.Count())
}

func TestClose_PreservesWideGap(t *testing.T) {
	// Three empty columns exceed the reach of one 3x3 iteration.
	m := blockMask(10, 5, 1, 2, 1, 3)
	b := blockMask(10, 5, 6, 7, 1, 3)
	for i, v := range b.Bits {
		if v {
			m.Bits[i] = true
		}
	}
	before := m.Count()

	closed := Close(m, 1)

	assert.Equal(t, before, closed.Count())
	for y := 1; y <= 3; y++ {
		for x := 3; x <= 5; x++ {
			assert.False(t, closed.At(x, y), "gap pixel (%d,%d) must stay empty", x, y)
		}
	}
}

func TestClose_InteriorBlockUnchanged(t *testing.T) {
	m := blockMask(8, 8, 2, 5, 2, 5)

	closed := Close(m, 1)

	assert.Equal(t, m.Count(), closed.Count())
	for y := 2; y <= 5; y++ {
		for x := 2; x <= 5; x++ {
			assert.True(t, closed.At(x, y))
		}
	}
}

func TestClose_ZeroIterationsIsIdentity(t *testing.T) {
	m := blockMask(4, 4, 0, 1, 0, 1)

	assert.Same(t, m, Close(m, 0))
}

func TestClose_EmptyMask(t *testing.T) {
	m := NewMask(4, 4)

	assert.Equal(t, 0, Close(m, 3).Count())
}
