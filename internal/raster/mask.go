package raster

import (
	"image"
	"image/color"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// Mask is a binary pixel grid.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an all-false mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// At reports the bit at (x, y); out-of-range coordinates are false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set sets the bit at (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.Bits[y*m.Width+x] = v
}

// Count returns the number of true bits.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// BuildMask marks every pixel whose RGB matches the category color exactly
// and whose alpha exceeds the category's floor. Exact equality is deliberate:
// the imagery uses a fixed palette per tier, so blended pixels at tile seams
// are noise and must not match.
func BuildMask(img image.Image, cat model.Category) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R == cat.Color.R && c.G == cat.Color.G && c.B == cat.Color.B && c.A > cat.AlphaMin {
				m.Set(x-b.Min.X, y-b.Min.Y, true)
			}
		}
	}
	return m
}
