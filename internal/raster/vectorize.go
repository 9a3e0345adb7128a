package raster

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
)

// Vectorize converts a mask into polygons in projected coordinates. Each
// horizontal run of set pixels becomes a rectangle; the rectangles of one
// mask are then unioned so that every connected pixel blob yields exactly one
// polygon (holes included). The union is exact: rectangle edges share
// coordinates by construction, so no tolerance is involved.
func Vectorize(m *Mask, t Transform) ([]*geom.Polygon, error) {
	if m.Count() == 0 {
		return nil, nil
	}

	gctx := geos.NewContext()

	var rects []*geos.Geom
	for y := 0; y < m.Height; y++ {
		x := 0
		for x < m.Width {
			if !m.At(x, y) {
				x++
				continue
			}
			start := x
			for x < m.Width && m.At(x, y) {
				x++
			}
			rect, err := runRect(gctx, t, start, x, y)
			if err != nil {
				return nil, err
			}
			rects = append(rects, rect)
		}
	}

	var merged geom.T
	err := geomx.Guard("vectorize mask", func() error {
		union := geomx.UnionAll(gctx, rects)
		g, convErr := geomx.FromGeos(union)
		if convErr != nil {
			return convErr
		}
		merged = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	return geomx.Explode(merged), nil
}

// runRect builds the projected rectangle covering pixels [x0, x1) of row y.
func runRect(gctx *geos.Context, t Transform, x0, x1, y int) (*geos.Geom, error) {
	left, top := t.CellCorner(x0, y)
	right, bottom := t.CellCorner(x1, y+1)

	minX, maxX := left, right
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := bottom, top
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	return geomx.ToGeos(gctx, geomx.BBoxPolygon(minX, minY, maxX, maxY))
}
