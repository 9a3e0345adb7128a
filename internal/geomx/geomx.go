// Package geomx bridges the in-memory geometry model (go-geom) and the GEOS
// algebra engine (go-geos). All heavy boolean operations run on GEOS
// geometries; everything stored, exported or sent over the wire is go-geom.
//
// A geos.Context is not safe for concurrent use, so every worker task creates
// its own context and converts in and out via WKB at the task boundary.
package geomx

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// Guard runs fn and converts a GEOS panic into a returned error. go-geos
// surfaces GEOS exceptions as panics; the pipeline's error policy wants them
// as typed per-unit results instead.
func Guard(unit string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = eris.Wrapf(rerr, "geomx: %s", unit)
				return
			}
			err = eris.Errorf("geomx: %s: %v", unit, r)
		}
	}()
	return fn()
}

// ToGeos converts a go-geom geometry into the given GEOS context.
func ToGeos(gctx *geos.Context, g geom.T) (*geos.Geom, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geomx: marshal WKB")
	}
	gg, err := gctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "geomx: parse WKB")
	}
	return gg, nil
}

// FromGeos converts a GEOS geometry back into a go-geom geometry.
func FromGeos(g *geos.Geom) (geom.T, error) {
	out, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "geomx: unmarshal WKB")
	}
	return out, nil
}

// Marshal encodes a go-geom geometry as little-endian WKB for storage.
func Marshal(g geom.T) ([]byte, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geomx: marshal WKB")
	}
	return data, nil
}

// Unmarshal decodes stored WKB into a go-geom geometry.
func Unmarshal(data []byte) (geom.T, error) {
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geomx: unmarshal WKB")
	}
	return g, nil
}

// UnionAll merges geoms into one geometry. Uses a single unary union over a
// collection; far cheaper than folding pairwise unions.
func UnionAll(gctx *geos.Context, geoms []*geos.Geom) *geos.Geom {
	switch len(geoms) {
	case 0:
		return gctx.NewEmptyPolygon()
	case 1:
		return geoms[0]
	}
	return gctx.NewCollection(geos.TypeIDGeometryCollection, geoms).UnaryUnion()
}

// EnsureValid returns g unchanged when valid, otherwise a repaired copy.
func EnsureValid(g *geos.Geom) *geos.Geom {
	if g.IsValid() {
		return g
	}
	return g.MakeValid()
}

// Polygons explodes g into its polygonal parts. Non-areal parts (lines,
// points) that boolean operations occasionally emit are discarded.
func Polygons(g *geos.Geom) []*geos.Geom {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return []*geos.Geom{g}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		var out []*geos.Geom
		for i := 0; i < g.NumGeometries(); i++ {
			out = append(out, Polygons(g.Geometry(i))...)
		}
		return out
	default:
		return nil
	}
}

// Area returns the planar area of a go-geom geometry in square CRS units.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.Area()
	case *geom.MultiPolygon:
		return t.Area()
	case *geom.GeometryCollection:
		var sum float64
		for _, sub := range t.Geoms() {
			sum += Area(sub)
		}
		return sum
	default:
		return 0
	}
}

// Explode splits a go-geom geometry into single polygons. Downstream
// consumers expect one polygon per record, never a multi-geometry.
func Explode(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumCoords() == 0 {
			return nil
		}
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		var out []*geom.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, Explode(t.Polygon(i))...)
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.Polygon
		for _, sub := range t.Geoms() {
			out = append(out, Explode(sub)...)
		}
		return out
	default:
		return nil
	}
}

// BoundsOverlap reports whether the bounding boxes of a and b intersect.
// This is the superset pre-filter used by the spatial partitioner: it may
// report overlap where the exact geometries miss, never the reverse.
func BoundsOverlap(a, b geom.T) bool {
	return a.Bounds().Overlaps(geom.XY, b.Bounds())
}

// BBoxPolygon builds the [minX, minY, maxX, maxY] rectangle polygon.
func BBoxPolygon(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY).Polygon()
}
