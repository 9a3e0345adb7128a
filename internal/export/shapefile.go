package export

import (
	"os"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// WriteShapefile writes classified records as a polygon shapefile with
// cell id, status and area attributes.
func WriteShapefile(path string, records []model.ClassifiedRecord) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}

	fields := []shp.Field{
		shp.StringField("CELL_ID", 64),
		shp.StringField("STATUS", 16),
		shp.FloatField("AREA_M2", 18, 2),
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for _, r := range records {
		poly, err := shpPolygon(r.Geom)
		if err != nil {
			w.Close()
			return eris.Wrapf(err, "export: record %s", r.ID)
		}
		row := int(w.Write(poly))

		if err := w.WriteAttribute(row, 0, r.CellID); err != nil {
			w.Close()
			return eris.Wrap(err, "export: write cell id")
		}
		if err := w.WriteAttribute(row, 1, string(r.Status)); err != nil {
			w.Close()
			return eris.Wrap(err, "export: write status")
		}
		if err := w.WriteAttribute(row, 2, r.AreaM2); err != nil {
			w.Close()
			return eris.Wrap(err, "export: write area")
		}
	}
	w.Close()

	// go-shp creates the attribute table at "<base>dbf", which no reader
	// finds. Move it to the conventional "<base>.dbf" sidecar.
	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrap(err, "export: place dbf sidecar")
	}
	return nil
}

// shpPolygon converts a polygon geometry into shapefile ring form: outer
// rings clockwise, holes counter-clockwise.
func shpPolygon(g geom.T) (*shp.Polygon, error) {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil, eris.New("export: geometry is not a polygon")
	}

	var rings [][]shp.Point
	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			coords := p.LinearRing(i).Coords()
			ring := make([]shp.Point, 0, len(coords))
			for _, c := range coords {
				ring = append(ring, shp.Point{X: c[0], Y: c[1]})
			}
			// i == 0 is the outer ring.
			if (i == 0) != ringClockwise(ring) {
				reverse(ring)
			}
			rings = append(rings, ring)
		}
	}
	if len(rings) == 0 {
		return nil, eris.New("export: polygon has no rings")
	}

	return (*shp.Polygon)(shp.NewPolyLine(rings)), nil
}

func ringClockwise(ring []shp.Point) bool {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += (ring[i+1].X - ring[i].X) * (ring[i+1].Y + ring[i].Y)
	}
	return sum > 0
}

func reverse(ring []shp.Point) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}
