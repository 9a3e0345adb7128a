package boundary

import (
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// FromShapefile reads administrative cells from a polygon shapefile. The
// schema mapping names the id and name attributes; an unresolvable mapping
// is fatal before any record is read.
func FromShapefile(path string, schema config.SchemaMapping) ([]model.Cell, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer reader.Close()

	idIdx, err := fieldIndex(reader, schema.CellIDField)
	if err != nil {
		return nil, err
	}
	nameIdx, err := fieldIndex(reader, schema.CellNameField)
	if err != nil {
		return nil, err
	}

	var cells []model.Cell
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			return nil, eris.Errorf("boundary: record %d is not a polygon", n)
		}
		g, err := polygonFromShp(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: record %d", n)
		}

		cells = append(cells, model.Cell{
			ID:   cellID(strings.TrimSpace(reader.Attribute(idIdx)), n),
			Name: strings.TrimSpace(reader.Attribute(nameIdx)),
			Geom: g,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}
	if len(cells) == 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no polygon records", path)
	}
	return cells, nil
}

func fieldIndex(reader *shp.Reader, name string) (int, error) {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i, nil
		}
	}
	return 0, eris.Errorf("boundary: shapefile has no attribute %q", name)
}

// polygonFromShp converts a shapefile polygon record into a MultiPolygon.
// Shapefile rings are oriented: clockwise rings open a new polygon, counter-
// clockwise rings are holes in the polygon opened most recently.
func polygonFromShp(p *shp.Polygon) (geom.T, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	for i, start := range p.Parts {
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		ring := make([]geom.Coord, 0, end-int(start))
		for _, pt := range p.Points[start:end] {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		if len(ring) < 4 {
			continue
		}

		lr := geom.NewLinearRing(geom.XY)
		if _, err := lr.SetCoords(ring); err != nil {
			return nil, eris.Wrap(err, "boundary: build ring")
		}

		if clockwise(ring) || current == nil {
			if current != nil {
				if err := mp.Push(current); err != nil {
					return nil, eris.Wrap(err, "boundary: assemble polygon")
				}
			}
			current = geom.NewPolygon(geom.XY)
		}
		current.Push(lr)
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			return nil, eris.Wrap(err, "boundary: assemble polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("boundary: polygon record has no usable rings")
	}
	if mp.NumPolygons() == 1 {
		return mp.Polygon(0), nil
	}
	return mp, nil
}

func clockwise(ring []geom.Coord) bool {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += (ring[i+1][0] - ring[i][0]) * (ring[i+1][1] + ring[i][1])
	}
	return sum > 0
}
