package boundary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// FromGeoJSON reads administrative cells from a GeoJSON FeatureCollection.
// The schema mapping is resolved against the first feature's properties
// before any cell is built, so a misconfigured field name fails fast.
func FromGeoJSON(data []byte, schema config.SchemaMapping) ([]model.Cell, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}
	if len(fc.Features) == 0 {
		return nil, eris.New("boundary: feature collection is empty")
	}

	if err := checkProperties(fc.Features[0].Properties, schema); err != nil {
		return nil, err
	}

	cells := make([]model.Cell, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, eris.Errorf("boundary: feature %d has no geometry", i)
		}
		switch f.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			return nil, eris.Errorf("boundary: feature %d is not a polygon", i)
		}
		cells = append(cells, model.Cell{
			ID:   cellID(propString(f.Properties, schema.CellIDField), i),
			Name: propString(f.Properties, schema.CellNameField),
			Geom: f.Geometry,
		})
	}
	return cells, nil
}

func checkProperties(props map[string]interface{}, schema config.SchemaMapping) error {
	for _, field := range []string{schema.CellIDField, schema.CellNameField} {
		if _, ok := props[field]; !ok {
			return eris.Errorf("boundary: feature properties have no field %q", field)
		}
	}
	return nil
}

func propString(props map[string]interface{}, field string) string {
	v, ok := props[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
