package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// WriteGeoJSON writes classified records as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, records []model.ClassifiedRecord) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	for _, r := range records {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.ID,
			Geometry: r.Geom,
			Properties: map[string]interface{}{
				"cell_id": r.CellID,
				"status":  string(r.Status),
				"area_m2": r.AreaM2,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
