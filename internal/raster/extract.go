package raster

import (
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// ExtractTile opens one tile and extracts the polygons of every category in
// cats. The returned map is keyed by category key; categories without
// matching pixels are absent. The function is a pure transform of its inputs,
// so tiles can be processed concurrently without shared state.
func ExtractTile(path string, cats []model.Category, closingIterations int) (map[string][]*geom.Polygon, error) {
	tile, err := OpenTile(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]*geom.Polygon, len(cats))
	for _, cat := range cats {
		mask := BuildMask(tile.Image, cat)
		if mask.Count() == 0 {
			continue
		}

		mask = Close(mask, closingIterations)

		polys, err := Vectorize(mask, tile.Transform)
		if err != nil {
			return nil, err
		}
		if len(polys) > 0 {
			out[cat.Key] = polys
		}
	}
	return out, nil
}
