// Package boundary loads the administrative partition: the cells that divide
// the analysis area, and the reference boundary they form together.
//
// The boundary is an explicit value handed to the partitioner and classifier.
// Nothing here caches module-level state.
package boundary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/twpayne/go-geom"
)

// Load resolves administrative cells from the configured sources in order:
// the feature service, then a local file, then the fallback bounding box.
// Having no usable source at all is fatal: classification without a
// reference boundary is meaningless.
func Load(ctx context.Context, cfg config.BoundaryConfig) ([]model.Cell, error) {
	log := zap.L().With(zap.String("component", "boundary"))

	if cfg.ServiceURL != "" {
		cells, err := FetchCells(ctx, cfg)
		if err == nil {
			log.Info("loaded cells from feature service", zap.Int("cells", len(cells)))
			return cells, nil
		}
		log.Warn("feature service unavailable, trying next source", zap.Error(err))
	}

	if cfg.Path != "" {
		cells, err := loadFile(cfg.Path, cfg.Schema)
		if err == nil {
			log.Info("loaded cells from file", zap.String("path", cfg.Path), zap.Int("cells", len(cells)))
			return cells, nil
		}
		log.Warn("cell file unusable, trying next source", zap.String("path", cfg.Path), zap.Error(err))
	}

	if len(cfg.FallbackBBox) == 4 {
		log.Warn("falling back to single bounding-box cell; results are degraded")
		cell := model.Cell{
			ID:   "fallback",
			Name: "fallback bounding box",
			Geom: geomx.BBoxPolygon(cfg.FallbackBBox[0], cfg.FallbackBBox[1], cfg.FallbackBBox[2], cfg.FallbackBBox[3]),
		}
		return []model.Cell{cell}, nil
	}

	return nil, eris.New("boundary: no cell source available and no fallback bbox configured")
}

func loadFile(path string, schema config.SchemaMapping) ([]model.Cell, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FromShapefile(path, schema)
	case ".json", ".geojson":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: read %s", path)
		}
		return FromGeoJSON(data, schema)
	default:
		return nil, eris.Errorf("boundary: unsupported cell file format %q", filepath.Ext(path))
	}
}

// Dissolve merges all cells into the single reference boundary geometry.
func Dissolve(cells []model.Cell) (geom.T, error) {
	if len(cells) == 0 {
		return nil, eris.New("boundary: no cells to dissolve")
	}

	var merged geom.T
	err := geomx.Guard("dissolve cells", func() error {
		gctx := geos.NewContext()
		geoms := make([]*geos.Geom, 0, len(cells))
		for _, c := range cells {
			g, convErr := geomx.ToGeos(gctx, c.Geom)
			if convErr != nil {
				return convErr
			}
			geoms = append(geoms, geomx.EnsureValid(g))
		}
		union := geomx.UnionAll(gctx, geoms)
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
	return merged, nil
}

// cellID derives a stable cell id when the source has no id attribute value.
func cellID(idAttr string, index int) string {
	if idAttr != "" {
		return idAttr
	}
	return fmt.Sprintf("cell_%04d", index)
}
