// Package export writes classification results to shapefile, GeoJSON and
// XLSX outputs.
package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// Files names the artifacts a full export produces.
type Files struct {
	Shapefile string
	GeoJSON   string
	Summary   string
}

// All writes every export artifact for one run into dir.
func All(dir string, records []model.ClassifiedRecord, summary []model.StatusArea, providerA, providerB string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", dir)
	}

	files := &Files{
		Shapefile: filepath.Join(dir, "coverage.shp"),
		GeoJSON:   filepath.Join(dir, "coverage.geojson"),
		Summary:   filepath.Join(dir, "summary.xlsx"),
	}

	if err := WriteShapefile(files.Shapefile, records); err != nil {
		return nil, err
	}
	if err := WriteGeoJSON(files.GeoJSON, records); err != nil {
		return nil, err
	}
	if err := WriteSummaryXLSX(files.Summary, summary, providerA, providerB); err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "export")).Info("wrote export artifacts",
		zap.String("dir", dir),
		zap.Int("records", len(records)))
	return files, nil
}
