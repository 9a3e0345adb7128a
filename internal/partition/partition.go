// Package partition splits cleaned coverage across administrative cells.
//
// Classification cost is superlinear in vertex count, so classifying a whole
// municipality at once is infeasible. Each administrative cell instead
// becomes one independent task carrying only the geometry whose bounding box
// touches the cell.
package partition

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// CellTask is the unit of classification work: one cell plus the bbox-
// filtered subset of every category.
type CellTask struct {
	Cell model.Cell
	// Categories maps category key to the polygons whose bounding boxes
	// intersect the cell. The filter is a superset pre-filter: it may keep
	// polygons the exact clip later discards, but it never loses one that
	// truly intersects the cell.
	Categories map[string][]geom.T
}

// Split produces one task per cell. Cells must be pairwise non-overlapping
// and together cover the reference boundary; that invariant is what makes
// per-status areas additive across cells.
func Split(cells []model.Cell, byCategory map[string][]geom.T) []CellTask {
	tasks := make([]CellTask, 0, len(cells))
	for _, cell := range cells {
		task := CellTask{
			Cell:       cell,
			Categories: make(map[string][]geom.T, len(byCategory)),
		}
		for key, polys := range byCategory {
			var subset []geom.T
			for _, p := range polys {
				if geomx.BoundsOverlap(cell.Geom, p) {
					subset = append(subset, p)
				}
			}
			if len(subset) > 0 {
				task.Categories[key] = subset
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// FallbackCell builds the single degraded cell used when no administrative
// partition source is reachable.
func FallbackCell(bbox []float64) (model.Cell, error) {
	if len(bbox) != 4 {
		return model.Cell{}, eris.Errorf("partition: fallback bbox needs 4 values, got %d", len(bbox))
	}
	return model.Cell{
		ID:   "fallback",
		Name: "fallback bounding box",
		Geom: geomx.BBoxPolygon(bbox[0], bbox[1], bbox[2], bbox[3]),
	}, nil
}
