package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/breitband-atlas/coverage-cli/internal/geomx"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

func cell(id string, minX, minY, maxX, maxY float64) model.Cell {
	return model.Cell{ID: id, Geom: geomx.BBoxPolygon(minX, minY, maxX, maxY)}
}

func TestSplit_FiltersByBounds(t *testing.T) {
	cells := []model.Cell{
		cell("west", 0, 0, 100, 100),
		cell("east", 100, 0, 200, 100),
	}
	byCategory := map[string][]geom.T{
		"telco_2000": {
			geomx.BBoxPolygon(10, 10, 40, 40),    // west only
			geomx.BBoxPolygon(150, 10, 180, 40),  // east only
			geomx.BBoxPolygon(90, 40, 110, 60),   // straddles both
		},
		"vodanet_1000": {
			geomx.BBoxPolygon(300, 300, 320, 320), // outside every cell
		},
	}

	tasks := Split(cells, byCategory)
	require.Len(t, tasks, 2)

	west, east := tasks[0], tasks[1]
	assert.Equal(t, "west", west.Cell.ID)

	assert.Len(t, west.Categories["telco_2000"], 2)
	assert.Len(t, east.Categories["telco_2000"], 2)
	assert.NotContains(t, west.Categories, "vodanet_1000")
	assert.NotContains(t, east.Categories, "vodanet_1000")
}

func TestSplit_CellWithoutCoverage(t *testing.T) {
	cells := []model.Cell{cell("empty", 0, 0, 10, 10)}

	tasks := Split(cells, map[string][]geom.T{
		"telco_2000": {geomx.BBoxPolygon(100, 100, 110, 110)},
	})

	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Categories)
}

func TestSplit_NoCells(t *testing.T) {
	assert.Empty(t, Split(nil, map[string][]geom.T{}))
}

func TestFallbackCell(t *testing.T) {
	c, err := FallbackCell([]float64{0, 0, 50, 30})
	require.NoError(t, err)

	assert.Equal(t, "fallback", c.ID)
	assert.InDelta(t, 1500.0, geomx.Area(c.Geom), 1e-9)
}

func TestFallbackCell_BadBBox(t *testing.T) {
	_, err := FallbackCell([]float64{0, 0, 50})
	require.Error(t, err)
}
