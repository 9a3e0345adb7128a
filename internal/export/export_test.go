package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

func square(minX, minY, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}})
}

func testRecords() []model.ClassifiedRecord {
	return []model.ClassifiedRecord{
		{ID: "r1", CellID: "cell_0001", Status: model.StatusCompetition, AreaM2: 10000, Geom: square(0, 0, 100)},
		{ID: "r2", CellID: "cell_0001", Status: model.StatusWhiteSpot, AreaM2: 2500, Geom: square(100, 0, 50)},
	}
}

func testSummary() []model.StatusArea {
	return []model.StatusArea{
		{Status: model.StatusCompetition, AreaKM2: 0.01, Records: 1},
		{Status: model.StatusMonopolyA, AreaKM2: 0.0025, Records: 1},
	}
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.geojson")

	require.NoError(t, WriteGeoJSON(path, testRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, "r1", f.ID)
	assert.Equal(t, "cell_0001", f.Properties["cell_id"])
	assert.Equal(t, string(model.StatusCompetition), f.Properties["status"])
	assert.Equal(t, 10000.0, f.Properties["area_m2"])
	assert.IsType(t, &geom.Polygon{}, f.Geometry)
}

func TestWriteShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.shp")

	require.NoError(t, WriteShapefile(path, testRecords()))

	// The attribute table must land in the .dbf sidecar readers look for.
	_, err := os.Stat(filepath.Join(filepath.Dir(path), "coverage.dbf"))
	require.NoError(t, err)

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer r.Close()

	var rows int
	for r.Next() {
		n, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		require.True(t, ok)
		assert.NotEmpty(t, poly.Points)

		if n == 0 {
			assert.Equal(t, "cell_0001", r.Attribute(0))
			assert.Equal(t, string(model.StatusCompetition), r.Attribute(1))
		}
		rows++
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 2, rows)
}

func TestWriteShapefile_OuterRingClockwise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coverage.shp")

	// go-geom polygons carry counter-clockwise outer rings; the writer must
	// flip them to the shapefile convention.
	require.NoError(t, WriteShapefile(path, testRecords()[:1]))

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Next())
	_, shape := r.Shape()
	poly := shape.(*shp.Polygon)
	assert.True(t, ringClockwise(poly.Points))
}

func TestWriteSummaryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")

	require.NoError(t, WriteSummaryXLSX(path, testSummary(), "Telco", "Vodanet"))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Summary", sheet.Name)
	// header + 2 statuses + total
	require.Len(t, sheet.Rows, 4)

	assert.Equal(t, "Status", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, string(model.StatusCompetition), sheet.Rows[1].Cells[0].Value)
	assert.Equal(t, "Competition", sheet.Rows[1].Cells[1].Value)
	assert.Equal(t, "Monopoly Telco", sheet.Rows[2].Cells[1].Value)
	assert.Equal(t, "total", sheet.Rows[3].Cells[0].Value)

	total, err := sheet.Rows[3].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.0125, total, 1e-9)
}

func TestAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	files, err := All(dir, testRecords(), testSummary(), "Telco", "Vodanet")
	require.NoError(t, err)

	for _, path := range []string{files.Shapefile, files.GeoJSON, files.Summary} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
