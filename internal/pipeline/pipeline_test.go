package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/store"
)

func testRules() *config.Rules {
	return &config.Rules{
		AlphaMin: 100,
		Providers: []config.Provider{
			{
				Key:  "telco",
				Name: "Telco",
				Layers: []config.Layer{{
					Key:               "telco_2000",
					Name:              "Telco 2000",
					Kind:              string(model.KindExisting),
					Color:             "#610332",
					TileDir:           "telco_2000",
					GapRadius:         2,
					SimplifyTolerance: 0.2,
				}},
			},
			{
				Key:  "vodanet",
				Name: "Vodanet",
				Layers: []config.Layer{{
					Key:               "vodanet_1000",
					Name:              "Vodanet 1000",
					Kind:              string(model.KindExisting),
					Color:             "#7F0000",
					TileDir:           "vodanet_1000",
					GapRadius:         2,
					SimplifyTolerance: 0.2,
				}},
			},
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		CRS: "EPSG:3857",
		Extract: config.ExtractConfig{
			TilesRoot:         filepath.Join(base, "tiles"),
			Workers:           2,
			FlushBatch:        100,
			ClosingIterations: 1,
		},
		Clean:    config.CleanConfig{QuadSegments: 3},
		Classify: config.ClassifyConfig{Workers: 2},
		Boundary: config.BoundaryConfig{FallbackBBox: []float64{0, 0, 8, 8}},
		Export:   config.ExportConfig{Dir: filepath.Join(base, "out")},
	}
}

// writeCoverageTile writes one 8x8 georeferenced tile whose pixels x0..x1,
// y0..y1 carry the given color.
func writeCoverageTile(t *testing.T, root, dir string, c color.NRGBA, x0, y0, x1, y1 int) {
	t.Helper()
	tileDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(tileDir, 0o755))

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	f, err := os.Create(filepath.Join(tileDir, "tile.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	world := "1\n0\n0\n-1\n0.5\n7.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(tileDir, "tile.pgw"), []byte(world), 0o644))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestPipeline_Run(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)

	// both providers cover the same 4x4 block away from the tile border
	writeCoverageTile(t, cfg.Extract.TilesRoot, "telco_2000",
		color.NRGBA{R: 0x61, G: 0x03, B: 0x32, A: 255}, 2, 2, 5, 5)
	writeCoverageTile(t, cfg.Extract.TilesRoot, "vodanet_1000",
		color.NRGBA{R: 0x7F, A: 255}, 2, 2, 5, 5)

	p := New(cfg, testRules(), st)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Extract.Features)
	assert.Zero(t, result.FailedCells)
	assert.Greater(t, result.Records, 0)

	areas := map[model.Status]float64{}
	var totalKM2 float64
	for _, row := range result.Summary {
		areas[row.Status] += row.AreaKM2
		totalKM2 += row.AreaKM2
	}

	// identical coverage means competition, no monopolies
	assert.InDelta(t, 16e-6, areas[model.StatusCompetition], 2e-6)
	assert.Zero(t, areas[model.StatusMonopolyA])
	assert.Zero(t, areas[model.StatusMonopolyB])
	assert.Greater(t, areas[model.StatusWhiteSpot], 40e-6)
	// statuses partition the fallback cell
	assert.InDelta(t, 64e-6, totalKM2, 2e-6)

	// run bookkeeping
	run, err := st.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.NotEmpty(t, run.Summary)

	steps, err := st.ListSteps(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 5)
	for _, step := range steps {
		assert.Equal(t, model.StepStatusComplete, step.Status, step.Name)
	}

	// export artifacts on disk
	require.NotNil(t, result.Files)
	for _, path := range []string{result.Files.Shapefile, result.Files.GeoJSON, result.Files.Summary} {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestPipeline_Run_NoCoverageFails(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	// tiles root exists but holds no category directories
	require.NoError(t, os.MkdirAll(cfg.Extract.TilesRoot, 0o755))

	p := New(cfg, testRules(), st)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no category produced any coverage")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	steps, err := st.ListSteps(context.Background(), runs[0].ID)
	require.NoError(t, err)
	var failed int
	for _, step := range steps {
		if step.Status == model.StepStatusFailed {
			failed++
			assert.Equal(t, "clean", step.Name)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestPipeline_Run_BrokenCategoryIsolated(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)

	// An unusable radius makes gap closing fail for the second category; the
	// first must still classify on its own.
	rules := testRules()
	rules.Providers[1].Layers[0].GapRadius = 0
	writeCoverageTile(t, cfg.Extract.TilesRoot, "telco_2000",
		color.NRGBA{R: 0x61, G: 0x03, B: 0x32, A: 255}, 2, 2, 5, 5)
	writeCoverageTile(t, cfg.Extract.TilesRoot, "vodanet_1000",
		color.NRGBA{R: 0x7F, A: 255}, 2, 2, 5, 5)

	p := New(cfg, rules, st)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	areas := map[model.Status]float64{}
	for _, row := range result.Summary {
		areas[row.Status] += row.AreaKM2
	}
	assert.Zero(t, areas[model.StatusCompetition])
	assert.Zero(t, areas[model.StatusMonopolyB])
	assert.InDelta(t, 16e-6, areas[model.StatusMonopolyA], 2e-6)

	run, err := st.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	steps, err := st.ListSteps(context.Background(), result.RunID)
	require.NoError(t, err)
	for _, step := range steps {
		assert.Equal(t, model.StepStatusComplete, step.Status, step.Name)
	}
}

func TestPipeline_Run_SingleProvider(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)

	rules := testRules()
	rules.Providers = rules.Providers[:1]
	writeCoverageTile(t, cfg.Extract.TilesRoot, "telco_2000",
		color.NRGBA{R: 0x61, G: 0x03, B: 0x32, A: 255}, 2, 2, 5, 5)

	p := New(cfg, rules, st)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	areas := map[model.Status]float64{}
	for _, row := range result.Summary {
		areas[row.Status] += row.AreaKM2
	}
	assert.Zero(t, areas[model.StatusCompetition])
	assert.InDelta(t, 16e-6, areas[model.StatusMonopolyA], 2e-6)
}
