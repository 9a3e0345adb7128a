package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		CRS:   "EPSG:3857",
		Rules: "rules.yaml",
		Store: StoreConfig{Driver: "sqlite", DatabaseURL: "coverage.db"},
		Extract: ExtractConfig{
			TilesRoot:         "tiles",
			FlushBatch:        5000,
			ClosingIterations: 1,
		},
		Clean: CleanConfig{QuadSegments: 3},
	}
}

func TestConfig_Load_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "EPSG:3857", cfg.CRS)
	assert.Equal(t, "rules.yaml", cfg.Rules)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "coverage.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "tiles", cfg.Extract.TilesRoot)
	assert.Equal(t, 5000, cfg.Extract.FlushBatch)
	assert.Equal(t, 1, cfg.Extract.ClosingIterations)
	assert.Equal(t, 3, cfg.Clean.QuadSegments)
	assert.Equal(t, 60, cfg.Boundary.TimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestConfig_Load_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
crs: EPSG:25832
store:
  driver: postgres
  database_url: postgres://localhost/coverage
extract:
  flush_batch: 100
server:
  port: 9090
`)
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "EPSG:25832", cfg.CRS)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/coverage", cfg.Store.DatabaseURL)
	assert.Equal(t, 100, cfg.Extract.FlushBatch)
	assert.Equal(t, 9090, cfg.Server.Port)
	// untouched keys keep their defaults
	assert.Equal(t, 1, cfg.Extract.ClosingIterations)
}

func TestConfig_Validate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestConfig_Validate_FlushBatch(t *testing.T) {
	cfg := validConfig()
	cfg.Extract.FlushBatch = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush_batch")
}

func TestConfig_Validate_NegativeClosing(t *testing.T) {
	cfg := validConfig()
	cfg.Extract.ClosingIterations = -1

	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_QuadSegments(t *testing.T) {
	cfg := validConfig()
	cfg.Clean.QuadSegments = 0

	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_FallbackBBox(t *testing.T) {
	cfg := validConfig()
	cfg.Boundary.FallbackBBox = []float64{0, 0, 100}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_bbox")

	cfg.Boundary.FallbackBBox = []float64{0, 0, 100, 100}
	assert.NoError(t, cfg.Validate())
}
