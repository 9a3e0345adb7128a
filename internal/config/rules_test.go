package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const twoProviderRules = `
alpha_min: 100
providers:
  - key: telco
    name: Telco
    layers:
      - key: telco_2000
        name: "Telco 2000"
        kind: existing
        color: "#610332"
        tile_dir: telco_2000
        gap_radius: 7.0
        simplify_tolerance: 0.5
      - key: telco_plan
        name: "Telco planned"
        kind: planned
        color: "#314EA5"
        alpha_min: 50
        tile_dir: telco_plan
        gap_radius: 3.0
        simplify_tolerance: 0.5
  - key: vodanet
    name: Vodanet
    layers:
      - key: vodanet_1000
        name: "Vodanet 1000"
        kind: existing
        color: "#7F0000"
        tile_dir: vodanet_1000
        gap_radius: 7.0
        simplify_tolerance: 0.5
`

func TestRules_LoadRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", twoProviderRules)

	r, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(100), r.AlphaMin)
	require.Len(t, r.Providers, 2)
	assert.Equal(t, []string{"telco", "vodanet"}, r.ProviderKeys())
}

func TestRules_LoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRules_LoadRules_UnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
alpha_min: 100
providers:
  - key: telco
    bogus_field: true
    layers:
      - key: telco_2000
        kind: existing
        color: "#610332"
        tile_dir: telco_2000
        gap_radius: 7.0
`)

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestRules_LoadRules_DuplicateLayerKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
providers:
  - key: telco
    layers:
      - key: same
        kind: existing
        color: "#610332"
        tile_dir: a
        gap_radius: 7.0
      - key: same
        kind: existing
        color: "#7D4443"
        tile_dir: b
        gap_radius: 7.0
`)

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate layer key")
}

func TestRules_LoadRules_TooManyProviders(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
providers:
  - key: a
    layers:
      - {key: a1, kind: existing, color: "#000000", tile_dir: a1, gap_radius: 1}
  - key: b
    layers:
      - {key: b1, kind: existing, color: "#000000", tile_dir: b1, gap_radius: 1}
  - key: c
    layers:
      - {key: c1, kind: existing, color: "#000000", tile_dir: c1, gap_radius: 1}
`)

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 or 2 providers")
}

func TestRules_LoadRules_BadKind(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
providers:
  - key: telco
    layers:
      - {key: t1, kind: future, color: "#000000", tile_dir: t1, gap_radius: 1}
`)

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestRules_Categories(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", twoProviderRules)
	r, err := LoadRules(path)
	require.NoError(t, err)

	cats := r.Categories()
	require.Len(t, cats, 3)

	first := cats[0]
	assert.Equal(t, "telco_2000", first.Key)
	assert.Equal(t, "telco", first.Provider)
	assert.Equal(t, model.KindExisting, first.Kind)
	assert.Equal(t, model.RGBA{R: 0x61, G: 0x03, B: 0x32, A: 255}, first.Color)
	assert.Equal(t, uint8(100), first.AlphaMin, "inherits the global floor")
	assert.Equal(t, 7.0, first.GapRadius)

	plan := cats[1]
	assert.Equal(t, model.KindPlanned, plan.Kind)
	assert.Equal(t, uint8(50), plan.AlphaMin, "layer override wins")
}

func TestRules_ParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#7F0000")
	require.NoError(t, err)
	assert.Equal(t, model.RGBA{R: 0x7F, A: 255}, c)

	c, err = ParseHexColor("314EA5")
	require.NoError(t, err)
	assert.Equal(t, model.RGBA{R: 0x31, G: 0x4E, B: 0xA5, A: 255}, c)

	_, err = ParseHexColor("#FFF")
	assert.Error(t, err)
	_, err = ParseHexColor("#GGGGGG")
	assert.Error(t, err)
}
