package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// Rules is the parsed coverage rules file: which providers exist, which
// imagery layers each one publishes, and how to turn layer colors into
// polygons.
type Rules struct {
	// AlphaMin is the exclusive alpha floor applied to every layer unless a
	// layer overrides it.
	AlphaMin  uint8      `yaml:"alpha_min"`
	Providers []Provider `yaml:"providers"`
}

// Provider is one competing network operator.
type Provider struct {
	Key    string  `yaml:"key"`
	Name   string  `yaml:"name"`
	Layers []Layer `yaml:"layers"`
}

// Layer is one coverage tier of a provider.
type Layer struct {
	Key               string  `yaml:"key"`
	Name              string  `yaml:"name"`
	Kind              string  `yaml:"kind"`
	Color             string  `yaml:"color"`
	AlphaMin          *uint8  `yaml:"alpha_min"`
	TileDir           string  `yaml:"tile_dir"`
	GapRadius         float64 `yaml:"gap_radius"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance"`
}

// LoadRules reads and validates the rules file. Decoding is strict: an
// unknown field is a configuration error, not a warning.
func LoadRules(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: open rules file %s", path)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var r Rules
	if err := dec.Decode(&r); err != nil {
		return nil, eris.Wrapf(err, "config: parse rules file %s", path)
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) validate() error {
	if n := len(r.Providers); n < 1 || n > 2 {
		return eris.Errorf("config: rules need 1 or 2 providers, got %d", n)
	}

	seen := map[string]bool{}
	for _, p := range r.Providers {
		if p.Key == "" {
			return eris.New("config: provider key must not be empty")
		}
		if len(p.Layers) == 0 {
			return eris.Errorf("config: provider %q has no layers", p.Key)
		}
		for _, l := range p.Layers {
			if l.Key == "" {
				return eris.Errorf("config: provider %q: layer key must not be empty", p.Key)
			}
			if seen[l.Key] {
				return eris.Errorf("config: duplicate layer key %q", l.Key)
			}
			seen[l.Key] = true

			switch model.LayerKind(l.Kind) {
			case model.KindExisting, model.KindPlanned:
			default:
				return eris.Errorf("config: layer %q: unknown kind %q", l.Key, l.Kind)
			}
			if _, err := ParseHexColor(l.Color); err != nil {
				return eris.Wrapf(err, "config: layer %q", l.Key)
			}
			if l.TileDir == "" {
				return eris.Errorf("config: layer %q: tile_dir must not be empty", l.Key)
			}
			if l.GapRadius <= 0 {
				return eris.Errorf("config: layer %q: gap_radius must be positive", l.Key)
			}
			if l.SimplifyTolerance < 0 {
				return eris.Errorf("config: layer %q: simplify_tolerance must not be negative", l.Key)
			}
		}
	}
	return nil
}

// ProviderKeys returns the provider keys in file order. Order is meaningful:
// the first provider is "A" in the classification, the second is "B".
func (r *Rules) ProviderKeys() []string {
	keys := make([]string, 0, len(r.Providers))
	for _, p := range r.Providers {
		keys = append(keys, p.Key)
	}
	return keys
}

// Categories flattens the rules into the category list the pipeline stages
// consume.
func (r *Rules) Categories() []model.Category {
	var cats []model.Category
	for _, p := range r.Providers {
		for _, l := range p.Layers {
			alpha := r.AlphaMin
			if l.AlphaMin != nil {
				alpha = *l.AlphaMin
			}
			color, _ := ParseHexColor(l.Color) // validated at load
			cats = append(cats, model.Category{
				Key:               l.Key,
				Provider:          p.Key,
				Name:              l.Name,
				Kind:              model.LayerKind(l.Kind),
				Color:             color,
				AlphaMin:          alpha,
				TileDir:           l.TileDir,
				GapRadius:         l.GapRadius,
				SimplifyTolerance: l.SimplifyTolerance,
			})
		}
	}
	return cats
}

// ParseHexColor parses "#RRGGBB" into an opaque RGBA palette color.
func ParseHexColor(s string) (model.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return model.RGBA{}, eris.Errorf("config: invalid hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return model.RGBA{}, eris.Errorf("config: invalid hex color %q", s)
	}
	return model.RGBA{R: r, G: g, B: b, A: 255}, nil
}
