// Package config loads application configuration and the coverage rules file.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	CRS      string         `yaml:"crs" mapstructure:"crs"`
	Rules    string         `yaml:"rules" mapstructure:"rules"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Clean    CleanConfig    `yaml:"clean" mapstructure:"clean"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExtractConfig configures the tile extraction stage.
type ExtractConfig struct {
	// TilesRoot is the directory the per-category tile dirs live under.
	TilesRoot string `yaml:"tiles_root" mapstructure:"tiles_root"`
	// Workers bounds the tile worker pool; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// FlushBatch is the per-category feature count at which the in-memory
	// buffer is flushed to the store.
	FlushBatch int `yaml:"flush_batch" mapstructure:"flush_batch"`
	// ClosingIterations is the 3x3 morphological closing iteration count
	// applied to each mask before vectorization. 0 disables closing.
	ClosingIterations int `yaml:"closing_iterations" mapstructure:"closing_iterations"`
}

// CleanConfig configures vector gap closing.
type CleanConfig struct {
	// QuadSegments is the buffer arc approximation; edges only need
	// smoothing, so a low value keeps vertex counts down.
	QuadSegments int `yaml:"quad_segments" mapstructure:"quad_segments"`
}

// ClassifyConfig configures per-cell classification.
type ClassifyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SchemaMapping names the attribute fields of the administrative-cell source.
// The mapping is resolved once at load time; a field that cannot be resolved
// against the source is a fatal configuration error, never a silent guess.
type SchemaMapping struct {
	CellIDField   string `yaml:"cell_id_field" mapstructure:"cell_id_field"`
	CellNameField string `yaml:"cell_name_field" mapstructure:"cell_name_field"`
}

// BoundaryConfig configures the administrative boundary and cell source.
type BoundaryConfig struct {
	// ServiceURL is a feature-service endpoint returning a GeoJSON
	// FeatureCollection of administrative cells.
	ServiceURL string `yaml:"service_url" mapstructure:"service_url"`
	// Path is a local shapefile or GeoJSON alternative to ServiceURL.
	Path   string        `yaml:"path" mapstructure:"path"`
	Schema SchemaMapping `yaml:"schema" mapstructure:"schema"`
	// FallbackBBox is [minX, minY, maxX, maxY] in the analysis CRS, used as
	// a single degraded cell when neither source yields cells.
	FallbackBBox []float64 `yaml:"fallback_bbox" mapstructure:"fallback_bbox"`
	TimeoutSecs  int       `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// RequestsPerSec rate-limits the feature service.
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ExportConfig configures result artifacts.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the results server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// RequestsPerSec rate-limits the API; 0 disables the limiter.
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COVERAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("crs", "EPSG:3857")
	v.SetDefault("rules", "rules.yaml")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "coverage.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("extract.tiles_root", "tiles")
	v.SetDefault("extract.workers", 0)
	v.SetDefault("extract.flush_batch", 5000)
	v.SetDefault("extract.closing_iterations", 1)
	v.SetDefault("clean.quad_segments", 3)
	v.SetDefault("classify.workers", 0)
	v.SetDefault("boundary.timeout_secs", 60)
	v.SetDefault("boundary.requests_per_sec", 2)
	v.SetDefault("export.dir", "out")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_sec", 20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Extract.FlushBatch <= 0 {
		return eris.New("config: extract.flush_batch must be positive")
	}
	if c.Extract.ClosingIterations < 0 {
		return eris.New("config: extract.closing_iterations must not be negative")
	}
	if c.Clean.QuadSegments <= 0 {
		return eris.New("config: clean.quad_segments must be positive")
	}
	if n := len(c.Boundary.FallbackBBox); n != 0 && n != 4 {
		return eris.Errorf("config: boundary.fallback_bbox needs 4 values, got %d", n)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
