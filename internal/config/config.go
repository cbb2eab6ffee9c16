package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	ROI      ROIConfig      `yaml:"roi" mapstructure:"roi"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Shade    ShadeConfig    `yaml:"shade" mapstructure:"shade"`
	Basemap  BasemapConfig  `yaml:"basemap" mapstructure:"basemap"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ROIConfig locates the region-of-interest polygon.
type ROIConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Layer string `yaml:"layer" mapstructure:"layer"`
}

// OverpassConfig configures building acquisition from the Overpass API.
type OverpassConfig struct {
	Endpoint    string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxParallel int           `yaml:"max_parallel" mapstructure:"max_parallel"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	TagKey      string        `yaml:"tag_key" mapstructure:"tag_key"`
	TagValue    string        `yaml:"tag_value" mapstructure:"tag_value"`
}

// CacheConfig configures the on-disk Parquet artifact.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ShadeConfig configures raster tile generation.
type ShadeConfig struct {
	TileSize  int           `yaml:"tile_size" mapstructure:"tile_size"`
	MinZoom   int           `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom   int           `yaml:"max_zoom" mapstructure:"max_zoom"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// BasemapConfig configures the background tile proxy.
type BasemapConfig struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	Subdomains  []string      `yaml:"subdomains" mapstructure:"subdomains"`
	Attribution string        `yaml:"attribution" mapstructure:"attribution"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheSize   int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ServerConfig configures the document server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Title          string   `yaml:"title" mapstructure:"title"`
	HoverColor     string   `yaml:"hover_color" mapstructure:"hover_color"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BUILDINGMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("roi.path", "data.gpkg")
	v.SetDefault("roi.layer", "study_area")
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout", 3*time.Minute)
	v.SetDefault("overpass.max_parallel", 1)
	v.SetDefault("overpass.user_agent", "buildingmap/1.0")
	v.SetDefault("overpass.tag_key", "building")
	v.SetDefault("overpass.tag_value", "")
	v.SetDefault("cache.path", "buildings.parq")
	v.SetDefault("shade.tile_size", 256)
	v.SetDefault("shade.min_zoom", 10)
	v.SetDefault("shade.max_zoom", 19)
	v.SetDefault("shade.cache_size", 4096)
	v.SetDefault("shade.cache_ttl", time.Hour)
	v.SetDefault("basemap.url", "https://tiles.stadiamaps.com/tiles/stamen_watercolor/{z}/{x}/{y}.jpg")
	v.SetDefault("basemap.attribution", "Map tiles by Stamen Design, under CC BY 4.0. Data by OpenStreetMap, under ODbL.")
	v.SetDefault("basemap.rate_limit", 10.0)
	v.SetDefault("basemap.cache_size", 2048)
	v.SetDefault("basemap.cache_ttl", 24*time.Hour)
	v.SetDefault("server.port", 5006)
	v.SetDefault("server.title", "OSM Buildings by Amenity")
	v.SetDefault("server.hover_color", "yellow")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the fields a command mode depends on. Modes are "fetch",
// "serve" and "render".
func (c *Config) Validate(mode string) error {
	var problems []string

	requireLoad := func() {
		if c.Cache.Path == "" {
			problems = append(problems, "cache.path is required")
		}
		if c.ROI.Path == "" {
			problems = append(problems, "roi.path is required")
		}
		if c.Overpass.Endpoint == "" {
			problems = append(problems, "overpass.endpoint is required")
		}
		if c.Overpass.TagKey == "" {
			problems = append(problems, "overpass.tag_key is required")
		}
	}
	requireShade := func() {
		if c.Shade.TileSize <= 0 || c.Shade.TileSize > 1024 {
			problems = append(problems, "shade.tile_size must be between 1 and 1024")
		}
		if c.Shade.MinZoom < 0 || c.Shade.MaxZoom > 22 || c.Shade.MinZoom > c.Shade.MaxZoom {
			problems = append(problems, "shade zoom range must satisfy 0 <= min_zoom <= max_zoom <= 22")
		}
	}

	switch mode {
	case "fetch":
		requireLoad()
	case "serve":
		requireLoad()
		requireShade()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Basemap.URL == "" {
			problems = append(problems, "basemap.url is required")
		}
	case "render":
		requireLoad()
		requireShade()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
