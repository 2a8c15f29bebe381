// Package config loads the ETL configuration and initialises logging.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	CBS      CBSConfig      `yaml:"cbs" mapstructure:"cbs"`
	RSA      RSAConfig      `yaml:"rsa" mapstructure:"rsa"`
	Roads    RoadsConfig    `yaml:"roads" mapstructure:"roads"`
	Location LocationConfig `yaml:"location" mapstructure:"location"`
	Cluster  ClusterConfig  `yaml:"cluster" mapstructure:"cluster"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
}

// DatabaseConfig configures the PostGIS connection.
type DatabaseConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the map API server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	CacheEntries int      `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLSecs int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// CBSConfig configures the CBS accident file import.
type CBSConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	LoadStartYear int    `yaml:"load_start_year" mapstructure:"load_start_year"`
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	SourceURL     string `yaml:"source_url" mapstructure:"source_url"`
	CitiesFile    string `yaml:"cities_file" mapstructure:"cities_file"`
	TablesFile    string `yaml:"tables_file" mapstructure:"tables_file"`
}

// RSAConfig configures the police RSA feed import.
type RSAConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// RoadsConfig points at the road geography source files.
type RoadsConfig struct {
	SegmentsFile  string `yaml:"segments_file" mapstructure:"segments_file"`
	JunctionsFile string `yaml:"junctions_file" mapstructure:"junctions_file"`
}

// LocationConfig tunes the nearest-marker matcher.
type LocationConfig struct {
	GeohashPrecision  int     `yaml:"geohash_precision" mapstructure:"geohash_precision"`
	MaxDistanceMeters float64 `yaml:"max_distance_m" mapstructure:"max_distance_m"`
	CandidateRadiusM  float64 `yaml:"candidate_radius_m" mapstructure:"candidate_radius_m"`
	CandidateLimit    int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
}

// ClusterConfig tunes map clustering.
type ClusterConfig struct {
	RadiusPx int `yaml:"radius_px" mapstructure:"radius_px"`
	Workers  int `yaml:"workers" mapstructure:"workers"`
}

// GeocodeConfig holds Google Geocoding API settings.
type GeocodeConfig struct {
	GoogleKey     string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Language      string  `yaml:"language" mapstructure:"language"`
	Region        string  `yaml:"region" mapstructure:"region"`
	CachePath     string  `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ANYWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known to viper for AutomaticEnv to see them during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.cache_entries", 10000)
	v.SetDefault("server.cache_ttl_secs", 300)
	v.SetDefault("cbs.path", "static/data/cbs")
	v.SetDefault("cbs.batch_size", 5000)
	v.SetDefault("cbs.load_start_year", 2005)
	v.SetDefault("cbs.temp_dir", "/tmp/anyway")
	v.SetDefault("cbs.cities_file", "static/data/cities.csv")
	v.SetDefault("rsa.file", "static/data/rsa/rsa.xlsx")
	v.SetDefault("roads.segments_file", "static/data/road_segments/road_segments.xlsx")
	v.SetDefault("roads.junctions_file", "static/data/suburban_junctions/junctions.shp")
	v.SetDefault("location.geohash_precision", 6)
	v.SetDefault("location.max_distance_m", 5000)
	v.SetDefault("location.candidate_radius_m", 10000)
	v.SetDefault("location.candidate_limit", 2000)
	v.SetDefault("cluster.radius_px", 50)
	v.SetDefault("cluster.workers", 0)
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.rate_per_sec", 10)
	v.SetDefault("geocode.language", "iw")
	v.SetDefault("geocode.region", "il")
	v.SetDefault("geocode.cache_path", "geocode_cache.db")
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("fetch.user_agent", "anyway-etl/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)

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

// Validate checks the settings a command mode needs. Modes: "import",
// "serve", "location". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required")
		}
		if c.CBS.BatchSize <= 0 {
			errs = append(errs, fmt.Sprintf("cbs.batch_size must be > 0, got %d", c.CBS.BatchSize))
		}
	case "serve":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required")
		}
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Cluster.RadiusPx <= 0 {
			errs = append(errs, "cluster.radius_px must be > 0")
		}
	case "location":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required")
		}
		if c.Location.GeohashPrecision < 1 || c.Location.GeohashPrecision > 12 {
			errs = append(errs, fmt.Sprintf("location.geohash_precision must be between 1 and 12, got %d", c.Location.GeohashPrecision))
		}
		if c.Location.MaxDistanceMeters <= 0 {
			errs = append(errs, "location.max_distance_m must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
