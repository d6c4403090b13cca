package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all service settings. Every key can be set through the
// environment variable of the same name in upper case, or in a YAML/JSON file
// passed to Load.
type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`

	VehicleInputPath    string  `mapstructure:"vehicle_input_path"`
	VehicleResultsPath  string  `mapstructure:"vehicle_results_path"`
	VehicleModelPath    string  `mapstructure:"vehicle_model_path"`
	VehicleThreshold    float64 `mapstructure:"vehicle_threshold"`
	IndustryInputPath   string  `mapstructure:"industry_input_path"`
	IndustryResultsPath string  `mapstructure:"industry_results_path"`
	IndustryModelPath   string  `mapstructure:"industry_model_path"`
	IndustryThreshold   float64 `mapstructure:"industry_threshold"`

	// UnknownCategoryPolicy is "fail" (abort the run) or "skip" (drop the record).
	UnknownCategoryPolicy string `mapstructure:"unknown_category_policy"`

	// Geocoding configuration. Geocoder is nominatim, mapbox, static or none.
	Geocoder            string        `mapstructure:"geocoder"`
	GeocoderTimeout     time.Duration `mapstructure:"geocoder_timeout"`
	GeocoderRateLimit   float64       `mapstructure:"geocoder_rate_limit"`
	GeocoderConcurrency int           `mapstructure:"geocoder_concurrency"`
	GeocoderCacheSize   int           `mapstructure:"geocoder_cache_size"`
	GeocoderTablePath   string        `mapstructure:"geocoder_table_path"`
	GeocoderCountry     string        `mapstructure:"geocoder_country"`
	MapboxToken         string        `mapstructure:"mapbox_token"`
	NominatimURL        string        `mapstructure:"nominatim_url"`
	NominatimUserAgent  string        `mapstructure:"nominatim_user_agent"`
	RedisURL            string        `mapstructure:"redis_url"`
	RedisTTL            time.Duration `mapstructure:"redis_ttl"`

	// Optional result sinks. Each is disabled while its address is empty.
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	PostgresDSN  string   `mapstructure:"postgres_dsn"`
	S3Bucket     string   `mapstructure:"s3_bucket"`
	S3Prefix     string   `mapstructure:"s3_prefix"`
	S3Region     string   `mapstructure:"s3_region"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

var defaults = map[string]any{
	"http_addr":        ":8080",
	"log_level":        "info",
	"log_format":       "json",
	"shutdown_timeout": "10s",
	"run_timeout":      "5m",

	"vehicle_input_path":    "data/new_vehicle_data.csv",
	"vehicle_results_path":  "data/vehicle_results.csv",
	"vehicle_model_path":    "models/vehicle_model.json",
	"vehicle_threshold":     120.0,
	"industry_input_path":   "data/new_industry_data.csv",
	"industry_results_path": "data/industry_results.csv",
	"industry_model_path":   "models/industry_model.json",
	"industry_threshold":    500.0,

	"unknown_category_policy": "fail",

	"geocoder":             "nominatim",
	"geocoder_timeout":     "5s",
	"geocoder_rate_limit":  1.0,
	"geocoder_concurrency": 4,
	"geocoder_cache_size":  1000,
	"geocoder_table_path":  "data/cities.csv",
	"geocoder_country":     "",
	"mapbox_token":         "",
	"nominatim_url":        "https://nominatim.openstreetmap.org",
	"nominatim_user_agent": "emission_app",
	"redis_url":            "",
	"redis_ttl":            "168h",

	"kafka_brokers": "",
	"kafka_topic":   "emission-results",
	"postgres_dsn":  "",
	"s3_bucket":     "",
	"s3_prefix":     "reports",
	"s3_region":     "us-east-1",

	"cors_allowed_origins": "*",
}

// Load reads configuration from the environment, then from file when it is
// not empty, applying defaults where unset. Environment variables win over
// the file.
func Load(file string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	hooks := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, decodeError(err)
	}

	cfg.KafkaBrokers = cleanList(cfg.KafkaBrokers)
	cfg.CORSAllowedOrigins = cleanList(cfg.CORSAllowedOrigins)
	cfg.Geocoder = strings.ToLower(strings.TrimSpace(cfg.Geocoder))
	cfg.UnknownCategoryPolicy = strings.ToLower(strings.TrimSpace(cfg.UnknownCategoryPolicy))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// KafkaEnabled reports whether results are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// PostgresEnabled reports whether results are mirrored into Postgres.
func (c *Config) PostgresEnabled() bool { return c.PostgresDSN != "" }

// S3Enabled reports whether results are archived to S3.
func (c *Config) S3Enabled() bool { return c.S3Bucket != "" }

func (c *Config) validate() error {
	durations := []struct {
		name string
		val  time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"RUN_TIMEOUT", c.RunTimeout},
		{"GEOCODER_TIMEOUT", c.GeocoderTimeout},
		{"REDIS_TTL", c.RedisTTL},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	for name, th := range map[string]float64{"VEHICLE_THRESHOLD": c.VehicleThreshold, "INDUSTRY_THRESHOLD": c.IndustryThreshold} {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}

	paths := map[string]string{
		"VEHICLE_INPUT_PATH":    c.VehicleInputPath,
		"VEHICLE_RESULTS_PATH":  c.VehicleResultsPath,
		"VEHICLE_MODEL_PATH":    c.VehicleModelPath,
		"INDUSTRY_INPUT_PATH":   c.IndustryInputPath,
		"INDUSTRY_RESULTS_PATH": c.IndustryResultsPath,
		"INDUSTRY_MODEL_PATH":   c.IndustryModelPath,
	}
	for name, p := range paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	switch c.UnknownCategoryPolicy {
	case "fail", "skip":
	default:
		return fmt.Errorf("UNKNOWN_CATEGORY_POLICY must be fail or skip, got %q", c.UnknownCategoryPolicy)
	}

	switch c.Geocoder {
	case "nominatim":
		if c.NominatimURL == "" {
			return errors.New("GEOCODER is nominatim but NOMINATIM_URL is not set")
		}
		if c.NominatimUserAgent == "" {
			return errors.New("GEOCODER is nominatim but NOMINATIM_USER_AGENT is not set")
		}
	case "mapbox":
		if c.MapboxToken == "" {
			return errors.New("GEOCODER is mapbox but MAPBOX_TOKEN is not set")
		}
	case "static":
		if c.GeocoderTablePath == "" {
			return errors.New("GEOCODER is static but GEOCODER_TABLE_PATH is not set")
		}
	case "none":
	default:
		return fmt.Errorf("GEOCODER must be nominatim, mapbox, static or none, got %q", c.Geocoder)
	}

	if c.GeocoderConcurrency < 1 {
		return errors.New("GEOCODER_CONCURRENCY must be at least 1")
	}
	if c.GeocoderCacheSize < 1 {
		return errors.New("GEOCODER_CACHE_SIZE must be at least 1")
	}
	if c.GeocoderRateLimit < 0 {
		return errors.New("GEOCODER_RATE_LIMIT must not be negative")
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	if c.S3Enabled() && c.S3Region == "" {
		return errors.New("S3_BUCKET is set but S3_REGION is empty")
	}
	return nil
}

// decodeError names the environment variable behind a mapstructure failure.
func decodeError(err error) error {
	msg := err.Error()
	for k := range defaults {
		if strings.Contains(msg, "'"+k+"'") {
			return fmt.Errorf("invalid %s: %w", strings.ToUpper(k), err)
		}
	}
	return fmt.Errorf("decode config: %w", err)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
