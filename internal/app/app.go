// Package app assembles the service from configuration: models, storage,
// the geocoder chain, result sinks, the pipeline and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/carbon-emission-etl/internal/adapter/http"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/filestore"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/geocoding"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/geotable"
	kafkaadapter "github.com/couchcryptid/carbon-emission-etl/internal/adapter/kafka"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/postgres"
	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/s3archive"
	"github.com/couchcryptid/carbon-emission-etl/internal/config"
	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/model"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
	"github.com/couchcryptid/carbon-emission-etl/internal/pipeline"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Store    *filestore.Store
	Pipeline *pipeline.Pipeline
	Server   *httpadapter.Server
	Models   []model.Info

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New builds every component cfg enables. Optional backends (Redis, Kafka,
// PostgreSQL, S3) are contacted here so misconfiguration fails at startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	vehicleModel, err := model.Load(cfg.VehicleModelPath, domain.Vehicle)
	if err != nil {
		return fmt.Errorf("load vehicle model: %w", err)
	}
	industryModel, err := model.Load(cfg.IndustryModelPath, domain.Industry)
	if err != nil {
		return fmt.Errorf("load industry model: %w", err)
	}
	a.Models = []model.Info{vehicleModel.Info(), industryModel.Info()}
	for _, info := range a.Models {
		a.Logger.Info("model loaded", "domain", info.Domain, "name", info.Name, "version", info.Version, "checksum", info.Checksum)
	}

	a.Store = filestore.New(map[domain.Domain]filestore.Paths{
		domain.Vehicle:  {Input: cfg.VehicleInputPath, Results: cfg.VehicleResultsPath},
		domain.Industry: {Input: cfg.IndustryInputPath, Results: cfg.IndustryResultsPath},
	})

	geocoder, err := a.geocoder(ctx)
	if err != nil {
		return err
	}
	sinks, err := a.sinks(ctx)
	if err != nil {
		return err
	}
	policy, err := pipeline.ParsePolicy(cfg.UnknownCategoryPolicy)
	if err != nil {
		return err
	}

	a.Pipeline = pipeline.New(pipeline.Config{
		Domains: map[domain.Domain]pipeline.DomainConfig{
			domain.Vehicle:  {Scorer: vehicleModel, Threshold: cfg.VehicleThreshold},
			domain.Industry: {Scorer: industryModel, Threshold: cfg.IndustryThreshold},
		},
		Store:              a.Store,
		Geocoder:           geocoder,
		GeocodeConcurrency: cfg.GeocoderConcurrency,
		UnknownCategory:    policy,
		Sinks:              sinks,
		Clock:              clockwork.NewRealClock(),
		Logger:             a.Logger,
		Metrics:            a.Metrics,
	})

	a.Server = httpadapter.NewServer(httpadapter.Config{
		Addr:           cfg.HTTPAddr,
		Ready:          a.Pipeline,
		Runner:         a.Pipeline,
		Results:        a.Store,
		Models:         a.Models,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RunTimeout:     cfg.RunTimeout,
		Logger:         a.Logger,
	})
	return nil
}

// geocoder builds provider -> rate limit -> Redis cache -> in-process LRU.
// It returns nil when geocoding is disabled.
func (a *App) geocoder(ctx context.Context) (domain.Geocoder, error) {
	cfg := a.Config

	var provider domain.Geocoder
	switch cfg.Geocoder {
	case "none":
		a.Logger.Info("geocoding disabled")
		return nil, nil
	case "static":
		table, err := geotable.Load(cfg.GeocoderTablePath)
		if err != nil {
			return nil, fmt.Errorf("load city table: %w", err)
		}
		a.Logger.Info("static geocoding enabled", "path", cfg.GeocoderTablePath, "cities", len(table.Cities()))
		// Local lookups need neither rate limiting nor caching.
		return table, nil
	case "mapbox":
		provider = mapbox.NewClient(cfg.MapboxToken, cfg.GeocoderCountry, cfg.GeocoderTimeout, a.Metrics, a.Logger)
	default:
		provider = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocoderCountry, cfg.GeocoderTimeout, a.Metrics, a.Logger)
	}

	var g domain.Geocoder = provider
	if cfg.GeocoderRateLimit > 0 {
		g = geocoding.NewRateLimitedGeocoder(g, cfg.GeocoderRateLimit)
	}
	if cfg.RedisURL != "" {
		client, err := geocoding.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.addCloser("redis", client.Close)
		g = geocoding.NewRedisCachedGeocoder(g, client, cfg.RedisTTL, a.Metrics, a.Logger)
	}
	if cfg.GeocoderCacheSize > 0 {
		g = geocoding.NewCachedGeocoder(g, cfg.GeocoderCacheSize, a.Metrics)
	}
	a.Logger.Info("geocoding enabled",
		"provider", cfg.Geocoder,
		"rate_limit", cfg.GeocoderRateLimit,
		"cache_size", cfg.GeocoderCacheSize,
		"redis", cfg.RedisURL != "",
	)
	return g, nil
}

func (a *App) sinks(ctx context.Context) ([]domain.ResultSink, error) {
	cfg := a.Config
	var sinks []domain.ResultSink

	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, a.Logger)
		a.addCloser("kafka writer", w.Close)
		sinks = append(sinks, w)
		a.Logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.PostgresEnabled() {
		mirror, pool, err := postgres.Connect(ctx, cfg.PostgresDSN, a.Logger)
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres", func() error { pool.Close(); return nil })
		sinks = append(sinks, mirror)
		a.Logger.Info("postgres sink enabled")
	}
	if cfg.S3Enabled() {
		archive, err := s3archive.New(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix, a.Logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
		a.Logger.Info("s3 sink enabled", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	}
	return sinks, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Error("close error", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
