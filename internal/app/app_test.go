package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/carbon-emission-etl/internal/adapter/geotable"
	"github.com/couchcryptid/carbon-emission-etl/internal/config"
	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
	"github.com/couchcryptid/carbon-emission-etl/internal/synth"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

var (
	repoModels = filepath.Join("..", "..", "models")
	repoCities = filepath.Join("..", "..", "data", "cities.csv")
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testConfig points every path into dir and selects the bundled city table.
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	t.Setenv("VEHICLE_INPUT_PATH", filepath.Join(dir, "vehicles.csv"))
	t.Setenv("VEHICLE_RESULTS_PATH", filepath.Join(dir, "vehicle_results.csv"))
	t.Setenv("VEHICLE_MODEL_PATH", filepath.Join(repoModels, "vehicle_model.json"))
	t.Setenv("INDUSTRY_INPUT_PATH", filepath.Join(dir, "industries.csv"))
	t.Setenv("INDUSTRY_RESULTS_PATH", filepath.Join(dir, "industry_results.csv"))
	t.Setenv("INDUSTRY_MODEL_PATH", filepath.Join(repoModels, "industry_model.json"))
	t.Setenv("GEOCODER", "static")
	t.Setenv("GEOCODER_TABLE_PATH", repoCities)

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func writeInput(t *testing.T, d domain.Domain, path string, count int) {
	t.Helper()
	cities, err := geotable.Load(repoCities)
	require.NoError(t, err)
	table, err := synth.Generate(d, synth.Options{Count: count, Seed: 11, Cities: cities.Cities()})
	require.NoError(t, err)
	data, err := tabular.Encode(table)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestNew_ServesScoredResults(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	writeInput(t, domain.Vehicle, cfg.VehicleInputPath, 12)
	writeInput(t, domain.Industry, cfg.IndustryInputPath, 8)

	a, err := New(context.Background(), cfg, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.Len(t, a.Models, 2)
	assert.Equal(t, domain.Vehicle, a.Models[0].Domain)
	assert.Equal(t, domain.Industry, a.Models[1].Domain)

	rec := httptest.NewRecorder()
	a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vehicles", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var vehicles []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vehicles))
	require.Len(t, vehicles, 12)
	for _, v := range vehicles {
		assert.NotNil(t, v[domain.ColumnLat], "bundled cities always resolve")
		assert.Contains(t, []any{string(domain.StatusHigh), string(domain.StatusSafe)}, v[domain.ColumnStatus])
	}

	results, err := a.Store.ReadResults(domain.Industry)
	require.NoError(t, err)
	assert.Len(t, results.Rows, 8)
}

func TestNew_GeocodingDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Geocoder = "none"
	writeInput(t, domain.Vehicle, cfg.VehicleInputPath, 3)

	a, err := New(context.Background(), cfg, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Pipeline.Run(context.Background(), domain.Vehicle)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)

	results, err := a.Store.ReadResults(domain.Vehicle)
	require.NoError(t, err)
	latIdx, ok := results.ColumnIndex(domain.ColumnLat)
	require.True(t, ok)
	for _, row := range results.Rows {
		assert.Empty(t, row[latIdx])
	}
}

func TestNew_MissingModel(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.IndustryModelPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := New(context.Background(), cfg, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load industry model")
}

func TestNew_MissingCityTable(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.GeocoderTablePath = filepath.Join(t.TempDir(), "cities.csv")

	_, err := New(context.Background(), cfg, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load city table")
}

func TestNew_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Geocoder = "nominatim"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestClose_ReverseOrder(t *testing.T) {
	a := &App{Logger: discardLogger()}
	var order []string
	a.addCloser("first", func() error { order = append(order, "first"); return nil })
	a.addCloser("second", func() error { order = append(order, "second"); return io.ErrClosedPipe })

	err := a.Close()
	require.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Contains(t, err.Error(), "close second")
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, a.Close())
}
