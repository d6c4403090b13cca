package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

func TestMain(m *testing.M) {
	newMetrics = observability.NewMetricsForTesting
	m.Run()
}

// setupEnv points every configured path into a temp dir and returns it.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VEHICLE_INPUT_PATH", filepath.Join(dir, "in", "vehicles.csv"))
	t.Setenv("VEHICLE_RESULTS_PATH", filepath.Join(dir, "vehicle_results.csv"))
	t.Setenv("VEHICLE_MODEL_PATH", filepath.Join("..", "..", "models", "vehicle_model.json"))
	t.Setenv("INDUSTRY_INPUT_PATH", filepath.Join(dir, "in", "industries.csv"))
	t.Setenv("INDUSTRY_RESULTS_PATH", filepath.Join(dir, "industry_results.csv"))
	t.Setenv("INDUSTRY_MODEL_PATH", filepath.Join("..", "..", "models", "industry_model.json"))
	t.Setenv("GEOCODER", "static")
	t.Setenv("GEOCODER_TABLE_PATH", filepath.Join("..", "..", "data", "cities.csv"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestGenerateRunResults(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, "generate", "vehicle", "--count", "15", "--seed", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 15 vehicles")

	raw, err := tabular.ReadFile(filepath.Join(dir, "in", "vehicles.csv"))
	require.NoError(t, err)
	assert.Len(t, raw.Rows, 15)

	out, err = execute(t, "run", "vehicles")
	require.NoError(t, err)
	assert.Contains(t, out, "vehicle: 15 records")

	out, err = execute(t, "results", "vehicle", "--top", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "vehicle_no"))
	assert.Contains(t, lines[0], domain.ColumnPredicted)
}

func TestRun_ReportsFailedDomainAndContinues(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "generate", "industry", "--count", "4", "--cities", "Chennai, Madurai")
	require.NoError(t, err)

	// No vehicle input exists, so only the industry run succeeds.
	out, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, out, "vehicle: failed")
	assert.Contains(t, out, "industry: 4 records")
}

func TestRun_UnknownDomain(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "run", "ship")
	require.ErrorIs(t, err, domain.ErrUnknownDomain)
}

func TestResults_NoResults(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "results", "industry")
	require.ErrorIs(t, err, domain.ErrNoResults)
}

func TestGenerate_WithTargetAndOut(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "custom", "train.csv")

	_, err := execute(t, "generate", "industry", "--count", "6", "--with-target", "--out", path)
	require.NoError(t, err)

	table, err := tabular.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 6)
	assert.Equal(t, "CO2_Emission", table.Header[len(table.Header)-1])
}

func TestPrintResults_AllRowsInFileOrder(t *testing.T) {
	table := domain.Table{
		Header: []string{"Industry_Name", "City", domain.ColumnPredicted, domain.ColumnStatus},
		Rows: [][]string{
			{"Industry_1", "Chennai", "300", "SAFE"},
			{"Industry_2", "Madurai", "900", "HIGH"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, printResults(&buf, domain.Industry, table, 0))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "Industry_1"))

	buf.Reset()
	require.NoError(t, printResults(&buf, domain.Industry, table, 1))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "Industry_2"))
}

func TestEncodings_ReproducesShippedArtifact(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "labelled.csv")
	_, err := execute(t, "generate", "industry", "--count", "200", "--with-target", "--out", path)
	require.NoError(t, err)

	out, err := execute(t, "encodings", "industry", "--in", path, "--columns", "Fuel_Used,Industry_Type")
	require.NoError(t, err)
	var got struct {
		Encodings map[string][]string `json:"encodings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	data, err := os.ReadFile(filepath.Join("..", "..", "models", "industry_model.json"))
	require.NoError(t, err)
	var shipped struct {
		Encodings map[string][]string `json:"encodings"`
	}
	require.NoError(t, json.Unmarshal(data, &shipped))
	assert.Equal(t, shipped.Encodings, got.Encodings)
}

func TestEncodings_TableFormatDefaultsToInputPath(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "generate", "vehicle", "--count", "100")
	require.NoError(t, err)

	out, err := execute(t, "encodings", "vehicle", "--format", "table")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "column"))
	assert.Regexp(t, `fuel_type\s+0\s+CNG`, out)
	assert.Regexp(t, `vehicle_type\s+4\s+Truck`, out)
}

func TestEncodings_RejectsNonCategoricalColumn(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "v.csv")
	_, err := execute(t, "generate", "vehicle", "--count", "5", "--out", path)
	require.NoError(t, err)

	_, err = execute(t, "encodings", "vehicle", "--in", path, "--columns", "engine_cc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a categorical")
}
