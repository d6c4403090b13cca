package synth

import (
	"bytes"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCities = []string{"Chennai", "Madurai", "Coimbatore"}

func TestGenerate_VehicleTableParses(t *testing.T) {
	table, err := Generate(domain.Vehicle, Options{Count: 50, Seed: 7, Cities: testCities})
	require.NoError(t, err)
	require.Len(t, table.Rows, 50)

	schema, err := domain.SchemaFor(domain.Vehicle)
	require.NoError(t, err)
	assert.Equal(t, schema.Names(), table.Header)

	recs, err := domain.ParseRecords(schema, table)
	require.NoError(t, err)
	for _, r := range recs {
		age, err := r.Number("vehicle_age")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, age, 1.0)
		assert.LessOrEqual(t, age, 12.0)

		mileage, err := r.Number("mileage")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, mileage, 5.0)
		assert.LessOrEqual(t, mileage, 50.0)

		assert.Contains(t, testCities, r.City)
		assert.Regexp(t, `^TN\d{2}AB\d{4}$`, r.ID)
	}
}

func TestGenerate_IndustryTableParses(t *testing.T) {
	table, err := Generate(domain.Industry, Options{Seed: 1, Cities: testCities})
	require.NoError(t, err)
	require.Len(t, table.Rows, DefaultCount)

	schema, err := domain.SchemaFor(domain.Industry)
	require.NoError(t, err)
	recs, err := domain.ParseRecords(schema, table)
	require.NoError(t, err)
	assert.Equal(t, "Industry_1", recs[0].ID)
	assert.Equal(t, "Industry_200", recs[199].ID)
	for _, r := range recs {
		v, _ := r.Value("Pollution_Control")
		assert.Contains(t, []string{"Yes", "No"}, v)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(domain.Vehicle, Options{Count: 20, Seed: 42, Cities: testCities, WithTarget: true})
	require.NoError(t, err)
	b, err := Generate(domain.Vehicle, Options{Count: 20, Seed: 42, Cities: testCities, WithTarget: true})
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different tables (-a +b):\n%s", diff)
	}

	c, err := Generate(domain.Vehicle, Options{Count: 20, Seed: 43, Cities: testCities, WithTarget: true})
	require.NoError(t, err)
	assert.NotEqual(t, a.Rows, c.Rows)
}

func TestGenerate_ShippedModelsReproduceTarget(t *testing.T) {
	cases := []struct {
		d      domain.Domain
		file   string
		target string
	}{
		{domain.Vehicle, "vehicle_model.json", VehicleTarget},
		{domain.Industry, "industry_model.json", IndustryTarget},
	}
	for _, tc := range cases {
		t.Run(string(tc.d), func(t *testing.T) {
			table, err := Generate(tc.d, Options{Count: 40, Seed: 9, Cities: testCities, WithTarget: true})
			require.NoError(t, err)
			require.Equal(t, tc.target, table.Header[len(table.Header)-1])

			m, err := model.Load(filepath.Join("..", "..", "models", tc.file), tc.d)
			require.NoError(t, err)
			schema, err := domain.SchemaFor(tc.d)
			require.NoError(t, err)
			recs, err := domain.ParseRecords(schema, table)
			require.NoError(t, err)

			for _, r := range recs {
				x, err := m.Vectorize(r, domain.MissingCoordinate)
				require.NoError(t, err)
				got, err := m.Predict(x)
				require.NoError(t, err)
				want, err := strconv.ParseFloat(r.Cells[len(r.Cells)-1], 64)
				require.NoError(t, err)
				// Rounded fuel_monthly shifts the vehicle prediction by at most 0.0025.
				assert.InDelta(t, want, got, 0.01, "record %s", r.ID)
			}
		})
	}
}

func TestGenerate_Progress(t *testing.T) {
	var buf bytes.Buffer
	_, err := Generate(domain.Industry, Options{Count: 5, Cities: testCities, Progress: &buf})
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(domain.Vehicle, Options{Count: 5})
	require.Error(t, err)

	_, err = Generate(domain.Vehicle, Options{Count: -1, Cities: testCities})
	require.Error(t, err)

	_, err = Generate(domain.Domain("ship"), Options{Cities: testCities})
	require.ErrorIs(t, err, domain.ErrUnknownDomain)
}
