package encoding

import (
	"errors"
	"testing"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_SortsDistinctValues(t *testing.T) {
	enc, err := Fit("fuel_type", []string{"Petrol", "Diesel", "CNG", "Petrol", "Diesel"})
	require.NoError(t, err)

	assert.Equal(t, []string{"CNG", "Diesel", "Petrol"}, enc.Classes())

	code, err := enc.Encode("Petrol")
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestEncoder_RoundTrip(t *testing.T) {
	enc, err := NewEncoder("vehicle_type", []string{"Bike", "Bus", "Car", "SUV", "Truck"})
	require.NoError(t, err)

	for code := range enc.Classes() {
		class, err := enc.Decode(code)
		require.NoError(t, err)
		got, err := enc.Encode(class)
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
}

func TestEncoder_Deterministic(t *testing.T) {
	a, err := Fit("Fuel_Used", []string{"Coal", "Gas", "Oil", "Biomass", "Electricity"})
	require.NoError(t, err)
	b, err := Fit("Fuel_Used", []string{"Electricity", "Oil", "Biomass", "Gas", "Coal", "Coal"})
	require.NoError(t, err)

	for _, v := range []string{"Biomass", "Coal", "Electricity", "Gas", "Oil"} {
		ca, _ := a.Encode(v)
		cb, _ := b.Encode(v)
		assert.Equal(t, ca, cb, v)
	}
}

func TestEncoder_UnknownCategory(t *testing.T) {
	enc, err := NewEncoder("fuel_type", []string{"CNG", "Diesel", "Petrol"})
	require.NoError(t, err)

	_, err = enc.Encode("Hydrogen")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)

	var uce *domain.UnknownCategoryError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, "fuel_type", uce.Column)
	assert.Equal(t, "Hydrogen", uce.Value)

	// No new code was assigned.
	assert.Len(t, enc.Classes(), 3)
}

func TestEncoder_CaseSensitive(t *testing.T) {
	enc, err := NewEncoder("fuel_type", []string{"Petrol"})
	require.NoError(t, err)
	_, err = enc.Encode("petrol")
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)
}

func TestEncoder_DecodeOutOfRange(t *testing.T) {
	enc, err := NewEncoder("c", []string{"a"})
	require.NoError(t, err)
	_, err = enc.Decode(1)
	require.Error(t, err)
	_, err = enc.Decode(-1)
	require.Error(t, err)
}

func TestNewEncoder_Rejects(t *testing.T) {
	_, err := NewEncoder("c", nil)
	require.Error(t, err)

	_, err = NewEncoder("c", []string{"a", "b", "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestTable(t *testing.T) {
	tbl, err := NewTable(map[string][]string{
		"fuel_type":    {"CNG", "Diesel", "Petrol"},
		"vehicle_type": {"Bike", "Bus", "Car", "SUV", "Truck"},
	})
	require.NoError(t, err)

	code, err := tbl.Encode("vehicle_type", "SUV")
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	_, err = tbl.Encode("engine_cc", "1000")
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

	assert.Equal(t, []string{"CNG", "Diesel", "Petrol"}, tbl.Classes()["fuel_type"])
}

func TestFitTable(t *testing.T) {
	tbl, err := FitTable(map[string][]string{
		"fuel_type": {"Petrol", "CNG", "Petrol", "Diesel"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"fuel_type": {"CNG", "Diesel", "Petrol"}}, tbl.Classes())

	_, err = FitTable(map[string][]string{"fuel_type": nil})
	assert.Error(t, err)
}
