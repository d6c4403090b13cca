// Package geotable resolves cities from a static CSV table (city,lat,lon).
// It lets the service geocode without network access.
package geotable

import (
	"context"
	"fmt"
	"strconv"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

// Table is an in-memory city lookup keyed by normalized name.
type Table struct {
	entries map[string]domain.GeocodingResult
}

// Load reads a city table from path.
func Load(path string) (*Table, error) {
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load city table: %w", err)
	}
	return FromTable(t)
}

// FromTable builds a lookup from a table with city, lat and lon columns.
func FromTable(t domain.Table) (*Table, error) {
	cityIdx, ok1 := t.ColumnIndex("city")
	latIdx, ok2 := t.ColumnIndex("lat")
	lonIdx, ok3 := t.ColumnIndex("lon")
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("city table needs city, lat and lon columns, got %v", t.Header)
	}

	entries := make(map[string]domain.GeocodingResult, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return nil, fmt.Errorf("city table line %d: expected %d cells, got %d", i+2, len(t.Header), len(row))
		}
		lat, err := strconv.ParseFloat(row[latIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("city table line %d: lat: %w", i+2, err)
		}
		lon, err := strconv.ParseFloat(row[lonIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("city table line %d: lon: %w", i+2, err)
		}
		entries[domain.NormalizeCity(row[cityIdx])] = domain.GeocodingResult{
			Lat:        lat,
			Lon:        lon,
			PlaceName:  row[cityIdx],
			Confidence: 1,
		}
	}
	return &Table{entries: entries}, nil
}

// Cities returns the display names of every city in the table.
func (t *Table) Cities() []string {
	out := make([]string, 0, len(t.entries))
	for _, r := range t.entries {
		out = append(out, r.PlaceName)
	}
	return out
}

// ForwardGeocode looks the city up by normalized name.
func (t *Table) ForwardGeocode(_ context.Context, city string) (domain.GeocodingResult, error) {
	r, ok := t.entries[domain.NormalizeCity(city)]
	if !ok {
		return domain.GeocodingResult{}, domain.ErrGeocodeNotFound
	}
	return r, nil
}
