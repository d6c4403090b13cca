package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	mu      sync.Mutex
	results map[string]GeocodingResult
	errs    map[string]error
	calls   map[string]int
}

func newMockGeocoder() *mockGeocoder {
	return &mockGeocoder{
		results: map[string]GeocodingResult{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, city string) (GeocodingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[city]++
	if err, ok := m.errs[city]; ok {
		return GeocodingResult{}, err
	}
	if res, ok := m.results[city]; ok {
		return res, nil
	}
	return GeocodingResult{}, ErrGeocodeNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestResolveCities_NilGeocoder(t *testing.T) {
	coords, failures, err := ResolveCities(context.Background(), nil, []string{"Chennai", "Madurai"}, 4, discardLogger())
	require.NoError(t, err)

	assert.Empty(t, failures)
	assert.Equal(t, MissingCoordinate, coords["Chennai"])
	assert.Equal(t, MissingCoordinate, coords["Madurai"])
}

func TestResolveCities_ResolvesEachDistinctCityOnce(t *testing.T) {
	geo := newMockGeocoder()
	geo.results["Chennai"] = GeocodingResult{Lat: 13.0827, Lon: 80.2707}
	geo.results["Madurai"] = GeocodingResult{Lat: 9.9252, Lon: 78.1198}

	cities := []string{"Chennai", "Madurai", "Chennai", " Chennai ", "Madurai"}
	coords, failures, err := ResolveCities(context.Background(), geo, cities, 2, discardLogger())
	require.NoError(t, err)

	assert.Empty(t, failures)
	assert.Equal(t, Geocoordinate{Lat: 13.0827, Lon: 80.2707, Valid: true}, coords["Chennai"])
	assert.Equal(t, Geocoordinate{Lat: 9.9252, Lon: 78.1198, Valid: true}, coords["Madurai"])
	assert.Equal(t, 1, geo.calls["Chennai"])
	assert.Equal(t, 1, geo.calls["Madurai"])
}

func TestResolveCities_FailureDegradesSingleCity(t *testing.T) {
	geo := newMockGeocoder()
	geo.results["Chennai"] = GeocodingResult{Lat: 13.0827, Lon: 80.2707}
	geo.errs["Atlantis"] = fmt.Errorf("status 503: %w", ErrGeocodeUnavailable)

	coords, failures, err := ResolveCities(context.Background(), geo, []string{"Chennai", "Atlantis"}, 2, discardLogger())
	require.NoError(t, err)

	assert.True(t, coords["Chennai"].Valid)
	assert.Equal(t, MissingCoordinate, coords["Atlantis"])
	require.Len(t, failures, 1)
	assert.Equal(t, "Atlantis", failures[0].City)
	assert.ErrorIs(t, failures[0].Err, ErrGeocodeUnavailable)
}

func TestResolveCities_ZeroResultIsNotFound(t *testing.T) {
	geo := newMockGeocoder()
	geo.results["Nowhere"] = GeocodingResult{} // provider answered with no coordinates

	coords, failures, err := ResolveCities(context.Background(), geo, []string{"Nowhere"}, 1, discardLogger())
	require.NoError(t, err)

	assert.False(t, coords["Nowhere"].Valid)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, ErrGeocodeNotFound)
}

func TestResolveCities_BlankCitySkipsProvider(t *testing.T) {
	geo := newMockGeocoder()

	coords, failures, err := ResolveCities(context.Background(), geo, []string{"", "  "}, 1, discardLogger())
	require.NoError(t, err)

	assert.False(t, coords[""].Valid)
	require.Len(t, failures, 1)
	assert.Empty(t, geo.calls)
}

func TestResolveCities_FailuresSortedByCity(t *testing.T) {
	geo := newMockGeocoder()
	cities := []string{"Zeta", "Alpha", "Mid"}

	_, failures, err := ResolveCities(context.Background(), geo, cities, 3, discardLogger())
	require.NoError(t, err)

	require.Len(t, failures, 3)
	assert.Equal(t, "Alpha", failures[0].City)
	assert.Equal(t, "Mid", failures[1].City)
	assert.Equal(t, "Zeta", failures[2].City)
}

type slowGeocoder struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowGeocoder) ForwardGeocode(ctx context.Context, _ string) (GeocodingResult, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return GeocodingResult{}, ctx.Err()
	}
	return GeocodingResult{Lat: 1, Lon: 1}, nil
}

func TestResolveCities_RespectsConcurrencyLimit(t *testing.T) {
	geo := &slowGeocoder{}
	cities := make([]string, 12)
	for i := range cities {
		cities[i] = fmt.Sprintf("city-%02d", i)
	}

	_, failures, err := ResolveCities(context.Background(), geo, cities, 3, discardLogger())
	require.NoError(t, err)

	assert.Empty(t, failures)
	assert.LessOrEqual(t, geo.peak.Load(), int32(3))
}

func TestResolveCities_CancelledContext(t *testing.T) {
	geo := &slowGeocoder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ResolveCities(ctx, geo, []string{"a", "b"}, 1, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "new delhi", NormalizeCity("  New   Delhi "))
	assert.Equal(t, "chennai", NormalizeCity("CHENNAI"))
}
