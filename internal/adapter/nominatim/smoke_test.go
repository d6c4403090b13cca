//go:build nominatim

package nominatim

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the public Nominatim instance, which allows one request
// per second. Run with: go test -tags=nominatim ./internal/adapter/nominatim/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	t.Cleanup(func() { time.Sleep(time.Second) })
	return NewClient("", "carbon-emission-etl-smoke", "in", 10*time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ForwardGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ForwardGeocode(context.Background(), "Madurai")
	require.NoError(t, err)

	assert.InDelta(t, 9.93, result.Lat, 0.2, "lat should be near Madurai")
	assert.InDelta(t, 78.12, result.Lon, 0.2, "lon should be near Madurai")
	assert.Contains(t, result.PlaceName, "Madurai")
}

func TestSmoke_ForwardGeocode_Nonsense(t *testing.T) {
	c := smokeClient(t)

	_, err := c.ForwardGeocode(context.Background(), "XYZNONEXISTENT99")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
}
