// Package nominatim implements domain.Geocoder against an OpenStreetMap
// Nominatim server.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
)

const (
	// DefaultBaseURL is the public OSM Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	providerName   = "nominatim"
)

// Client calls the Nominatim /search endpoint. Nominatim's usage policy
// requires an identifying User-Agent.
type Client struct {
	baseURL     string
	userAgent   string
	countryCode string
	httpClient  *http.Client
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a Nominatim client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, userAgent, countryCode string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		userAgent:   userAgent,
		countryCode: countryCode,
		httpClient:  &http.Client{Timeout: timeout},
		metrics:     metrics,
		logger:      logger,
	}
}

// ForwardGeocode returns the best match for city.
func (c *Client) ForwardGeocode(ctx context.Context, city string) (domain.GeocodingResult, error) {
	start := time.Now()
	result, err := c.search(ctx, city)
	c.metrics.GeocodeAPIDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "success").Inc()
	case errors.Is(err, domain.ErrGeocodeNotFound):
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "not_found").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(providerName, "error").Inc()
		c.logger.Debug("nominatim geocode failed", "city", city, "error", err)
	}
	return result, err
}

func (c *Client) search(ctx context.Context, city string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":      {city},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if c.countryCode != "" {
		params.Set("countrycodes", c.countryCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim request: %v: %w", err, domain.ErrGeocodeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("nominatim API error: status %d: %s: %w", resp.StatusCode, body, domain.ErrGeocodeUnavailable)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %v: %w", err, domain.ErrGeocodeUnavailable)
	}
	if len(places) == 0 {
		return domain.GeocodingResult{}, domain.ErrGeocodeNotFound
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %v: %w", p.Lat, err, domain.ErrGeocodeUnavailable)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %v: %w", p.Lon, err, domain.ErrGeocodeUnavailable)
	}
	return domain.GeocodingResult{
		Lat:        lat,
		Lon:        lon,
		PlaceName:  p.DisplayName,
		Confidence: p.Importance,
	}, nil
}

// place is one element of the /search response. Coordinates are strings.
type place struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}
