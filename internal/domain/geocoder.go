package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	PlaceName  string  `json:"place_name,omitempty"`
	Confidence float64 `json:"confidence,omitempty"` // 0.0 to 1.0 provider confidence score
}

// Geocoder resolves city names to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a city name to coordinates. It returns
	// ErrGeocodeNotFound when the provider has no match and an error wrapping
	// ErrGeocodeUnavailable when the provider cannot answer.
	ForwardGeocode(ctx context.Context, city string) (GeocodingResult, error)
}
