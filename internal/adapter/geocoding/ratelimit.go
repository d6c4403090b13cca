package geocoding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// RateLimitedGeocoder spaces provider requests to at most perSecond per
// second. Public Nominatim allows one request per second.
type RateLimitedGeocoder struct {
	inner   domain.Geocoder
	limiter *rate.Limiter
}

// NewRateLimitedGeocoder wraps inner. A non-positive perSecond disables limiting.
func NewRateLimitedGeocoder(inner domain.Geocoder, perSecond float64) *RateLimitedGeocoder {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimitedGeocoder{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (r *RateLimitedGeocoder) ForwardGeocode(ctx context.Context, city string) (domain.GeocodingResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("rate limit wait: %v: %w", err, domain.ErrGeocodeUnavailable)
	}
	return r.inner.ForwardGeocode(ctx, city)
}
