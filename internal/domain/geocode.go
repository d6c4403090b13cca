package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// GeocodeFailure records a city that resolved to the missing-coordinate marker.
type GeocodeFailure struct {
	City string
	Err  error
}

// NormalizeCity is the cache and lookup key for a city name.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}

// ResolveCities geocodes every distinct city once, running at most limit
// lookups at a time. Cities that fail to resolve map to MissingCoordinate and
// are reported in the failure list (sorted by city) instead of aborting the batch.
// Only cancellation of ctx returns an error.
//
// A nil geocoder disables geocoding: every city maps to MissingCoordinate and
// no failures are reported.
func ResolveCities(ctx context.Context, geocoder Geocoder, cities []string, limit int, logger *slog.Logger) (map[string]Geocoordinate, []GeocodeFailure, error) {
	distinct := distinctCities(cities)
	coords := make(map[string]Geocoordinate, len(distinct))

	if geocoder == nil {
		for _, c := range distinct {
			coords[c] = MissingCoordinate
		}
		return coords, nil, nil
	}
	if limit < 1 {
		limit = 1
	}

	results := make([]Geocoordinate, len(distinct))
	errs := make([]error, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, city := range distinct {
		if city == "" {
			errs[i] = fmt.Errorf("blank city: %w", ErrGeocodeNotFound)
			continue
		}
		g.Go(func() error {
			res, err := geocoder.ForwardGeocode(gctx, city)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = err
				return nil
			}
			if res.Lat == 0 && res.Lon == 0 {
				errs[i] = ErrGeocodeNotFound
				return nil
			}
			results[i] = Geocoordinate{Lat: res.Lat, Lon: res.Lon, Valid: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("resolve cities: %w", err)
	}

	var failures []GeocodeFailure
	for i, city := range distinct {
		if errs[i] != nil {
			coords[city] = MissingCoordinate
			failures = append(failures, GeocodeFailure{City: city, Err: errs[i]})
			level := slog.LevelWarn
			if errors.Is(errs[i], ErrGeocodeNotFound) {
				level = slog.LevelInfo
			}
			logger.Log(ctx, level, "geocoding failed, using missing coordinate",
				"city", city,
				"error", errs[i],
			)
			continue
		}
		coords[city] = results[i]
	}
	return coords, failures, nil
}

func distinctCities(cities []string) []string {
	set := make(map[string]struct{}, len(cities))
	for _, c := range cities {
		set[strings.TrimSpace(c)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
