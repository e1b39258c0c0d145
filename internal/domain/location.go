package domain

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// coordinatesRe matches "lat,lon" pairs such as "39.76, -121.62".
var coordinatesRe = regexp.MustCompile(`^\s*(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*$`)

// ResolveLocation normalizes the location a caller attached to an analysis.
// Coordinates are reverse geocoded and place names forward geocoded into the
// provider's formatted address. A nil geocoder, a failed lookup, or an empty
// answer all fall back to the trimmed input (graceful degradation).
func ResolveLocation(ctx context.Context, location string, geocoder Geocoder, logger *slog.Logger) string {
	location = strings.TrimSpace(location)
	if location == "" || geocoder == nil {
		return location
	}

	if lat, lon, ok := parseCoordinates(location); ok {
		result, err := geocoder.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			logger.Warn("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
			return location
		}
		if result.FormattedAddress != "" {
			return result.FormattedAddress
		}
		return location
	}

	result, err := geocoder.ForwardGeocode(ctx, location)
	if err != nil {
		logger.Warn("forward geocoding failed", "location", location, "error", err)
		return location
	}
	if result.FormattedAddress != "" {
		return result.FormattedAddress
	}
	return location
}

func parseCoordinates(s string) (lat, lon float64, ok bool) {
	m := coordinatesRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(m[1], 64)
	lon, errLon := strconv.ParseFloat(m[2], 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
