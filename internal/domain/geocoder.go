package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat        float64
	Lon        float64
	PlaceName  string
	Confidence float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves a country name to a representative coordinate.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, country string) (GeocodingResult, error)
}
