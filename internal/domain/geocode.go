package domain

import (
	"context"
	"log/slog"
)

// HasCoordinates reports whether the event carries a usable position. The
// normalizer writes 0,0 for missing coordinates, so that pair means "unknown".
func (e OutbreakEvent) HasCoordinates() bool {
	return e.Lat != 0 || e.Lon != 0
}

// EnrichWithGeocoding fills in coordinates for events that have none by
// geocoding the country name. Events with coordinates, a nil geocoder, or a
// failed lookup are returned unchanged.
func EnrichWithGeocoding(ctx context.Context, event OutbreakEvent, geocoder Geocoder, logger *slog.Logger) OutbreakEvent {
	if geocoder == nil || event.HasCoordinates() || event.Country == "" {
		return event
	}

	result, err := geocoder.ForwardGeocode(ctx, event.Country)
	if err != nil {
		logger.Warn("country geocoding failed",
			"event_id", event.ID,
			"country", event.Country,
			"error", err,
		)
		return event
	}
	if result.Lat != 0 || result.Lon != 0 {
		event.Lat = result.Lat
		event.Lon = result.Lon
	}
	return event
}
