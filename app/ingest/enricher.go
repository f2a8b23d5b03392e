package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/geocode"
)

const (
	DefaultGeocodeLimit = 5
	DefaultGeocodeDelay = 1100 * time.Millisecond
)

// Enricher geocodes places that still lack coordinates. Lookups are capped
// per run and spaced by at least the configured delay.
type Enricher struct {
	places      database.PlaceRepository
	geocoder    geocode.Geocoder
	limiter     *rate.Limiter
	limit       int
	countryHint string
	clock       clockwork.Clock
}

// NewEnricher builds an enricher. A non-positive limit falls back to
// DefaultGeocodeLimit and a zero delay disables spacing.
func NewEnricher(places database.PlaceRepository, geocoder geocode.Geocoder, limit int, delay time.Duration, countryHint string, clock clockwork.Clock) *Enricher {
	if limit <= 0 {
		limit = DefaultGeocodeLimit
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	return &Enricher{
		places:      places,
		geocoder:    geocoder,
		limiter:     limiter,
		limit:       limit,
		countryHint: countryHint,
		clock:       clock,
	}
}

// Run returns the number of places that received coordinates. Failures are
// logged and leave the place pending for a later run.
func (e *Enricher) Run(ctx context.Context) int {
	keys, err := e.places.ListMissingCoordinates(ctx, e.limit)
	if err != nil {
		slog.Warn("Failed to list places for geocoding", "error", err)
		return 0
	}

	geocoded := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}

		existing, err := e.places.GetPlace(ctx, key)
		if err != nil {
			slog.Warn("Failed to load place", "place", key.Place, "district", key.District, "error", err)
			continue
		}
		if existing.HasCoordinates() {
			continue
		}

		if err := e.wait(ctx); err != nil {
			break
		}

		if e.lookup(ctx, key) {
			geocoded++
		}
	}

	if len(keys) > 0 {
		slog.Debug("Geocoding finished", "candidates", len(keys), "geocoded", geocoded)
	}

	return geocoded
}

// wait blocks until the limiter admits the next lookup. Reservations are
// taken against the enricher's clock so the spacing follows it.
func (e *Enricher) wait(ctx context.Context) error {
	now := e.clock.Now()
	reservation := e.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-e.clock.After(delay):
		return nil
	case <-ctx.Done():
		reservation.CancelAt(e.clock.Now())
		return ctx.Err()
	}
}

func (e *Enricher) lookup(ctx context.Context, key database.PlaceKey) bool {
	now := e.clock.Now().UTC()
	if err := e.places.MarkAttempted(ctx, key, now); err != nil {
		slog.Warn("Failed to mark geocode attempt", "place", key.Place, "error", err)
	}

	result, err := e.geocoder.Lookup(ctx, Query(key), e.countryHint)
	if err != nil {
		slog.Warn("Geocoding failed", "place", key.Place, "district", key.District, "error", err)
		return false
	}
	if result == nil {
		slog.Debug("Place not found", "place", key.Place, "district", key.District)
		return false
	}

	lat, lon := result.Lat, result.Lon
	written, err := e.places.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey:    key,
		Lat:         &lat,
		Lon:         &lon,
		Provider:    result.Provider,
		Confidence:  geocode.Confidence(result.Provider),
		AttemptedAt: &now,
		UpdatedAt:   now,
	})
	if err != nil {
		slog.Warn("Failed to store coordinates", "place", key.Place, "error", err)
		return false
	}

	return written
}

// Query builds the geocoder search text for a place.
func Query(key database.PlaceKey) string {
	if key.District == "" || key.District == key.Place {
		return key.Place
	}
	return key.Place + ", " + key.District
}
