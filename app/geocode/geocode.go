// Package geocode resolves place names to coordinates.
package geocode

import "context"

const (
	ProviderManual    = "manual"
	ProviderNominatim = "nominatim"
)

// Result is a single resolved location.
type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Provider    string
}

// Geocoder looks up a place name, restricted to a country when countryHint is
// set. A nil result with a nil error means the place was not found.
type Geocoder interface {
	Lookup(ctx context.Context, placeName, countryHint string) (*Result, error)
}

// Confidence ranks providers. Coordinates from a higher-ranked provider are
// never replaced by a lower-ranked one.
func Confidence(provider string) int {
	switch provider {
	case ProviderManual:
		return 100
	case ProviderNominatim:
		return 50
	default:
		return 10
	}
}
