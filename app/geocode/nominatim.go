package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/hasici-feed/app/observability"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

var _ Geocoder = (*NominatimClient)(nil)

// NominatimClient implements Geocoder using the OpenStreetMap Nominatim
// search API. Its usage policy requires an identifying User-Agent.
type NominatimClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	metrics    *observability.Metrics
}

// NewNominatimClient creates a Nominatim client. metrics may be nil.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &NominatimClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
		metrics:    metrics,
	}
}

func (c *NominatimClient) Lookup(ctx context.Context, placeName, countryHint string) (*Result, error) {
	query := strings.TrimSpace(placeName)
	if query == "" {
		return nil, nil
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if countryHint != "" {
		params.Set("countrycodes", strings.ToLower(countryHint))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "cs,en;q=0.8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observeDuration(time.Since(start))
	if err != nil {
		c.observe("error")
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.observe("error")
		return nil, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		c.observe("error")
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(places) == 0 {
		c.observe("empty")
		return nil, nil
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		c.observe("error")
		return nil, fmt.Errorf("invalid coordinates %q,%q", places[0].Lat, places[0].Lon)
	}

	c.observe("success")
	return &Result{
		Lat:         lat,
		Lon:         lon,
		DisplayName: places[0].DisplayName,
		Provider:    ProviderNominatim,
	}, nil
}

func (c *NominatimClient) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
}

func (c *NominatimClient) observeDuration(d time.Duration) {
	if c.metrics != nil {
		c.metrics.GeocodeAPIDuration.Observe(d.Seconds())
	}
}

// Nominatim jsonv2 response, coordinates are strings.

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
