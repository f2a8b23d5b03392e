package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/hasici-feed/app/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func TestNominatimClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Kutná Hora", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "cz", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "hasici-feed/test (ops@example.cz)", r.UserAgent())
		assert.Equal(t, "cs,en;q=0.8", r.Header.Get("Accept-Language"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[{"lat":"49.9484","lon":"15.2682","display_name":"Kutná Hora, Středočeský kraj, Česko"}]`))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := NewNominatimClient(srv.URL, "hasici-feed/test (ops@example.cz)", 5*time.Second, metrics)

	result, err := c.Lookup(context.Background(), "Kutná Hora", "CZ")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 49.9484, result.Lat, 0.00001)
	assert.InDelta(t, 15.2682, result.Lon, 0.00001)
	assert.Equal(t, ProviderNominatim, result.Provider)
	assert.Contains(t, result.DisplayName, "Kutná Hora")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("success")), 0)
}

func TestNominatimClient_Lookup_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := NewNominatimClient(srv.URL, "ua", 5*time.Second, metrics)

	result, err := c.Lookup(context.Background(), "Neexistující Ves", "cz")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("empty")), 0)
}

func TestNominatimClient_Lookup_BlankName(t *testing.T) {
	c := NewNominatimClient("http://127.0.0.1:0", "ua", time.Second, nil)

	result, err := c.Lookup(context.Background(), "   ", "cz")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestNominatimClient_Lookup_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewNominatimClient(srv.URL, "ua", 5*time.Second, nil)

	_, err := c.Lookup(context.Background(), "Kolín", "cz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNominatimClient_Lookup_InvalidCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"north","lon":"15.0"}]`))
	}))
	defer srv.Close()

	c := NewNominatimClient(srv.URL, "ua", 5*time.Second, nil)

	_, err := c.Lookup(context.Background(), "Kolín", "cz")
	require.Error(t, err)
}

func TestConfidence(t *testing.T) {
	assert.Greater(t, Confidence(ProviderManual), Confidence(ProviderNominatim))
	assert.Greater(t, Confidence(ProviderNominatim), Confidence("other"))
}
