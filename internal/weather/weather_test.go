package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfix/backend/internal/complaint"
)

const forecastPayload = `{
  "location": {"name": "Mumbai", "region": "Maharashtra", "country": "India"},
  "current": {"temp_c": 29.5, "humidity": 84, "wind_kph": 14.4, "precip_mm": 3.1, "cloud": 75, "condition": {"text": "Moderate rain"}},
  "forecast": {"forecastday": [
    {"date": "2026-07-03", "day": {"maxtemp_c": 30, "mintemp_c": 25, "totalprecip_mm": 22.5, "avghumidity": 90, "maxwind_kph": 20, "condition": {"text": "Heavy rain"}}},
    {"date": "2026-07-01", "day": {"maxtemp_c": 31, "mintemp_c": 26, "totalprecip_mm": 6.0, "avghumidity": 85, "maxwind_kph": 18, "condition": {"text": "Patchy rain"}}},
    {"date": "2026-07-02", "day": {"maxtemp_c": 32, "mintemp_c": 26, "totalprecip_mm": 0, "avghumidity": 70, "maxwind_kph": 12, "condition": {"text": "Sunny"}}}
  ]}
}`

func TestFetchParsesForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "Mumbai, Maharashtra", q.Get("q"))
		assert.Equal(t, "10", q.Get("days"))
		assert.Equal(t, "no", q.Get("aqi"))
		_, _ = w.Write([]byte(forecastPayload))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	wc := c.Fetch(context.Background(), "Mumbai, Maharashtra")

	require.True(t, wc.Available)
	assert.Equal(t, "Mumbai, Maharashtra, India", wc.Location)
	require.NotNil(t, wc.Current)
	assert.Equal(t, "Moderate rain", wc.Current.Condition)
	assert.Equal(t, 29.5, wc.Current.TempC)

	require.Len(t, wc.Forecast, 3)
	assert.Equal(t, "2026-07-01", wc.Forecast[0].Date)
	assert.Equal(t, "2026-07-02", wc.Forecast[1].Date)
	assert.Equal(t, "2026-07-03", wc.Forecast[2].Date)
	assert.Equal(t, 22.5, wc.Forecast[2].RainMM)
}

func TestFetchMissingForecastDayYieldsEmptyForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"location": {"name": "Pune"}, "current": {"temp_c": 24, "condition": {"text": "Clear"}}}`))
	}))
	defer srv.Close()

	wc := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).Fetch(context.Background(), "Pune")

	assert.True(t, wc.Available)
	assert.Empty(t, wc.Forecast)
	assert.Equal(t, "Pune", wc.Location)
}

func TestFetchUnavailable(t *testing.T) {
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer errSrv.Close()

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer badSrv.Close()

	tests := []struct {
		name    string
		cfg     Config
		address string
		message string
	}{
		{"no api key", Config{BaseURL: errSrv.URL}, "Mumbai", "not configured"},
		{"http error", Config{BaseURL: errSrv.URL, APIKey: "k"}, "Mumbai", "401"},
		{"malformed payload", Config{BaseURL: badSrv.URL, APIKey: "k"}, "Mumbai", "parse"},
		{"empty address", Config{BaseURL: badSrv.URL, APIKey: "k"}, "  ", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc := NewClient(tt.cfg).Fetch(context.Background(), tt.address)
			assert.False(t, wc.Available)
			assert.Contains(t, wc.Message, tt.message)
			assert.Nil(t, wc.Current)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(forecastPayload))
	}))
	defer srv.Close()

	wc := NewClient(Config{BaseURL: srv.URL, APIKey: "secret-key-123", Timeout: 20 * time.Millisecond}).Fetch(context.Background(), "Mumbai")
	assert.False(t, wc.Available)
	assert.Contains(t, wc.Message, "failed to call weather api")
	assert.NotContains(t, wc.Message, "secret-key-123")
	assert.NotContains(t, wc.Message, "forecast.json")
}

func TestFetchConnectionErrorOmitsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	wc := NewClient(Config{BaseURL: addr, APIKey: "secret-key-123", Timeout: time.Second}).Fetch(context.Background(), "Pune")
	assert.False(t, wc.Available)
	assert.NotContains(t, wc.Message, "secret-key-123")
}

type memoryCache struct {
	items  map[string]complaint.WeatherContext
	getErr error
	sets   int
}

func (m *memoryCache) GetWeather(_ context.Context, key string) (complaint.WeatherContext, bool, error) {
	if m.getErr != nil {
		return complaint.WeatherContext{}, false, m.getErr
	}
	wc, ok := m.items[key]
	return wc, ok, nil
}

func (m *memoryCache) SetWeather(_ context.Context, key string, wc complaint.WeatherContext, _ time.Duration) error {
	m.sets++
	m.items[key] = wc
	return nil
}

type countingProvider struct {
	calls atomic.Int32
	wc    complaint.WeatherContext
}

func (p *countingProvider) Fetch(context.Context, string) complaint.WeatherContext {
	p.calls.Add(1)
	return p.wc
}

func TestCachedProviderServesRepeatAddresses(t *testing.T) {
	next := &countingProvider{wc: complaint.WeatherContext{Available: true, Location: "Mumbai"}}
	cache := &memoryCache{items: map[string]complaint.WeatherContext{}}
	p := NewCachedProvider(next, cache, time.Minute)

	first := p.Fetch(context.Background(), "Mumbai, Maharashtra")
	second := p.Fetch(context.Background(), "  mumbai,   MAHARASHTRA ")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, 1, cache.sets)
}

func TestCachedProviderSkipsUnavailable(t *testing.T) {
	next := &countingProvider{wc: complaint.WeatherUnavailable("weather api key not configured")}
	cache := &memoryCache{items: map[string]complaint.WeatherContext{}}
	p := NewCachedProvider(next, cache, time.Minute)

	p.Fetch(context.Background(), "Pune")
	p.Fetch(context.Background(), "Pune")

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Zero(t, cache.sets)
}

func TestCachedProviderFallsThroughOnCacheError(t *testing.T) {
	next := &countingProvider{wc: complaint.WeatherContext{Available: true}}
	cache := &memoryCache{items: map[string]complaint.WeatherContext{}, getErr: errors.New("connection refused")}

	wc := NewCachedProvider(next, cache, 0).Fetch(context.Background(), "Pune")
	assert.True(t, wc.Available)
	assert.Equal(t, int32(1), next.calls.Load())
}
