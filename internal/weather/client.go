// Package weather fetches current conditions and a short forecast for a
// complaint address. Failures never propagate; they produce an unavailable
// record instead.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/pkg/logger"
)

const (
	DefaultBaseURL  = "https://api.weatherapi.com/v1"
	MaxForecastDays = 10
)

// Provider returns weather context for an address.
type Provider interface {
	Fetch(ctx context.Context, address string) complaint.WeatherContext
}

type Config struct {
	BaseURL string
	APIKey  string
	Days    int
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	days       int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Days <= 0 || cfg.Days > MaxForecastDays {
		cfg.Days = MaxForecastDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		days:       cfg.Days,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Fetch(ctx context.Context, address string) complaint.WeatherContext {
	if c.apiKey == "" {
		return complaint.WeatherUnavailable("weather api key not configured")
	}
	if strings.TrimSpace(address) == "" {
		return complaint.WeatherUnavailable("address is empty")
	}

	wc, err := c.fetch(ctx, address)
	if err != nil {
		logger.Warn("Weather fetch failed", zap.String("address", address), zap.Error(err))
		return complaint.WeatherUnavailable(err.Error())
	}

	logger.Info("Weather fetched",
		zap.String("location", wc.Location),
		zap.Int("forecast_days", len(wc.Forecast)),
	)
	return wc
}

type forecastResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		Humidity  float64 `json:"humidity"`
		WindKPH   float64 `json:"wind_kph"`
		PrecipMM  float64 `json:"precip_mm"`
		Cloud     float64 `json:"cloud"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC      float64 `json:"maxtemp_c"`
				MinTempC      float64 `json:"mintemp_c"`
				TotalPrecipMM float64 `json:"totalprecip_mm"`
				AvgHumidity   float64 `json:"avghumidity"`
				MaxWindKPH    float64 `json:"maxwind_kph"`
				Condition     struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (c *Client) fetch(ctx context.Context, address string) (complaint.WeatherContext, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", address)
	params.Set("days", strconv.Itoa(c.days))
	params.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/forecast.json?%s", c.baseURL, params.Encode()), nil)
	if err != nil {
		return complaint.WeatherContext{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return complaint.WeatherContext{}, fmt.Errorf("failed to call weather api: %w", stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return complaint.WeatherContext{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return complaint.WeatherContext{}, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return complaint.WeatherContext{}, fmt.Errorf("failed to parse response: %w", err)
	}

	forecast := make([]complaint.ForecastDay, 0, len(payload.Forecast.ForecastDay))
	for _, fd := range payload.Forecast.ForecastDay {
		forecast = append(forecast, complaint.ForecastDay{
			Date:       fd.Date,
			MaxTempC:   fd.Day.MaxTempC,
			MinTempC:   fd.Day.MinTempC,
			Condition:  fd.Day.Condition.Text,
			RainMM:     fd.Day.TotalPrecipMM,
			Humidity:   fd.Day.AvgHumidity,
			MaxWindKPH: fd.Day.MaxWindKPH,
		})
	}
	// ISO dates sort lexically.
	sort.SliceStable(forecast, func(i, j int) bool { return forecast[i].Date < forecast[j].Date })
	if len(forecast) > MaxForecastDays {
		forecast = forecast[:MaxForecastDays]
	}

	return complaint.WeatherContext{
		Available: true,
		Current: &complaint.CurrentWeather{
			Condition: payload.Current.Condition.Text,
			TempC:     payload.Current.TempC,
			Humidity:  payload.Current.Humidity,
			WindKPH:   payload.Current.WindKPH,
			PrecipMM:  payload.Current.PrecipMM,
			Cloud:     payload.Current.Cloud,
		},
		Forecast: forecast,
		Location: joinLocation(payload.Location.Name, payload.Location.Region, payload.Location.Country),
	}, nil
}

func joinLocation(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// stripURL drops the request URL from transport errors. The query string
// carries the API key.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
