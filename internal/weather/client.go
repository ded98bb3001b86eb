// Package weather implements the live weather capability backed by
// OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the OpenWeatherMap API root.
const DefaultBaseURL = "https://api.openweathermap.org"

// ErrNoCity is returned when reverse geocoding finds nothing.
var ErrNoCity = errors.New("could not determine city from coordinates")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP Error: %d - %s", e.StatusCode, e.Body)
}

// Client talks to the three OpenWeatherMap endpoints the capability needs.
type Client struct {
	APIKey  string
	BaseURL string
	Doer    Doer
}

// NewClient creates a client with its own timeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		APIKey:  apiKey,
		BaseURL: DefaultBaseURL,
		Doer:    &http.Client{Timeout: timeout},
	}
}

type geoPlace struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// CurrentResponse is the /data/2.5/weather payload.
type CurrentResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// ForecastSample is one 3-hour forecast step.
type ForecastSample struct {
	Dt   int64 `json:"dt"`
	Main struct {
		TempMax float64 `json:"temp_max"`
		TempMin float64 `json:"temp_min"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Pop float64 `json:"pop"`
}

// ForecastResponse is the /data/2.5/forecast payload.
type ForecastResponse struct {
	List []ForecastSample `json:"list"`
}

// ReverseGeocode resolves coordinates to a city name.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon string) (string, error) {
	q := url.Values{}
	q.Set("lat", lat)
	q.Set("lon", lon)
	q.Set("limit", "1")
	var places []geoPlace
	if err := c.get(ctx, "/geo/1.0/reverse", q, &places); err != nil {
		return "", err
	}
	if len(places) == 0 || places[0].Name == "" {
		return "", ErrNoCity
	}
	return places[0].Name, nil
}

// Current fetches current conditions for city.
func (c *Client) Current(ctx context.Context, city string) (*CurrentResponse, error) {
	var out CurrentResponse
	if err := c.get(ctx, "/data/2.5/weather", cityQuery(city), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Forecast fetches the 5-day, 3-hour forecast for city.
func (c *Client) Forecast(ctx context.Context, city string) (*ForecastResponse, error) {
	var out ForecastResponse
	if err := c.get(ctx, "/data/2.5/forecast", cityQuery(city), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func cityQuery(city string) url.Values {
	q := url.Values{}
	q.Set("q", city)
	q.Set("units", "metric")
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	doer := c.Doer
	if doer == nil {
		doer = &http.Client{Timeout: 15 * time.Second}
	}
	q.Set("appid", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
