package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/cache"
	"github.com/rs/zerolog/log"
)

const (
	// CapabilityName is the tool name shown to the model.
	CapabilityName = "WeatherInfo"

	description  = "Useful for fetching current and future weather conditions for a specific location."
	argumentHint = "A location name (e.g. 'New Delhi') or a 'lat,lon' coordinate string (e.g. '19.0760,72.8777')."

	dateLayout = "2006-01-02"
)

// CurrentWeather is the current-conditions part of a report.
type CurrentWeather struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
}

// DailyForecast is one calendar day of the collapsed forecast.
type DailyForecast struct {
	Date    string  `json:"date"`
	TempMax float64 `json:"temp_max"`
	TempMin float64 `json:"temp_min"`
	Weather string  `json:"weather"`
	Pop     float64 `json:"pop"`
}

// Report is the cached weather payload.
type Report struct {
	CurrentWeather  CurrentWeather  `json:"current_weather"`
	FiveDayForecast []DailyForecast `json:"five_day_forecast"`
}

// HasDate reports whether the forecast covers date (YYYY-MM-DD).
func (r *Report) HasDate(date string) bool {
	for _, d := range r.FiveDayForecast {
		if d.Date == date {
			return true
		}
	}
	return false
}

// Lookup answers weather queries through a freshness-aware cache.
type Lookup struct {
	client *Client
	cache  *cache.DataCache
	loc    *time.Location
}

// LookupOption configures a Lookup.
type LookupOption func(*Lookup)

// WithLocation sets the zone used to bucket forecast samples into days and
// to decide what "today" is. Defaults to time.Local.
func WithLocation(loc *time.Location) LookupOption {
	return func(l *Lookup) {
		l.loc = loc
	}
}

// NewLookup creates a Lookup. The cache should be built with TodayFunc from
// this package so the has_today variable is populated.
func NewLookup(client *Client, dc *cache.DataCache, opts ...LookupOption) *Lookup {
	l := &Lookup{client: client, cache: dc, loc: time.Local}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TodayFunc returns the has_today hook for a weather DataCache.
func TodayFunc(loc *time.Location) cache.TodayFunc {
	if loc == nil {
		loc = time.Local
	}
	return func(payload json.RawMessage, now time.Time) bool {
		var r Report
		if err := json.Unmarshal(payload, &r); err != nil {
			return false
		}
		return r.HasDate(now.In(loc).Format(dateLayout))
	}
}

// Query returns the weather report for location as indented JSON, or one
// of the fixed error texts.
func (l *Lookup) Query(ctx context.Context, location string) string {
	location = strings.TrimSpace(location)
	payload, err := l.cache.GetOrFetch(ctx, location, func(ctx context.Context) (json.RawMessage, bool, error) {
		report, err := l.fetch(ctx, location)
		if err != nil {
			return nil, false, err
		}
		b, err := json.Marshal(report)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("location", location).Msg("weather lookup failed")
		return errorText(err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		return errorText(err)
	}
	return out.String()
}

func errorText(err error) string {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrNoCity):
		return "Error: Could not determine city from coordinates."
	case errors.As(err, &httpErr):
		return "Error: Could not retrieve weather data. " + httpErr.Error()
	default:
		return fmt.Sprintf("An unexpected error occurred: %v", err)
	}
}

func (l *Lookup) fetch(ctx context.Context, location string) (*Report, error) {
	city := location
	if lat, lon, ok := splitCoordinates(location); ok {
		name, err := l.client.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			return nil, err
		}
		city = name
	}

	current, err := l.client.Current(ctx, city)
	if err != nil {
		return nil, err
	}
	forecast, err := l.client.Forecast(ctx, city)
	if err != nil {
		return nil, err
	}

	report := &Report{
		CurrentWeather: CurrentWeather{
			City:        current.Name,
			Temperature: current.Main.Temp,
			FeelsLike:   current.Main.FeelsLike,
			Humidity:    current.Main.Humidity,
			WindSpeed:   current.Wind.Speed,
		},
		FiveDayForecast: collapse(forecast.List, l.loc),
	}
	if len(current.Weather) > 0 {
		report.CurrentWeather.Description = current.Weather[0].Description
	}
	return report, nil
}

// collapse folds 3-hourly samples into calendar days, keeping the order in
// which days first appear.
func collapse(samples []ForecastSample, loc *time.Location) []DailyForecast {
	days := make([]DailyForecast, 0, 6)
	index := make(map[string]int)
	for _, s := range samples {
		date := time.Unix(s.Dt, 0).In(loc).Format(dateLayout)
		i, seen := index[date]
		if !seen {
			d := DailyForecast{
				Date:    date,
				TempMax: s.Main.TempMax,
				TempMin: s.Main.TempMin,
				Pop:     s.Pop,
			}
			if len(s.Weather) > 0 {
				d.Weather = s.Weather[0].Description
			}
			index[date] = len(days)
			days = append(days, d)
			continue
		}
		if s.Main.TempMax > days[i].TempMax {
			days[i].TempMax = s.Main.TempMax
		}
		if s.Main.TempMin < days[i].TempMin {
			days[i].TempMin = s.Main.TempMin
		}
	}
	return days
}

// splitCoordinates recognises "lat,lon" where both halves are numbers.
func splitCoordinates(location string) (string, string, bool) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	lat, lon := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if _, err := strconv.ParseFloat(lat, 64); err != nil {
		return "", "", false
	}
	if _, err := strconv.ParseFloat(lon, 64); err != nil {
		return "", "", false
	}
	return lat, lon, true
}

// Capability exposes the lookup as the WeatherInfo capability.
func (l *Lookup) Capability(opts ...adapters.CapabilityOption) *adapters.FuncCapability {
	opts = append([]adapters.CapabilityOption{
		adapters.WithDescription(description),
		adapters.WithArgumentHint(argumentHint),
		adapters.WithValidator(adapters.NotEmpty),
	}, opts...)
	return adapters.NewCapability(CapabilityName, agrisage.KindWeather, func(ctx context.Context, argument string) (string, error) {
		return l.Query(ctx, argument), nil
	}, opts...)
}
