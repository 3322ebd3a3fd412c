// Package weather computes the rain risk attached to new bookings from the
// Open-Meteo geocoding and forecast APIs.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrCityNotFound = errors.New("city not found in geocoding")
	ErrNoForecast   = errors.New("no forecast for date")
)

// rainProbabilityThreshold is the daily max precipitation probability (%)
// at or above which a booking is flagged.
const rainProbabilityThreshold = 50

type Risk struct {
	RainAlert       bool    `json:"rainAlert"`
	Summary         string  `json:"summary"`
	Probability     float64 `json:"probability"`
	PrecipitationMM float64 `json:"precipitationMm"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
}

// RainRiskFinder is implemented by Client and CachedClient.
type RainRiskFinder interface {
	RainRisk(ctx context.Context, city, state, date string) (Risk, error)
}

type Config struct {
	GeocodingURL string
	ForecastURL  string
	Timezone     string
	Timeout      time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Sao_Paulo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type geoResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Admin1    string  `json:"admin1"`
}

type geoResponse struct {
	Results []geoResult `json:"results"`
}

type forecastResponse struct {
	Daily struct {
		Time                        []string   `json:"time"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		PrecipitationSum            []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// RainRisk makes one attempt at each upstream call; callers bound it with ctx.
func (c *Client) RainRisk(ctx context.Context, city, state, date string) (Risk, error) {
	place, err := c.geocode(ctx, city, state)
	if err != nil {
		return Risk{}, err
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', -1, 64))
	q.Set("daily", "precipitation_probability_max,precipitation_sum")
	q.Set("timezone", c.cfg.Timezone)
	q.Set("start_date", date)
	q.Set("end_date", date)

	var fc forecastResponse
	if err := c.getJSON(ctx, c.cfg.ForecastURL, q, &fc); err != nil {
		return Risk{}, fmt.Errorf("forecast: %w", err)
	}
	if len(fc.Daily.Time) == 0 {
		return Risk{}, ErrNoForecast
	}

	prob := first(fc.Daily.PrecipitationProbabilityMax)
	sum := first(fc.Daily.PrecipitationSum)

	return Risk{
		RainAlert:       prob >= rainProbabilityThreshold || sum > 0,
		Summary:         Summary(prob, sum),
		Probability:     prob,
		PrecipitationMM: sum,
		Latitude:        place.Latitude,
		Longitude:       place.Longitude,
	}, nil
}

// Summary renders the human readable annotation stored on the booking.
func Summary(probability, precipitationMM float64) string {
	return fmt.Sprintf("Rain chance: %s%% | Expected precipitation: %s mm",
		strconv.FormatFloat(probability, 'f', -1, 64),
		strconv.FormatFloat(precipitationMM, 'f', -1, 64))
}

func (c *Client) geocode(ctx context.Context, city, state string) (geoResult, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "5")
	q.Set("language", "pt")
	q.Set("format", "json")

	var geo geoResponse
	if err := c.getJSON(ctx, c.cfg.GeocodingURL, q, &geo); err != nil {
		return geoResult{}, fmt.Errorf("geocoding: %w", err)
	}
	if len(geo.Results) == 0 {
		return geoResult{}, ErrCityNotFound
	}

	if state = strings.ToLower(strings.TrimSpace(state)); state != "" {
		for _, r := range geo.Results {
			if strings.Contains(strings.ToLower(r.Admin1), state) {
				return r, nil
			}
		}
	}
	return geo.Results[0], nil
}

func (c *Client) getJSON(ctx context.Context, base string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func first(vals []*float64) float64 {
	if len(vals) == 0 || vals[0] == nil {
		return 0
	}
	return *vals[0]
}
