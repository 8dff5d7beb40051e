// Package weather fetches current conditions for the feature collector.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zeebo/errs"

	"parktronic/internal/domain"
)

var Error = errs.Class("weather")

// Provider returns the current weather at a coordinate pair (lat, lon).
type Provider interface {
	Current(ctx context.Context, at domain.Point) (domain.WeatherFeatures, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Units   string
	Lang    string
	Timeout time.Duration
}

// OpenWeatherMap queries the /data/2.5/weather endpoint.
type OpenWeatherMap struct {
	cfg    Config
	client *http.Client
}

func NewOpenWeatherMap(cfg Config) *OpenWeatherMap {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OpenWeatherMap{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type currentResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (o *OpenWeatherMap) Current(ctx context.Context, at domain.Point) (domain.WeatherFeatures, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at[0], 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at[1], 'f', -1, 64))
	q.Set("units", o.cfg.Units)
	q.Set("lang", o.cfg.Lang)
	q.Set("appid", o.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return domain.WeatherFeatures{}, Error.Wrap(err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return domain.WeatherFeatures{}, Error.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.WeatherFeatures{}, Error.New("unexpected status %d", resp.StatusCode)
	}

	var body currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.WeatherFeatures{}, Error.New("decode response: %v", err)
	}
	if len(body.Weather) == 0 {
		return domain.WeatherFeatures{}, Error.New("response has no weather condition")
	}
	return domain.WeatherFeatures{
		Weather:     body.Weather[0].Main,
		Temperature: int(math.RoundToEven(body.Main.Temp)),
		Wind:        body.Wind.Speed,
	}, nil
}

// String hides the API key when the provider is logged.
func (o *OpenWeatherMap) String() string {
	return fmt.Sprintf("openweathermap(%s, units=%s)", o.cfg.BaseURL, o.cfg.Units)
}
