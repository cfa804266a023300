package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// weatherArgs is the argument shape shared by the live and fake
// weather tools.
type weatherArgs struct {
	Location string `json:"location"`
	Unit     string `json:"unit,omitempty"`
}

func (a *weatherArgs) validate() error {
	if strings.TrimSpace(a.Location) == "" {
		return fmt.Errorf("location is required")
	}
	switch a.Unit {
	case "", "celsius", "fahrenheit":
		return nil
	default:
		return fmt.Errorf("unit must be celsius or fahrenheit, got %q", a.Unit)
	}
}

// weatherReport is the output payload returned to the model.
type weatherReport struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit"`
	Conditions  string  `json:"conditions"`
	Humidity    int     `json:"humidity,omitempty"`
	WindSpeed   float64 `json:"wind_speed,omitempty"`
}

func celsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }

// WeatherTool fetches current conditions from the OpenWeatherMap API.
type WeatherTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeatherTool creates a live weather tool. baseURL is overridable for
// tests; empty means the public OpenWeatherMap endpoint.
func NewWeatherTool(apiKey, baseURL string) *WeatherTool {
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org"
	}
	return &WeatherTool{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *WeatherTool) Name() string { return "get_current_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a location. Use this whenever the user asks about weather conditions."
}

func (t *WeatherTool) Parameters() map[string]Param {
	return map[string]Param{
		"location": {
			Type:        "string",
			Description: "City name, e.g. Tokyo or San Francisco",
		},
		"unit": {
			Type:        "string",
			Description: "Temperature unit",
			Enum:        []string{"celsius", "fahrenheit"},
			Optional:    true,
		},
	}
}

type owmResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (t *WeatherTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args weatherArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if err := args.validate(); err != nil {
		return "", err
	}

	units := "metric"
	unit := args.Unit
	if unit == "" {
		unit = "celsius"
	}
	if unit == "fahrenheit" {
		units = "imperial"
	}

	q := url.Values{}
	q.Set("q", args.Location)
	q.Set("appid", t.apiKey)
	q.Set("units", units)
	endpoint := fmt.Sprintf("%s/data/2.5/weather?%s", strings.TrimRight(t.baseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("weather api status %d: %s", resp.StatusCode, string(body))
	}

	var owm owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&owm); err != nil {
		return "", fmt.Errorf("decode weather response: %w", err)
	}

	report := weatherReport{
		Location:    owm.Name,
		Temperature: owm.Main.Temp,
		Unit:        unit,
		Humidity:    owm.Main.Humidity,
		WindSpeed:   owm.Wind.Speed,
	}
	if report.Location == "" {
		report.Location = args.Location
	}
	if len(owm.Weather) > 0 {
		report.Conditions = owm.Weather[0].Description
	}

	out, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode weather report: %w", err)
	}
	return string(out), nil
}
