package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// cannedWeather holds deterministic conditions for the fake tool.
type cannedWeather struct {
	tempC      float64
	conditions string
}

var cannedCities = map[string]cannedWeather{
	"tokyo":          {18, "partly cloudy"},
	"san francisco":  {19, "foggy"},
	"new york":       {15, "clear sky"},
	"london":         {12, "light rain"},
	"sydney":         {25, "sunny"},
	"paris":          {16, "overcast"},
	"dubai":          {35, "sunny"},
	"mumbai":         {30, "humid"},
	"rio de janeiro": {28, "scattered clouds"},
	"vancouver":      {14, "drizzle"},
}

var cannedDefault = cannedWeather{22, "mild"}

// FakeWeatherTool returns canned weather data without any network call.
// Useful for demos and for exercising the tool phase deterministically.
type FakeWeatherTool struct{}

// NewFakeWeatherTool creates the canned-data weather tool.
func NewFakeWeatherTool() *FakeWeatherTool { return &FakeWeatherTool{} }

func (t *FakeWeatherTool) Name() string { return "get_current_weather" }

func (t *FakeWeatherTool) Description() string {
	return "Get the current weather for a location. Use this whenever the user asks about weather conditions."
}

func (t *FakeWeatherTool) Parameters() map[string]Param {
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

func (t *FakeWeatherTool) Execute(_ context.Context, raw json.RawMessage) (string, error) {
	var args weatherArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if err := args.validate(); err != nil {
		return "", err
	}

	canned, ok := cannedCities[strings.ToLower(strings.TrimSpace(args.Location))]
	if !ok {
		canned = cannedDefault
	}

	unit := args.Unit
	if unit == "" {
		unit = "celsius"
	}
	temp := canned.tempC
	if unit == "fahrenheit" {
		temp = celsiusToFahrenheit(temp)
	}

	out, err := json.Marshal(weatherReport{
		Location:    args.Location,
		Temperature: temp,
		Unit:        unit,
		Conditions:  canned.conditions,
	})
	if err != nil {
		return "", fmt.Errorf("encode weather report: %w", err)
	}
	return string(out), nil
}
