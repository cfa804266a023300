// =============================================================================
// voicegate configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VOICEGATE").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete voicegate configuration.
type Config struct {
	// Server holds HTTP listener settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Auth holds request authentication settings.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Gateway holds conversation defaults.
	Gateway GatewayConfig `yaml:"gateway" env:"GATEWAY"`

	// LLM holds upstream model provider settings.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Tools holds tool execution settings.
	Tools ToolsConfig `yaml:"tools" env:"TOOLS"`

	// Redis holds session cache settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database holds transcript archive settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Voice holds voice gateway settings.
	Voice VoiceConfig `yaml:"voice" env:"VOICE"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds tracing/metrics export settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    int           `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AuthConfig configures bearer-token authentication. When JWTSecret is
// set, tokens are validated as HS256 JWTs; otherwise APIKeys is the
// allow list. Empty config disables authentication.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	APIKeys   []string `yaml:"api_keys" env:"API_KEYS"`
}

// Enabled reports whether any authentication scheme is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || len(a.APIKeys) > 0
}

// GatewayConfig configures conversation turn defaults.
type GatewayConfig struct {
	Model        string        `yaml:"model" env:"MODEL"`
	SystemPrompt string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	Temperature  float64       `yaml:"temperature" env:"TEMPERATURE"`
	TurnTimeout  time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
}

// LLMConfig configures the upstream provider.
type LLMConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// FakeWeather selects canned weather data over the live API.
	FakeWeather   bool          `yaml:"fake_weather" env:"FAKE_WEATHER"`
	WeatherAPIKey string        `yaml:"weather_api_key" env:"WEATHER_API_KEY"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Concurrency   int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// RedisConfig configures the session cache. Empty Addr disables redis
// and sessions are kept in memory.
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	SessionTTL   time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// DatabaseConfig configures the transcript archive. Empty Path disables
// archiving.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" env:"PATH"`
}

// VoiceConfig configures the voice websocket gateway.
type VoiceConfig struct {
	SampleRate   int `yaml:"sample_rate" env:"SAMPLE_RATE"`
	QueueSize    int `yaml:"queue_size" env:"QUEUE_SIZE"`
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	FrameBytes   int `yaml:"frame_bytes" env:"FRAME_BYTES"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOICEGATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Precedence: defaults → YAML file → environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file falls back to defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Gateway.Model == "" {
		errs = append(errs, "gateway model must be set")
	}
	if c.Gateway.Temperature < 0 || c.Gateway.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if !c.Tools.FakeWeather && c.Tools.WeatherAPIKey == "" {
		errs = append(errs, "weather_api_key required unless fake_weather is enabled")
	}
	if c.Voice.SampleRate <= 0 {
		errs = append(errs, "voice sample_rate must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
