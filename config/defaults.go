// =============================================================================
// voicegate default configuration
// =============================================================================
package config

import "time"

// BaseSystemPrompt is prepended to every conversation unless overridden.
const BaseSystemPrompt = "You are a warm, empathic voice assistant. Keep replies short and natural, " +
	"as if speaking aloud. Use the available tools whenever the user asks about " +
	"real-world conditions instead of guessing."

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Auth:      AuthConfig{},
		Gateway:   DefaultGatewayConfig(),
		LLM:       DefaultLLMConfig(),
		Tools:     DefaultToolsConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DatabaseConfig{},
		Voice:     DefaultVoiceConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute, // streams stay open across tool rounds
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultGatewayConfig returns the default conversation settings.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Model:        "gpt-4o-mini",
		SystemPrompt: BaseSystemPrompt,
		Temperature:  0.7,
		TurnTimeout:  2 * time.Minute,
	}
}

// DefaultLLMConfig returns the default provider configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "openai",
		Timeout:    60 * time.Second,
		MaxRetries: 2,
	}
}

// DefaultToolsConfig returns the default tool execution configuration.
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		FakeWeather: true,
		Timeout:     30 * time.Second,
		Concurrency: 8,
	}
}

// DefaultRedisConfig returns the default redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		SessionTTL:   24 * time.Hour,
	}
}

// DefaultVoiceConfig returns the default voice gateway configuration.
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		SampleRate:   24000,
		QueueSize:    32,
		HistoryLimit: 400,
		FrameBytes:   4096,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voicegate",
		SampleRate:   1.0,
	}
}
