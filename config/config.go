// Package config loads runtime configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// Provider names accepted by ProviderConfig.Name.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `split_words:"true" default:":8080"`
	// AuthTokens is a comma-separated list of accepted bearer tokens.
	// Empty means no authentication.
	AuthTokens []string `split_words:"true"`
}

// ProviderConfig selects and credentials the model backend.
type ProviderConfig struct {
	Name            string `split_words:"true" default:"anthropic"`
	Model           string `split_words:"true"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
}

// RedisConfig connects the transcript store. URL left empty keeps sessions
// in memory.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// New opens a Redis client from the parsed URL.
func (r *RedisConfig) New() (*redis.Client, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}

	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	return redis.NewClient(opts), nil
}

// SessionConfig bounds transcript retention.
type SessionConfig struct {
	TTL time.Duration `split_words:"true" default:"24h"`
}

// LoopConfig bounds conversation-loop waits.
type LoopConfig struct {
	TurnTimeout     time.Duration `split_words:"true" default:"120s"`
	DispatchTimeout time.Duration `split_words:"true" default:"30s"`
}

// LogConfig selects log verbosity and output shape.
type LogConfig struct {
	Level  string `split_words:"true" default:"info"`
	Format string `split_words:"true" default:"text"`
}

// Config is the full environment-sourced configuration.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Redis    RedisConfig
	Session  SessionConfig
	Loop     LoopConfig
	Log      LogConfig
}

// Load reads .env when present, then the process environment. Missing or
// inconsistent settings are reported as errors, not defaults.
func Load() (Config, error) {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case ProviderAnthropic:
		if c.Provider.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider.Name)
		}
	case ProviderOpenAI:
		if c.Provider.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider.Name)
		}
	default:
		return fmt.Errorf("unknown provider %q (want %q or %q)", c.Provider.Name, ProviderAnthropic, ProviderOpenAI)
	}
	if c.Loop.TurnTimeout <= 0 {
		return fmt.Errorf("LOOP_TURN_TIMEOUT must be positive, got %s", c.Loop.TurnTimeout)
	}
	if c.Loop.DispatchTimeout <= 0 {
		return fmt.Errorf("LOOP_DISPATCH_TIMEOUT must be positive, got %s", c.Loop.DispatchTimeout)
	}
	return nil
}
