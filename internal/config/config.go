// Package config loads the enricher configuration from an optional
// enricher.yaml, a .env file, ENRICHER_* environment variables and command
// line flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ENRICHER_LOG_LEVEL.
const EnvPrefix = "ENRICHER"

// Config is the complete runtime configuration.
type Config struct {
	SWAPIBaseURL   string `mapstructure:"swapi_base_url"`
	TrippinBaseURL string `mapstructure:"trippin_base_url"`
	EmployeesURL   string `mapstructure:"employees_url"`
	APIToken       string `mapstructure:"api_token"`

	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	Workers      int           `mapstructure:"workers"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`

	RedisURL    string        `mapstructure:"redis_url"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	LogLevel    string        `mapstructure:"log_level"`
	LogPretty   bool          `mapstructure:"log_pretty"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("swapi_base_url", "https://swapi.dev/api")
	v.SetDefault("trippin_base_url", "https://services.odata.org/V4/TripPinServiceRW")
	v.SetDefault("employees_url", "https://apim.workato.com/taboola-dev/homework-exam-v1/api/get_employees")
	v.SetDefault("api_token", "")
	v.SetDefault("user_agent", "api-enricher/0.1.0")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("fetch_timeout", 15*time.Second)
	v.SetDefault("concurrency", 8)
	v.SetDefault("workers", runtime.GOMAXPROCS(0))
	v.SetDefault("max_retries", 3)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("metrics_addr", "")

	v.SetConfigName("enricher")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The employees endpoint token has always been read from API_TOKEN.
	_ = v.BindEnv("api_token", EnvPrefix+"_API_TOKEN", "API_TOKEN")

	return v
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load reads the optional config file and decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return errors.New("user_agent is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", c.Timeout)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must be >= 0 (got %s)", c.FetchTimeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", c.Concurrency)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be >= 0 (got %s)", c.CacheTTL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	return nil
}
