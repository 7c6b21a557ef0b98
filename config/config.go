package config

import (
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                    bool          `envconfig:"debug"`
	Env                      string        `envconfig:"env" default:"dev"`
	Host                     string        `envconfig:"host"`
	Port                     int           `envconfig:"port" default:"8080"`
	PostgresHost             string        `envconfig:"postgres_host" default:"localhost"`
	PostgresPort             int           `envconfig:"postgres_port" default:"5432"`
	PostgresUser             string        `envconfig:"postgres_user"`
	PostgresPassword         string        `envconfig:"postgres_password"`
	PostgresDB               string        `envconfig:"postgres_db"`
	PostgresSSLMode          string        `envconfig:"postgres_sslmode" default:"disable"`
	JWTSecret                string        `envconfig:"jwt_secret"`
	RealtimeTokenTTL         time.Duration `envconfig:"realtime_token_ttl" default:"15m"`
	RedisURL                 string        `envconfig:"redis_url"`
	RequestTimeout           time.Duration `envconfig:"request_timeout" default:"10s"`
	MaxMessageLength         int           `envconfig:"max_message_length" default:"5000"`
	DefaultPageSize          int           `envconfig:"default_page_size" default:"50"`
	MaxPageSize              int           `envconfig:"max_page_size" default:"100"`
	MaxPresenceBatch         int           `envconfig:"max_presence_batch" default:"100"`
	MaxSearchResults         int           `envconfig:"max_search_results" default:"50"`
	PresenceTTL              time.Duration `envconfig:"presence_ttl" default:"2m"`
	PresenceSweepInterval    time.Duration `envconfig:"presence_sweep_interval" default:"30s"`
	RateLimitPerSecond       uint          `envconfig:"rate_limit_per_second" default:"10"`
	AccessControlAllowOrigin string        `envconfig:"access_control_allow_origin"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Warn("couldn't load env file", "err", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("citizenchat", c)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: jwt_secret is required")
	}
	if c.MaxMessageLength <= 0 || c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 ||
		c.MaxPresenceBatch <= 0 || c.MaxSearchResults <= 0 || c.RateLimitPerSecond == 0 {
		return errors.New("config: limits must be positive")
	}
	if c.PresenceTTL <= 0 || c.PresenceSweepInterval <= 0 ||
		c.RequestTimeout <= 0 || c.RealtimeTokenTTL <= 0 {
		return errors.New("config: durations must be positive")
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return errors.New("config: default_page_size exceeds max_page_size")
	}
	return nil
}

// Default returns the configuration used when no environment is present.
// Tests start from it and override what they need.
func Default() *Config {
	return &Config{
		Env:                   "test",
		Port:                  8080,
		JWTSecret:             "secret",
		RealtimeTokenTTL:      15 * time.Minute,
		RequestTimeout:        10 * time.Second,
		MaxMessageLength:      5000,
		DefaultPageSize:       50,
		MaxPageSize:           100,
		MaxPresenceBatch:      100,
		MaxSearchResults:      50,
		PresenceTTL:           2 * time.Minute,
		PresenceSweepInterval: 30 * time.Second,
		RateLimitPerSecond:    10,
	}
}
