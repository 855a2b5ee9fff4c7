package generation

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL      = "https://api.replicate.com"
	DefaultModelVersion = "luma/photon-flash"
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 30
)

type Config struct {
	APIToken     string
	BaseURL      string
	ModelVersion string
	PollInterval time.Duration
	MaxPolls     int
	HTTPTimeout  time.Duration
}

// ConfigFromEnv reads REPLICATE_* and GENERATION_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		APIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		BaseURL:      strings.TrimRight(os.Getenv("REPLICATE_BASE_URL"), "/"),
		ModelVersion: os.Getenv("REPLICATE_MODEL_VERSION"),
		PollInterval: DefaultPollInterval,
		MaxPolls:     DefaultMaxPolls,
		HTTPTimeout:  15 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = DefaultModelVersion
	}
	if v := os.Getenv("GENERATION_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("GENERATION_MAX_POLLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPolls = n
		}
	}
	return cfg
}

// MaxDuration is the worst case of one generation: the create call plus every
// poll waiting its interval and then hitting the HTTP timeout.
func (c Config) MaxDuration() time.Duration {
	timeout := c.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	interval, polls := c.PollInterval, c.MaxPolls
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if polls <= 0 {
		polls = DefaultMaxPolls
	}
	return timeout + time.Duration(polls)*(interval+timeout)
}
