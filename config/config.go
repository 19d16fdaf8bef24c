// Package config builds the immutable settings value for a herring process:
// defaults, then an optional YAML file, then environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/herring"
	"github.com/carbocation/herring/enaclient"
	"github.com/carbocation/herring/enaquery"
	"github.com/carbocation/herring/fetch"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath  = "HERRING_CONFIG"
	EnvInsecureTLS = "HERRING_INSECURE_TLS"
	EnvCABundle    = "HERRING_CA_BUNDLE"
	EnvTimeoutSecs = "HERRING_TIMEOUT_SECS"
	EnvBaseURL     = "HERRING_BASE_URL"
)

// Config defines everything a run needs besides its window.
type Config struct {
	Portal PortalConfig `yaml:"portal"`
	Retry  RetryConfig  `yaml:"retry"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Serve  ServeConfig  `yaml:"serve"`
}

type PortalConfig struct {
	BaseURL     string `yaml:"base_url"`
	Platform    string `yaml:"platform"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	InsecureTLS bool   `yaml:"insecure_tls"`
	CABundle    string `yaml:"ca_bundle"`
}

type RetryConfig struct {
	MaxAttempts int   `yaml:"max_attempts"`
	BaseDelayMS int   `yaml:"base_delay_ms"`
	MaxDelayMS  int   `yaml:"max_delay_ms"`
	ExtraStatus []int `yaml:"extra_status"`
}

type FetchConfig struct {
	MaxChunkDays int `yaml:"max_chunk_days"`
	Concurrency  int `yaml:"concurrency"`
}

type ServeConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:     enaclient.DefaultBaseURL,
			Platform:    enaquery.DefaultPlatform,
			TimeoutSecs: 30,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelayMS: 400,
			MaxDelayMS:  30_000,
			ExtraStatus: []int{408},
		},
		Fetch: FetchConfig{
			MaxChunkDays: 14,
			Concurrency:  1,
		},
		Serve: ServeConfig{
			Port: 9019,
		},
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using getenv in place of os.Getenv. Every failure
// wraps herring.ErrInvalidArgument.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv(EnvConfigPath); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if v := getenv(EnvBaseURL); v != "" {
		cfg.Portal.BaseURL = v
	}
	if v := getenv(EnvInsecureTLS); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q is not a boolean", herring.ErrInvalidArgument, EnvInsecureTLS, v)
		}
		cfg.Portal.InsecureTLS = insecure
	}
	if v := getenv(EnvCABundle); v != "" {
		cfg.Portal.CABundle = v
	}
	if v := getenv(EnvTimeoutSecs); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 1 {
			return Config{}, fmt.Errorf("%w: %s=%q is not a positive integer", herring.ErrInvalidArgument, EnvTimeoutSecs, v)
		}
		cfg.Portal.TimeoutSecs = secs
	}

	if cfg.Portal.CABundle != "" {
		expanded, err := herring.ExpandHome(cfg.Portal.CABundle)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", herring.ErrInvalidArgument, err)
		}
		cfg.Portal.CABundle = expanded
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadFromFile overlays the YAML document at path, which may be local or a
// gs:// object, onto cfg.
func loadFromFile(path string, cfg *Config) error {
	ctx := context.Background()

	var client *storage.Client
	if herring.IsGoogleStorage(path) {
		var err error
		if client, err = storage.NewClient(ctx); err != nil {
			return fmt.Errorf("connecting to Google Storage for %s: %w", path, err)
		}
		defer client.Close()
	}

	r, err := herring.MaybeOpenFromGoogleStorage(ctx, path, client)
	if err != nil {
		return fmt.Errorf("%w: read config file: %v", herring.ErrInvalidArgument, err)
	}
	defer r.Close()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse config file %s: %v", herring.ErrInvalidArgument, path, err)
	}

	return nil
}

// Validate checks ranges. Portal and retry settings are checked by
// enaclient.Config.Validate.
func (c Config) Validate() error {
	if err := c.Client("herring").Validate(); err != nil {
		return err
	}
	if c.Fetch.MaxChunkDays < 0 {
		return fmt.Errorf("%w: max_chunk_days must not be negative, got %d", herring.ErrInvalidArgument, c.Fetch.MaxChunkDays)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", herring.ErrInvalidArgument, c.Fetch.Concurrency)
	}
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return fmt.Errorf("%w: port %d is out of range", herring.ErrInvalidArgument, c.Serve.Port)
	}

	return nil
}

// Timeout is the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSecs) * time.Second
}

// Client returns the transport settings.
func (c Config) Client(userAgent string) enaclient.Config {
	return enaclient.Config{
		BaseURL:     c.Portal.BaseURL,
		Platform:    c.Portal.Platform,
		Timeout:     c.Timeout(),
		InsecureTLS: c.Portal.InsecureTLS,
		CABundle:    c.Portal.CABundle,
		UserAgent:   userAgent,
		Retry: enaclient.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
			ExtraStatus: c.Retry.ExtraStatus,
		},
	}
}

// FetchOptions returns the chunking settings.
func (c Config) FetchOptions(log *zap.Logger) fetch.Options {
	return fetch.Options{
		Platform:     c.Portal.Platform,
		MaxChunkDays: c.Fetch.MaxChunkDays,
		Concurrency:  c.Fetch.Concurrency,
		Timeout:      c.Timeout(),
		Logger:       log,
	}
}
