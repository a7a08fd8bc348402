// Package config loads the stuwo-offers configuration.
//
// Values are resolved, highest priority first, from command-line flags,
// STUWO_-prefixed environment variables (a .env file in the working directory is
// loaded into the environment first), an optional YAML config file, and the
// built-in defaults. With no flags, env or file the defaults reproduce the plain
// behaviour: fetch the Studentenwerk offers page and cache to offers_cache.json.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pfrederiksen/stuwo-offers/internal/scraper"
	"github.com/pfrederiksen/stuwo-offers/internal/storage"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Config holds the resolved settings for one run. It is not modified after Load returns.
type Config struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	OffersPath string        `mapstructure:"offers_path" yaml:"offers_path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries    int           `mapstructure:"retries" yaml:"retries"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	Fetcher    string        `mapstructure:"fetcher" yaml:"fetcher"`
	ChromePath string        `mapstructure:"chrome_path" yaml:"chrome_path,omitempty"`
	Lenient    bool          `mapstructure:"lenient" yaml:"lenient"`
	LogLevel   string        `mapstructure:"log_level" yaml:"log_level"`
	Cache      CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig selects where the previous offers are kept
type CacheConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Path        string `mapstructure:"path" yaml:"path"`
	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisKey    string `mapstructure:"redis_key" yaml:"redis_key"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn,omitempty"`
}

var defaults = map[string]interface{}{
	"base_url":           scraper.BaseURL,
	"offers_path":        scraper.OffersPath,
	"timeout":            scraper.Timeout,
	"retries":            scraper.Retries,
	"user_agent":         scraper.UserAgent,
	"fetcher":            FetcherHTTP,
	"chrome_path":        "",
	"lenient":            false,
	"log_level":          "info",
	"cache.backend":      storage.BackendFile,
	"cache.path":         storage.DefaultCachePath,
	"cache.redis_addr":   "",
	"cache.redis_key":    storage.DefaultRedisKey,
	"cache.postgres_dsn": "",
}

// flagKeys maps config keys to the flag names that override them
var flagKeys = map[string]string{
	"base_url":      "base-url",
	"offers_path":   "offers-path",
	"timeout":       "timeout",
	"retries":       "retries",
	"fetcher":       "fetcher",
	"lenient":       "lenient",
	"log_level":     "log-level",
	"cache.backend": "cache-backend",
	"cache.path":    "cache",
}

// Load resolves the configuration. flags may be nil; file may be empty.
func Load(flags *pflag.FlagSet, file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("STUWO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail later in the run
func (c *Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}

	switch c.Fetcher {
	case FetcherHTTP, FetcherBrowser:
	default:
		errs = append(errs, fmt.Errorf("unknown fetcher: %q (must be 'http' or 'browser')", c.Fetcher))
	}

	switch c.Cache.Backend {
	case storage.BackendFile:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path must not be empty for the file backend"))
		}
	case storage.BackendRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	case storage.BackendPostgres:
		if c.Cache.PostgresDSN == "" {
			errs = append(errs, errors.New("cache.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend: %q", c.Cache.Backend))
	}

	return errors.Join(errs...)
}

// OffersURL joins the base URL and the offers path
func (c *Config) OffersURL() string {
	if c.OffersPath == "" {
		return c.BaseURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.OffersPath, "/")
}

// YAML renders the configuration with secrets redacted
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.Cache.PostgresDSN != "" {
		redacted.Cache.PostgresDSN = "<redacted>"
	}
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}
