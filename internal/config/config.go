// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

// AppName names the application's data directories.
const AppName = "malegislature-crawler"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   store.Config  `mapstructure:"cache"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
}

// APIConfig points at the upstream legislature API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CrawlerConfig governs collection reconciliation and crawl fan-out.
type CrawlerConfig struct {
	Concurrency int  `mapstructure:"concurrency"`
	UseCache    bool `mapstructure:"use_cache"`
	Overwrite   bool `mapstructure:"overwrite"`
}

// HTTPConfig configures the upstream client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StorageConfig enables the GCS record mirror when a bucket is set.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig enables the Postgres record mirror when a DSN is set.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig enables collection summary notifications when a topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the read-only HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultCacheRoot is the cache directory under the XDG data home.
func DefaultCacheRoot() string {
	return filepath.Join(xdg.DataHome, AppName, "cache")
}

// Load builds a Config from an optional .env file, an optional config file
// and CRAWLER_ environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv exports the variables in path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://malegislature.gov")
	v.SetDefault("cache.root", DefaultCacheRoot())
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.use_cache", true)
	v.SetDefault("crawler.overwrite", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.user_agent", "malegislature-crawler/0.1")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "records")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "entity_records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(c.Cache.Root) == "" {
		return fmt.Errorf("cache.root must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.HTTP.RequestsPerSecond > 0 && c.HTTP.Burst <= 0 {
		return fmt.Errorf("http.burst must be > 0 when rate limiting is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if _, err := zapcore.ParseLevel(strings.ToLower(c.Logging.Level)); c.Logging.Level != "" && err != nil {
		return fmt.Errorf("logging.level %q is not a zap level", c.Logging.Level)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Timeout returns the upstream request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BaseURL returns the API base URL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimSuffix(c.API.BaseURL, "/")
}
