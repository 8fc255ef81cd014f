package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultStaticToken is used when no token is configured. Deployments are
// expected to override it; the service logs a warning at startup when it is in use.
const DefaultStaticToken = "change-me"

// Config is the process configuration. It is built once at startup and passed
// explicitly to every component that needs it.
type Config struct {
	Server struct {
		Host        string `yaml:"host"`
		Port        string `yaml:"port"`
		Prefork     bool   `yaml:"prefork"`
		BodyLimitMB int    `yaml:"body_limit_mb"`
	} `yaml:"server"`

	Auth struct {
		StaticToken string `yaml:"static_token"`
	} `yaml:"auth"`

	Logger struct {
		Dir        string `yaml:"dir"`
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Staging struct {
		Dir      string        `yaml:"dir"`
		SweepAge time.Duration `yaml:"sweep_age"`
	} `yaml:"staging"`

	Converter struct {
		Command     string        `yaml:"command"`
		Args        []string      `yaml:"args"`
		SettleDelay time.Duration `yaml:"settle_delay"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"converter"`

	Cache struct {
		Enabled   bool          `yaml:"enabled"`
		RedisHost string        `yaml:"redis_host"`
		DB        int           `yaml:"db"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Limit     int           `yaml:"limit"`
		Interval  time.Duration `yaml:"interval"`
		RedisHost string        `yaml:"redis_host"`
		DB        int           `yaml:"db"`
	} `yaml:"rate_limiter"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":5000"
	cfg.Server.BodyLimitMB = 50

	cfg.Auth.StaticToken = DefaultStaticToken

	cfg.Logger.Dir = "logs"
	cfg.Logger.File = "app.log"
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 5
	cfg.Logger.MaxAgeDays = 28

	cfg.Staging.Dir = filepath.Join(os.TempDir(), "pdf2docx")
	cfg.Staging.SweepAge = time.Hour

	cfg.Converter.Command = "pdf2docx"

	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.TTL = 10 * time.Minute

	cfg.RateLimiter.Interval = time.Minute
	cfg.RateLimiter.DB = 1

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Load builds the configuration from an optional .env file, the yaml file
// named by CONFIG_PATH (if any) and environment overrides. It panics on
// invalid values.
func Load() Config {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom is Load with an explicit yaml path. An empty path skips the file.
func LoadFrom(path string) Config {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("config: read %s: %v", path, err))
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Auth.StaticToken, "STATIC_AUTH_TOKEN")
	set(&cfg.Logger.Dir, "LOG_DIR")
	set(&cfg.Logger.Level, "LOG_LEVEL")
	set(&cfg.Staging.Dir, "TEMP_DIR")
	set(&cfg.Server.Host, "HOST")
	set(&cfg.Converter.Command, "CONVERTER_COMMAND")
	set(&cfg.Cache.RedisHost, "REDIS_HOST")

	if v := os.Getenv("PORT"); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Auth.StaticToken == "":
		return fmt.Errorf("auth.static_token is empty")
	case c.Staging.Dir == "":
		return fmt.Errorf("staging.dir is empty")
	case c.Converter.Command == "":
		return fmt.Errorf("converter.command is empty")
	case c.Converter.SettleDelay < 0:
		return fmt.Errorf("converter.settle_delay must not be negative")
	case c.Converter.Timeout < 0:
		return fmt.Errorf("converter.timeout must not be negative")
	case c.Server.BodyLimitMB <= 0:
		return fmt.Errorf("server.body_limit_mb must be positive")
	case c.RateLimiter.Limit < 0:
		return fmt.Errorf("rate_limiter.limit must not be negative")
	case c.RateLimiter.Limit > 0 && c.RateLimiter.Interval <= 0:
		return fmt.Errorf("rate_limiter.interval must be positive")
	case c.Cache.Enabled && c.Cache.RedisHost == "":
		return fmt.Errorf("cache.redis_host is empty")
	}
	return nil
}

// LogPath is the full path of the application log file.
func (c Config) LogPath() string {
	if c.Logger.Dir == "" {
		return c.Logger.File
	}
	return filepath.Join(c.Logger.Dir, c.Logger.File)
}

// UsesDefaultToken reports whether the fallback token is active.
func (c Config) UsesDefaultToken() bool {
	return c.Auth.StaticToken == DefaultStaticToken
}
