// Package config loads the service configuration.
//
// Sources, lowest priority first: defaults from struct tags, a YAML file
// (explicit path or CONFIG_PATH), a .env file in the working directory,
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int    `yaml:"port"      env:"PORT"      env-default:"8080"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	DBPath   string `yaml:"db_path"   env:"DB_PATH"   env-default:"data/profileworld.db"`

	GitHub GitHubConfig `yaml:"github"`
	World  WorldConfig  `yaml:"world"`
	Redis  RedisConfig  `yaml:"redis"`
	Purge  PurgeConfig  `yaml:"purge"`
}

type GitHubConfig struct {
	BaseURL string        `yaml:"base_url" env:"GITHUB_API_BASE" env-default:"https://api.github.com/"`
	Token   string        `yaml:"token"    env:"GITHUB_TOKEN"`
	Timeout time.Duration `yaml:"timeout"  env:"GITHUB_TIMEOUT"  env-default:"15s"`
}

type WorldConfig struct {
	TTL               time.Duration `yaml:"ttl"                env:"WORLD_TTL"          env-default:"24h"`
	EnrichLimit       int           `yaml:"enrich_limit"       env:"ENRICH_LIMIT"       env-default:"12"`
	EnrichConcurrency int           `yaml:"enrich_concurrency" env:"ENRICH_CONCURRENCY" env-default:"4"`
}

// RedisConfig is optional. An empty Addr selects the in-process index.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB" env-default:"0"`
}

type PurgeConfig struct {
	// Zero disables the janitor.
	Interval  time.Duration `yaml:"interval"  env:"PURGE_INTERVAL"  env-default:"1h"`
	Retention time.Duration `yaml:"retention" env:"PURGE_RETENTION" env-default:"168h"`
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GenerateBudget is the worst case a single generate request can spend
// waiting on GitHub: the profile, up to three repository pages, and then
// two sequential calls per enriched repo in waves of EnrichConcurrency.
// Every call is bounded by GitHub.Timeout.
func (c *Config) GenerateBudget() time.Duration {
	calls := 4
	if c.World.EnrichLimit > 0 && c.World.EnrichConcurrency > 0 {
		waves := (c.World.EnrichLimit + c.World.EnrichConcurrency - 1) / c.World.EnrichConcurrency
		calls += 2 * waves
	}
	return time.Duration(calls) * c.GitHub.Timeout
}

// MustLoad is Load for main: a config that does not load is fatal.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration. path may be empty, in which case
// CONFIG_PATH is consulted and, failing that, only the environment is used.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("github.base_url is required")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be > 0")
	}
	if c.World.TTL <= 0 {
		return fmt.Errorf("world.ttl must be > 0")
	}
	if c.World.EnrichLimit < 0 {
		return fmt.Errorf("world.enrich_limit must be >= 0")
	}
	if c.World.EnrichConcurrency < 1 {
		return fmt.Errorf("world.enrich_concurrency must be >= 1")
	}
	if c.Purge.Interval < 0 || c.Purge.Retention < 0 {
		return fmt.Errorf("purge interval and retention must not be negative")
	}
	return nil
}
