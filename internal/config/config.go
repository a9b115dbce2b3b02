package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/model"
	"SignalScanner/internal/strategy"
	"SignalScanner/internal/universe"
)

// DefaultPath is read when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Log      LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Universe UniverseConfig  `yaml:"universe" envPrefix:"UNIVERSE_"`
	Source   SourceConfig    `yaml:"source" envPrefix:"SOURCE_"`
	Cache    CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Store    StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Policy   strategy.Policy `yaml:"policy" envPrefix:"POLICY_"`
	Scanner  ScannerConfig   `yaml:"scanner" envPrefix:"SCANNER_"`
	Schedule ScheduleConfig  `yaml:"schedule" envPrefix:"SCHEDULE_"`
	HTTP     HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

type UniverseConfig struct {
	Mode       string   `yaml:"mode" env:"MODE"`
	Symbols    []string `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	Window     string   `yaml:"window" env:"WINDOW"`
	MaxSymbols int      `yaml:"max_symbols" env:"MAX_SYMBOLS"`
}

type SourceConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"` // yahoo, rest or mock
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Proxy      string        `yaml:"proxy" env:"PROXY"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Retries    int           `yaml:"retries" env:"RETRIES"`
	Backoff    time.Duration `yaml:"backoff" env:"BACKOFF"`
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
}

type CacheConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"` // redis, memory or none
	Addr            string        `yaml:"addr" env:"ADDR"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	DB              int           `yaml:"db" env:"DB"`
	Prefix          string        `yaml:"prefix" env:"PREFIX"`
	SeriesTTL       time.Duration `yaml:"series_ttl" env:"SERIES_TTL"`
	RecentMax       int           `yaml:"recent_max" env:"RECENT_MAX"`
	OpTimeout       time.Duration `yaml:"op_timeout" env:"OP_TIMEOUT"`
	BreakerFailures int           `yaml:"breaker_failures" env:"BREAKER_FAILURES"`
	BreakerReset    time.Duration `yaml:"breaker_reset" env:"BREAKER_RESET"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"` // sqlite, postgres or none
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	MaxConns    int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

type ScannerConfig struct {
	Workers       int           `yaml:"workers" env:"WORKERS"`
	SymbolTimeout time.Duration `yaml:"symbol_timeout" env:"SYMBOL_TIMEOUT"`
	StoreRetries  int           `yaml:"store_retries" env:"STORE_RETRIES"`
	StoreBackoff  time.Duration `yaml:"store_backoff" env:"STORE_BACKOFF"`

	// SentimentSymbol is read once per run; empty disables it.
	SentimentSymbol string `yaml:"sentiment_symbol" env:"SENTIMENT_SYMBOL"`
}

type ScheduleConfig struct {
	Interval        time.Duration `yaml:"interval" env:"INTERVAL"`
	Crons           []string      `yaml:"crons" env:"CRONS" envSeparator:";"`
	Timezone        string        `yaml:"timezone" env:"TIMEZONE"`
	MarketHoursOnly bool          `yaml:"market_hours_only" env:"MARKET_HOURS_ONLY"`
	RunOnStart      bool          `yaml:"run_on_start" env:"RUN_ON_START"`
	RunTimeout      time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Universe: UniverseConfig{
			Mode:       string(universe.ModeDefault),
			Window:     string(model.Window3Mo),
			MaxSymbols: universe.DefaultMaxSymbols,
		},
		Source: SourceConfig{
			Provider:   "yahoo",
			Timeout:    15 * time.Second,
			Retries:    3,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Cache: CacheConfig{
			Driver:          "memory",
			Addr:            "localhost:6379",
			Prefix:          "scanner:",
			SeriesTTL:       15 * time.Minute,
			RecentMax:       200,
			OpTimeout:       2 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/signals.db",
			MaxConns:   4,
		},
		Policy: strategy.DefaultPolicy(),
		Scanner: ScannerConfig{
			Workers:       8,
			SymbolTimeout: 30 * time.Second,
			StoreRetries:  3,
			StoreBackoff:  200 * time.Millisecond,

			SentimentSymbol: "^VIX",
		},
		Schedule: ScheduleConfig{
			// the four daily scans of the legacy deployment, exchange time
			Crons:      []string{"0 9 * * 1-5", "30 10 * * 1-5", "0 14 * * 1-5", "30 15 * * 1-5"},
			Timezone:   "America/New_York",
			RunOnStart: true,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Legacy variable names
	if v := os.Getenv("SCAN_MODE"); v != "" {
		cfg.Universe.Mode = v
	}
	if v := os.Getenv("MAX_STOCKS_PER_SCAN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_STOCKS_PER_SCAN: %w", err)
		}
		cfg.Universe.MaxSymbols = n
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Source.Proxy == "" {
		cfg.Source.Proxy = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		opts := cache.RedisOptions{Password: cfg.Cache.Password, DB: cfg.Cache.DB}
		if err := opts.ApplyURL(v); err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		cfg.Cache.Driver = "redis"
		cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB = opts.Addr, opts.Password, opts.DB
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.PostgresDSN = v
	}

	return cfg, nil
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Window returns the parsed scan window.
func (c *Config) Window() model.Window {
	w, err := model.ParseWindow(c.Universe.Window)
	if err != nil {
		return model.Window3Mo
	}
	return w
}

// Location returns the schedule time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// windowSlack is how many bars beyond Policy.MinBars a window should span;
// holidays and a fresh listing easily eat a few.
const windowSlack = 5

// Warnings reports settings that are valid but likely to misbehave.
func (c *Config) Warnings() []string {
	var out []string
	w, need := c.Window(), c.Policy.MinBars()
	if w.TradingDays() < need+windowSlack {
		out = append(out, fmt.Sprintf(
			"universe.window %s spans about %d bars but the policy needs %d; expect insufficient_data errors, use 3mo or longer",
			w, w.TradingDays(), need))
	}
	return out
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if _, err := universe.ParseMode(c.Universe.Mode); err != nil {
		return fmt.Errorf("universe.mode: %w", err)
	}
	if _, err := model.ParseWindow(c.Universe.Window); err != nil {
		return fmt.Errorf("universe.window: %w", err)
	}
	if c.Universe.MaxSymbols < 0 {
		return errors.New("universe.max_symbols must not be negative")
	}

	switch c.Source.Provider {
	case "yahoo", "mock":
	case "rest":
		if c.Source.BaseURL == "" {
			return errors.New("source.base_url is required for the rest provider")
		}
	default:
		return fmt.Errorf("source.provider must be yahoo, rest or mock, got %q", c.Source.Provider)
	}
	if c.Source.Timeout <= 0 {
		return errors.New("source.timeout must be positive")
	}
	if c.Source.Retries < 0 {
		return errors.New("source.retries must not be negative")
	}

	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Cache.Addr == "" {
			return errors.New("cache.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be redis, memory or none, got %q", c.Cache.Driver)
	}
	if c.Cache.SeriesTTL <= 0 {
		return errors.New("cache.series_ttl must be positive")
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or none, got %q", c.Store.Driver)
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Scanner.Workers <= 0 {
		return errors.New("scanner.workers must be positive")
	}
	if c.Scanner.SymbolTimeout <= 0 {
		return errors.New("scanner.symbol_timeout must be positive")
	}
	if c.Scanner.StoreRetries < 0 {
		return errors.New("scanner.store_retries must not be negative")
	}

	if c.Schedule.Interval < 0 || (c.Schedule.Interval > 0 && c.Schedule.Interval < time.Second) {
		return errors.New("schedule.interval must be at least 1s when set")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}
