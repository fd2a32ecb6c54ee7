package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"coinboard/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for coinboard.
type Config struct {
	API      API      `yaml:"api"`
	Auth     Auth     `yaml:"auth"`
	Prefs    Prefs    `yaml:"prefs"`
	Snapshot Snapshot `yaml:"snapshot"`
	Refresh  Refresh  `yaml:"refresh"`
	UI       UI       `yaml:"ui"`
	Logging  Logging  `yaml:"logging"`
}

// API holds the backend endpoint and client behaviour.
type API struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Retries         int           `yaml:"retries"`
}

// Auth holds the bearer credentials handed over by the identity provider.
type Auth struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
}

// Prefs selects and configures the persisted-preference backend.
type Prefs struct {
	Backend      string        `yaml:"backend"` // memory, file, sqlite, redis
	Path         string        `yaml:"path"`
	SQLitePath   string        `yaml:"sqlite_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Redis        Redis         `yaml:"redis"`
}

// Redis configures the redis preference backend.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Channel  string `yaml:"channel"`
}

// Snapshot configures the on-disk market snapshot cache.
type Snapshot struct {
	Path string `yaml:"path"`
}

// Refresh controls polling and staleness of the fetched panels.
type Refresh struct {
	Markets      time.Duration `yaml:"markets"`
	MarketsStale time.Duration `yaml:"markets_stale"`
	ChartStale   time.Duration `yaml:"chart_stale"`
	NewsStale    time.Duration `yaml:"news_stale"`
}

// UI holds view defaults.
type UI struct {
	DefaultCoin  string `yaml:"default_coin"`
	DefaultDays  int    `yaml:"default_days"`
	NewsPageSize int    `yaml:"news_page_size"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Preference backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at the given path, fills in
// defaults and then applies environment overrides. A missing file is not an
// error: the defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Prefs.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("prefs.backend: unknown backend %q", c.Prefs.Backend)
	}
	if _, err := domain.ParseChartRange(c.UI.DefaultDays); err != nil {
		return fmt.Errorf("ui.default_days: %w", err)
	}
	if c.UI.NewsPageSize <= 0 {
		return fmt.Errorf("ui.news_page_size must be positive, got %d", c.UI.NewsPageSize)
	}
	return nil
}

// DefaultDir returns the per-user directory that holds preferences and the
// market snapshot.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "coinboard")
	}
	return filepath.Join(os.TempDir(), "coinboard")
}

func applyDefaults(cfg *Config) {
	dir := DefaultDir()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8000"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.API.RateLimitPerMin == 0 {
		cfg.API.RateLimitPerMin = 120
	}
	if cfg.API.Retries == 0 {
		cfg.API.Retries = 3
	}

	if cfg.Prefs.Backend == "" {
		cfg.Prefs.Backend = BackendFile
	}
	if cfg.Prefs.Path == "" {
		cfg.Prefs.Path = filepath.Join(dir, "prefs.json")
	}
	if cfg.Prefs.SQLitePath == "" {
		cfg.Prefs.SQLitePath = filepath.Join(dir, "prefs.db")
	}
	if cfg.Prefs.PollInterval == 0 {
		cfg.Prefs.PollInterval = time.Second
	}
	if cfg.Prefs.Redis.Addr == "" {
		cfg.Prefs.Redis.Addr = "localhost:6379"
	}
	if cfg.Prefs.Redis.Prefix == "" {
		cfg.Prefs.Redis.Prefix = "coinboard:prefs:"
	}
	if cfg.Prefs.Redis.Channel == "" {
		cfg.Prefs.Redis.Channel = "coinboard:prefs"
	}

	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = filepath.Join(dir, "markets.parquet")
	}

	if cfg.Refresh.Markets == 0 {
		cfg.Refresh.Markets = 60 * time.Second
	}
	if cfg.Refresh.MarketsStale == 0 {
		cfg.Refresh.MarketsStale = 60 * time.Second
	}
	if cfg.Refresh.ChartStale == 0 {
		cfg.Refresh.ChartStale = 60 * time.Second
	}
	if cfg.Refresh.NewsStale == 0 {
		cfg.Refresh.NewsStale = 15 * time.Minute
	}

	if cfg.UI.DefaultCoin == "" {
		cfg.UI.DefaultCoin = domain.DefaultCoin
	}
	if cfg.UI.DefaultDays == 0 {
		cfg.UI.DefaultDays = int(domain.DefaultRange)
	}
	if cfg.UI.NewsPageSize == 0 {
		cfg.UI.NewsPageSize = 8
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// envOverrides lists the COINBOARD_* variables that take precedence over
// the file.
type envOverrides struct {
	APIURL        string `envconfig:"API_URL"`
	AuthToken     string `envconfig:"AUTH_TOKEN"`
	AuthUser      string `envconfig:"AUTH_USER"`
	PrefsBackend  string `envconfig:"PREFS_BACKEND"`
	PrefsPath     string `envconfig:"PREFS_PATH"`
	SQLitePath    string `envconfig:"SQLITE_PATH"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	SnapshotPath  string `envconfig:"SNAPSHOT_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
}

// applyEnvOverrides loads a .env file when present and then copies every
// non-empty COINBOARD_* variable onto cfg.
func applyEnvOverrides(cfg *Config) error {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process("COINBOARD", &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if env.APIURL != "" {
		cfg.API.BaseURL = env.APIURL
	}
	if env.AuthToken != "" {
		cfg.Auth.Token = env.AuthToken
	}
	if env.AuthUser != "" {
		cfg.Auth.User = env.AuthUser
	}
	if env.PrefsBackend != "" {
		cfg.Prefs.Backend = env.PrefsBackend
	}
	if env.PrefsPath != "" {
		cfg.Prefs.Path = env.PrefsPath
	}
	if env.SQLitePath != "" {
		cfg.Prefs.SQLitePath = env.SQLitePath
	}
	if env.RedisAddr != "" {
		cfg.Prefs.Redis.Addr = env.RedisAddr
	}
	if env.RedisPassword != "" {
		cfg.Prefs.Redis.Password = env.RedisPassword
	}
	if env.SnapshotPath != "" {
		cfg.Snapshot.Path = env.SnapshotPath
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	return nil
}
