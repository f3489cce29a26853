package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed" mapstructure:"feed"`
	Geodata GeodataConfig `yaml:"geodata" mapstructure:"geodata"`
	Style   StyleConfig   `yaml:"style" mapstructure:"style"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Events  EventsConfig  `yaml:"events" mapstructure:"events"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// FeedConfig points at the earthquake Atom feed. A non-URL value is read
// as a local file.
type FeedConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// GeodataConfig points at the city and country boundary inputs.
type GeodataConfig struct {
	Cities    string `yaml:"cities" mapstructure:"cities"`
	Countries string `yaml:"countries" mapstructure:"countries"`
}

// StyleConfig selects the marker style scheme (depth or magnitude).
type StyleConfig struct {
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	HitToleranceKM float64  `yaml:"hit_tolerance_km" mapstructure:"hit_tolerance_km"`
	RefreshSecs    int      `yaml:"refresh_secs" mapstructure:"refresh_secs"`
}

// SyncConfig configures feed polling.
type SyncConfig struct {
	IntervalSecs int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	Strict       bool `yaml:"strict" mapstructure:"strict"`
}

// ArchiveConfig configures raw feed archiving to MinIO/S3.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// EventsConfig configures the Kafka publisher.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MonitoringConfig configures sync health checks and webhook alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterSecs       int     `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	AlertMagnitude       float64 `yaml:"alert_magnitude" mapstructure:"alert_magnitude"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml in the working directory (if
// present) and the environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, falling back to config.yaml in the
// working directory when path is empty. An explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("QUAKEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("feed.url", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.atom")
	v.SetDefault("geodata.cities", "data/city-data.json")
	v.SetDefault("geodata.countries", "data/countries.geo.json")
	v.SetDefault("style.scheme", "depth")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quakemap.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.hit_tolerance_km", 25.0)
	v.SetDefault("server.refresh_secs", 300)
	v.SetDefault("sync.interval_secs", 0)
	v.SetDefault("sync.strict", false)
	v.SetDefault("archive.bucket", "quakemap")
	v.SetDefault("archive.prefix", "feeds")
	v.SetDefault("events.topic", "quakemap.quakes")
	v.SetDefault("fetch.user_agent", "quakemap/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 10000)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_after_secs", 3600)
	v.SetDefault("monitoring.alert_magnitude", 6.0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "map"
// (feed and geodata queries), "sync", "serve", "monitor".
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "map":
		errs = c.validateInputs(errs)
	case "sync":
		errs = c.validateInputs(errs)
		errs = c.validateStore(errs)
		if c.Sync.IntervalSecs < 0 {
			errs = append(errs, "sync.interval_secs must be >= 0")
		}
		if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
			errs = append(errs, "archive.endpoint and archive.bucket are required when archive is enabled")
		}
		if c.Events.Enabled && len(c.Events.Brokers) == 0 {
			errs = append(errs, "events.brokers is required when events are enabled")
		}
		if c.Monitoring.Enabled {
			errs = c.validateMonitoring(errs)
		}
	case "monitor":
		errs = c.validateStore(errs)
		errs = c.validateMonitoring(errs)
	case "serve":
		errs = c.validateInputs(errs)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.HitToleranceKM <= 0 {
			errs = append(errs, "server.hit_tolerance_km must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateInputs(errs []string) []string {
	if c.Feed.URL == "" {
		errs = append(errs, "feed.url is required")
	}
	if c.Geodata.Cities == "" {
		errs = append(errs, "geodata.cities is required")
	}
	if c.Geodata.Countries == "" {
		errs = append(errs, "geodata.countries is required")
	}
	if c.Style.Scheme != "depth" && c.Style.Scheme != "magnitude" {
		errs = append(errs, "style.scheme must be depth or magnitude")
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch.max_attempts must be >= 1")
	}
	return errs
}

func (c *Config) validateStore(errs []string) []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateMonitoring(errs []string) []string {
	m := c.Monitoring
	if m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if m.LookbackWindowHours <= 0 {
		errs = append(errs, "monitoring.lookback_window_hours must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
