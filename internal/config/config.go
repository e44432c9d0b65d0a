package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the lookup API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// RefreshConfig configures the periodic import jobs.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
	TempDir  string        `yaml:"temp_dir" mapstructure:"temp_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SourcesConfig holds the upstream data locations.
type SourcesConfig struct {
	PermitsURL        string `yaml:"permits_url" mapstructure:"permits_url"`
	PropertyValuesURL string `yaml:"property_values_url" mapstructure:"property_values_url"`
	RosterURL         string `yaml:"roster_url" mapstructure:"roster_url"`
	RosterState       string `yaml:"roster_state" mapstructure:"roster_state"`
	RosterMaxPages    int    `yaml:"roster_max_pages" mapstructure:"roster_max_pages"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig configures contractor name search.
type SearchConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// AnthropicConfig holds Anthropic API settings for contractor advice.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// MonitoringConfig configures freshness alerts.
type MonitoringConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL    string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	StaleAfter    time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
	IgnoreSources []string      `yaml:"ignore_sources" mapstructure:"ignore_sources"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PERMITCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8003)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("refresh.interval", 12*time.Hour)
	v.SetDefault("refresh.workers", 10)
	v.SetDefault("refresh.temp_dir", "/tmp/permitcheck")
	v.SetDefault("refresh.cache_ttl", time.Hour)
	v.SetDefault("sources.permits_url", "https://data.boston.gov/dataset/cd1ec3ff-6ebf-4a65-af68-8329eceab740/resource/6ddcd912-32a0-43df-9908-63574f8c7e77/download/tmpfpuiefir.csv")
	v.SetDefault("sources.property_values_url", "")
	v.SetDefault("sources.roster_url", "https://services.oca.state.ma.us/hic/licenseelist.aspx")
	v.SetDefault("sources.roster_state", "MA")
	v.SetDefault("sources.roster_max_pages", 0)
	v.SetDefault("sources.user_agent", "permitcheck/1.0")
	v.SetDefault("search.threshold", 75)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.5)
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval", 15*time.Minute)
	v.SetDefault("monitoring.stale_after", 36*time.Hour)
	v.SetDefault("monitoring.ignore_sources", []string{"property_values"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by a command mode.
// Known modes are "refresh", "serve" and "query".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "refresh":
		errs = append(errs, c.validateStore()...)
		if c.Refresh.Workers < 1 || c.Refresh.Workers > 100 {
			errs = append(errs, "refresh.workers must be between 1 and 100")
		}
		if c.Refresh.Interval <= 0 {
			errs = append(errs, "refresh.interval must be > 0")
		}
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Refresh.Workers < 1 || c.Refresh.Workers > 100 {
			errs = append(errs, "refresh.workers must be between 1 and 100")
		}
	case "query":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Monitoring.Enabled && c.Monitoring.StaleAfter < 0 {
		errs = append(errs, "monitoring.stale_after must be >= 0")
	}

	if c.Search.Threshold < 0 || c.Search.Threshold > 100 {
		errs = append(errs, "search.threshold must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: invalid for %s: %s", mode, strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (sqlite file path)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
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
