// Package config loads gatekeeper configuration from a YAML file and
// GATEKEEPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// GATEKEEPER_REDIS_ADDR overrides redis.addr.
const EnvPrefix = "GATEKEEPER"

// Loader reads a Config and can watch its file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An empty configPath searches the default
// locations for config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/gatekeeper/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v, GetDefaults())
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the config file (a missing file is not an error), applies
// environment overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := GetDefaults()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// Watch calls onChange with the reloaded config whenever the file changes.
// Reloads that fail validation are passed to onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("config: reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// setDefaults registers every key so AutomaticEnv can override keys that do
// not appear in the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.name", d.NATS.Name)
	v.SetDefault("nats.reconnect_wait", d.NATS.ReconnectWait)
	v.SetDefault("nats.max_reconnects", d.NATS.MaxReconnects)
	v.SetDefault("postgres.url", d.Postgres.URL)
	v.SetDefault("postgres.migrate", d.Postgres.Migrate)
	v.SetDefault("moderation.history_size", d.Moderation.HistorySize)
	v.SetDefault("moderation.history_ttl", d.Moderation.HistoryTTL)
	v.SetDefault("moderation.history_scope", d.Moderation.HistoryScope)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.message.limit", d.RateLimit.Message.Limit)
	v.SetDefault("rate_limit.message.window", d.RateLimit.Message.Window)
	v.SetDefault("rate_limit.review.limit", d.RateLimit.Review.Limit)
	v.SetDefault("rate_limit.review.window", d.RateLimit.Review.Window)
	v.SetDefault("rate_limit.profile.limit", d.RateLimit.Profile.Limit)
	v.SetDefault("rate_limit.profile.window", d.RateLimit.Profile.Window)
	v.SetDefault("rate_limit.ip_rate", d.RateLimit.IPRate)
	v.SetDefault("rate_limit.ip_burst", d.RateLimit.IPBurst)
	v.SetDefault("strikes.enabled", d.Strikes.Enabled)
	v.SetDefault("feed.enabled", d.Feed.Enabled)
	v.SetDefault("feed.max_subscribers", d.Feed.MaxSubscribers)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// validateConfig validates the loaded configuration.
func validateConfig(c *Config) error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}
	if c.Moderation.HistorySize <= 0 {
		return fmt.Errorf("moderation.history_size must be positive, got %d", c.Moderation.HistorySize)
	}
	if c.Moderation.HistoryScope != "sender" && c.Moderation.HistoryScope != "conversation" {
		return fmt.Errorf("invalid moderation.history_scope: %s (must be sender or conversation)", c.Moderation.HistoryScope)
	}
	if c.RateLimit.Enabled {
		for name, r := range map[string]Rule{"message": c.RateLimit.Message, "review": c.RateLimit.Review, "profile": c.RateLimit.Profile} {
			if r.Limit <= 0 || r.Window <= 0 {
				return fmt.Errorf("rate_limit.%s needs a positive limit and window", name)
			}
		}
	}
	return nil
}
