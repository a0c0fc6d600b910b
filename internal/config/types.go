package config

import "time"

// Config represents the main configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Strikes    StrikesConfig    `mapstructure:"strikes"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig locates the Redis instance backing history, limits and strikes.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS connection settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

// PostgresConfig configures the audit log database. An empty URL disables it.
type PostgresConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// ModerationConfig tunes how history feeds the spam check.
type ModerationConfig struct {
	HistorySize  int           `mapstructure:"history_size"`
	HistoryTTL   time.Duration `mapstructure:"history_ttl"`
	HistoryScope string        `mapstructure:"history_scope"` // sender or conversation
}

// Rule is a fixed-window limit.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig holds per-sender Redis windows and the per-IP HTTP bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Message Rule    `mapstructure:"message"`
	Review  Rule    `mapstructure:"review"`
	Profile Rule    `mapstructure:"profile"`
	IPRate  float64 `mapstructure:"ip_rate"` // requests per second
	IPBurst int     `mapstructure:"ip_burst"`
}

// StrikesConfig toggles escalating mutes for contact-info violations.
type StrikesConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeedConfig controls the moderator live feed.
type FeedConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxSubscribers int  `mapstructure:"max_subscribers"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	File   string `mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults.
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "gatekeeper",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Postgres: PostgresConfig{
			Migrate: true,
		},
		Moderation: ModerationConfig{
			HistorySize:  10,
			HistoryTTL:   7 * 24 * time.Hour,
			HistoryScope: "sender",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Message: Rule{Limit: 10, Window: 10 * time.Second},
			Review:  Rule{Limit: 5, Window: time.Hour},
			Profile: Rule{Limit: 20, Window: time.Hour},
			IPRate:  20,
			IPBurst: 40,
		},
		Strikes: StrikesConfig{
			Enabled: true,
		},
		Feed: FeedConfig{
			Enabled:        true,
			MaxSubscribers: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
