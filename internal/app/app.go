// Package app wires configuration into the stores, transports and gate
// shared by the gatekeeper binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/audit"
	"github.com/closetloop/gatekeeper/internal/chat"
	"github.com/closetloop/gatekeeper/internal/config"
	"github.com/closetloop/gatekeeper/internal/feed"
	"github.com/closetloop/gatekeeper/internal/gate"
	"github.com/closetloop/gatekeeper/internal/logger"
	"github.com/closetloop/gatekeeper/internal/messaging"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
	"github.com/closetloop/gatekeeper/internal/strike"
)

// App holds every long-lived dependency of a gatekeeper process.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Redis  *redis.Client
	NATS   *messaging.NATSClient
	Audit  *audit.Store // nil when postgres.url is empty
	Feed   *feed.Hub    // nil when the feed is disabled
	Gate   *gate.Gate
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:    cfg.Level,
		Format:   cfg.Format,
		FilePath: cfg.File,
	})
}

// GateConfig maps configuration onto the gate's settings.
func GateConfig(cfg *config.Config) gate.Config {
	rl := cfg.RateLimit
	return gate.Config{
		HistoryScope: cfg.Moderation.HistoryScope,
		RateLimit:    rl.Enabled,
		MessageRule:  ratelimit.RuleMessage.WithLimits(rl.Message.Limit, rl.Message.Window),
		ReviewRule:   ratelimit.RuleReview.WithLimits(rl.Review.Limit, rl.Review.Window),
		ProfileRule:  ratelimit.RuleProfile.WithLimits(rl.Profile.Limit, rl.Profile.Window),
		Strikes:      cfg.Strikes.Enabled,
	}
}

// Build connects to Redis, NATS and, when configured, PostgreSQL, and
// assembles the gate. name identifies the process to NATS.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, name string) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := a.Redis.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: connect redis %s: %w", cfg.Redis.Addr, err)
	}

	natsCfg := messaging.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          name,
		ReconnectWait: cfg.NATS.ReconnectWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
	}
	a.NATS, err = messaging.NewNATSClient(natsCfg, log.Logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	deps := gate.Deps{
		History:    chat.NewStore(a.Redis, cfg.Moderation.HistorySize, cfg.Moderation.HistoryTTL),
		Dispatcher: a.NATS,
		Strikes:    strike.NewStore(a.Redis),
		Limiter:    ratelimit.NewLimiter(a.Redis, log.WithComponent("ratelimit").Logger),
	}

	if cfg.Postgres.URL != "" {
		if cfg.Postgres.Migrate {
			if err := audit.Migrate(cfg.Postgres.URL); err != nil {
				a.Close()
				return nil, fmt.Errorf("app: %w", err)
			}
			log.Info("audit migrations applied")
		}
		db, err := audit.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.Audit = audit.NewStore(db, log.WithComponent("audit").Logger)
		deps.Audit = a.Audit
	} else {
		log.Warn("postgres.url not set, audit log disabled")
	}

	if cfg.Feed.Enabled {
		a.Feed = feed.NewHub(cfg.Feed.MaxSubscribers, log.WithComponent("feed").Logger)
		deps.Feed = a.Feed
	}

	a.Gate = gate.New(GateConfig(cfg), deps, log)

	log.Info("gatekeeper dependencies ready",
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Bool("audit_enabled", a.Audit != nil),
		zap.Bool("feed_enabled", a.Feed != nil),
		zap.String("history_scope", cfg.Moderation.HistoryScope),
	)
	return a, nil
}

// Close releases everything Build opened. It is safe on a partial App.
func (a *App) Close() {
	if a.Feed != nil {
		a.Feed.Close()
	}
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			a.Log.Warn("audit close failed", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

// WatchConfig applies log level changes from the config file while the
// process runs.
func WatchConfig(loader *config.Loader, log *logger.Logger) {
	loader.Watch(func(cfg *config.Config) {
		if err := log.SetLevel(cfg.Logging.Level); err != nil {
			log.Warn("config reload: bad log level", zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("log_level", cfg.Logging.Level))
	}, func(err error) {
		log.Warn("config reload rejected", zap.Error(err))
	})
}
