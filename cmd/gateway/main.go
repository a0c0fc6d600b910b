package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/api"
	"github.com/closetloop/gatekeeper/internal/app"
	"github.com/closetloop/gatekeeper/internal/config"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check http://<addr>/health and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatekeeper gateway %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting gatekeeper gateway",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Build(ctx, cfg, log, "gatekeeper-gateway")
	if err != nil {
		log.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer deps.Close()

	app.WatchConfig(loader, log)

	opts := api.Options{}
	if deps.Feed != nil {
		opts.Feed = deps.Feed
	}
	stopSweeper := make(chan struct{})
	if cfg.RateLimit.IPRate > 0 {
		opts.IPLimiter = ratelimit.NewIPLimiter(cfg.RateLimit.IPRate, cfg.RateLimit.IPBurst)
		go opts.IPLimiter.RunSweeper(time.Minute, stopSweeper)
	}

	server := api.New(cfg.Server, deps.Gate, opts, log)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stopCancel()
		if err := server.Stop(stopCtx); err != nil {
			log.Error("failed to shut down server gracefully", zap.Error(err))
		}
	}
	close(stopSweeper)
	log.Info("gateway stopped")
}

// performHealthCheck performs a health check against a running gateway.
func performHealthCheck(addr string) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("Health check passed")
}
