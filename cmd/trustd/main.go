package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tripmesh/trustd/internal/accountage"
	"github.com/tripmesh/trustd/internal/api"
	"github.com/tripmesh/trustd/internal/bus"
	"github.com/tripmesh/trustd/internal/cache"
	"github.com/tripmesh/trustd/internal/config"
	"github.com/tripmesh/trustd/internal/engine"
	"github.com/tripmesh/trustd/internal/identity"
	"github.com/tripmesh/trustd/internal/ledger"
	"github.com/tripmesh/trustd/internal/metrics"
	"github.com/tripmesh/trustd/internal/price"
	"github.com/tripmesh/trustd/internal/processor"
	"github.com/tripmesh/trustd/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("trustd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	if cfg.APIToken == "" {
		slog.Error("TRUSTD_API_TOKEN is required")
		os.Exit(1)
	}

	// NATS
	busClient, err := bus.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Collectors
	m := metrics.New(prometheus.DefaultRegisterer)

	walletClient := ledger.NewClient(cfg.LedgerRPCURL, m, slog.Default())

	if cfg.IdentityClientID == "" || cfg.IdentityClientSecret == "" {
		slog.Warn("identity credentials not configured, refreshes will fail transiently")
	}
	identityClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityClientID,
		cfg.IdentityClientSecret, m, slog.Default())

	// Engine + processor
	eng := engine.New(db, walletClient, identityClient, busClient,
		accountage.New(accountage.DefaultTable()), m, slog.Default())
	proc := processor.New(eng, slog.Default())

	if err := busClient.Subscribe(bus.SubjectSignalWildcard, proc.HandleSignalMutation); err != nil {
		slog.Error("failed to subscribe to signal events", "error", err)
		os.Exit(1)
	}
	if err := busClient.Subscribe(bus.SubjectRecomputeRequest, proc.HandleRecomputeRequest); err != nil {
		slog.Error("failed to subscribe to recompute requests", "error", err)
		os.Exit(1)
	}

	// Price lookup
	priceCache := cache.New[float64](time.Duration(cfg.PriceCacheTTLSeconds) * time.Second)
	priceClient := price.NewClient(cfg.PriceAPIURL, priceCache, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, eng, db, priceClient, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := busClient.Publish(bus.SubjectServiceRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("trustd ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("trustd stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
