package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/trc20watch/service/config"
	"github.com/brojonat/trc20watch/service/dedup"
	"github.com/brojonat/trc20watch/service/ingest"
	"github.com/brojonat/trc20watch/service/metrics"
	natspkg "github.com/brojonat/trc20watch/service/nats"
	"github.com/brojonat/trc20watch/service/notify"
	"github.com/brojonat/trc20watch/service/server"
	"github.com/brojonat/trc20watch/service/tronscan"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting watcher",
		"watch_address", cfg.WatchAddress,
		"token_contract", cfg.TokenContract,
		"min_notify_amount", cfg.MinNotifyAmount,
		"poll_interval", cfg.PollInterval,
		"store_backend", cfg.StoreBackend,
		"log_level", cfg.LogLevel,
	)

	// Setup context cancelled by SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics registry shared by every component and served on /metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Telegram credentials are checked before anything is polled
	telegram, err := notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken,
		&http.Client{Timeout: notify.DefaultTelegramTimeout}, logger)
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}
	bot, err := telegram.GetMe(ctx)
	if err != nil {
		logger.Error("telegram bot token rejected", "error", err)
		os.Exit(1)
	}
	logger.Info("telegram bot authorized", "bot_username", bot.Username)

	if chat, err := telegram.GetChat(ctx, cfg.TelegramChannelID); err != nil {
		logger.Warn("telegram channel not reachable, notifications may fail",
			"channel_id", cfg.TelegramChannelID,
			"error", err,
		)
	} else {
		logger.Info("telegram channel reachable", "channel_id", cfg.TelegramChannelID, "title", chat.Title)
	}

	// Dedup store
	store, err := dedup.Open(ctx, dedup.Options{
		Backend:     cfg.StoreBackend,
		Path:        cfg.StorePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		Address:     cfg.WatchAddress,
	}, logger)
	if err != nil {
		logger.Error("failed to open dedup store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Provider client
	var candidates []tronscan.Candidate
	if cfg.TronscanCandidatesFile != "" {
		candidates, err = tronscan.LoadCandidatesFile(cfg.TronscanCandidatesFile, cfg.TronscanBaseURL)
		if err != nil {
			logger.Error("failed to load tronscan candidates", "path", cfg.TronscanCandidatesFile, "error", err)
			os.Exit(1)
		}
	}
	provider := tronscan.NewClient(tronscan.Options{
		BaseURL:    cfg.TronscanBaseURL,
		Address:    cfg.WatchAddress,
		Contract:   cfg.TokenContract,
		APIKey:     cfg.TronscanAPIKey,
		Timeout:    cfg.TronscanTimeout,
		Candidates: candidates,
	}, m, logger)
	logger.Info("initialized tronscan client",
		"base_url", cfg.TronscanBaseURL,
		"candidates", len(provider.Candidates()),
		"api_key", cfg.TronscanAPIKey != "",
	)

	// Optional NATS event sink
	var publisher ingest.Publisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("NATS_URL not set, transfer events will not be published")
	}

	loop := ingest.New(cfg.WatchConfig(), ingest.Deps{
		Fetcher:   provider,
		Store:     store,
		Notifier:  telegram,
		Formatter: notify.NewHTMLFormatter(cfg.ExplorerURL),
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
	}, ingest.Options{
		ChannelID: cfg.TelegramChannelID,
		SendDelay: cfg.SendDelay,
	})

	httpServer := server.New(cfg.ServerAddr, loop, registry, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return httpServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("watcher shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
