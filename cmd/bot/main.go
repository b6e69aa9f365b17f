package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"keyword_bot/internal/bot"
	"keyword_bot/internal/bulk"
	"keyword_bot/internal/config"
	"keyword_bot/internal/dedup"
	"keyword_bot/internal/matcher"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/notifier"
	"keyword_bot/internal/pipeline"
	"keyword_bot/internal/relation"
	"keyword_bot/internal/storage"
	"keyword_bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot api", "error", err)
		os.Exit(1)
	}
	log.Info("authorized", "username", api.Self.UserName)

	m := metrics.New()
	pool := worker.New(worker.Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		MaxAttempts: cfg.MaxAttempts,
		Observer:    m,
	}, log.With("component", "worker"))

	registry := relation.New(store, log.With("component", "relation"))
	dedupFilter := dedup.New(dedup.NewMemoryStore(cfg.DedupWindow), cfg.DedupWindow, log.With("component", "dedup"))
	processor := pipeline.New(
		matcher.New(store, registry, log.With("component", "matcher")),
		dedupFilter,
		notifier.NewTelegram(api, cfg.SendRate, log.With("component", "notifier")),
		m,
		log.With("component", "pipeline"),
	)

	b := bot.New(api, bot.Deps{
		Store:    store,
		Registry: registry,
		Bulk:     bulk.NewRunner(store, pool, log.With("component", "bulk")),
		Queue:    pool,
		Messages: processor,
		Metrics:  m,
	}, cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "workers", cfg.Workers, "dedup_window", dedupFilter.Window())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, m, store, log.With("component", "metrics"))
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		b.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
