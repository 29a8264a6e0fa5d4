package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"animepicker/internal/bot"
	"animepicker/internal/config"
	"animepicker/internal/generator"
	"animepicker/internal/remote"
	"animepicker/internal/scheduler"
	"animepicker/internal/session"
	"animepicker/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(log)

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

	provider, err := newProvider(cfg)
	if err != nil {
		log.Error("open sync backend", "backend", cfg.SyncBackend, "error", err)
		os.Exit(1)
	}

	gen, err := generator.NewFromSettings(generator.Settings{
		Provider:  cfg.AIProvider,
		APIKey:    cfg.AIAPIKey,
		Model:     cfg.AIModel,
		BaseURL:   cfg.AIBaseURL,
		MaxTokens: cfg.AIMaxTokens,
		Timeout:   cfg.AITimeout,
	}, generator.WithLogger(log))
	var rec bot.Recommender
	switch {
	case errors.Is(err, generator.ErrNoAPIKey):
		log.Warn("no AI_API_KEY set, /recommend and /info are disabled")
	case err != nil:
		log.Error("create generator", "provider", cfg.AIProvider, "error", err)
		os.Exit(1)
	default:
		rec = gen
		log.Info("generator ready", "provider", gen.Provider(), "model", gen.Model())
	}

	// The bot is created after the manager but before any session is opened.
	var b *bot.Bot
	mgr := session.NewManager(store, provider,
		session.WithLogger(log),
		session.WithQuiet(cfg.SyncDebounce),
		session.WithInterval(cfg.SyncInterval),
		session.WithSyncTimeout(cfg.SyncTimeout),
		session.WithNotifier(func(account string) scheduler.Notifier { return b.Notifier(account) }),
	)

	b, err = bot.New(cfg.TelegramBotToken, cfg, mgr, rec, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "sync_backend", cfg.SyncBackend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		mgr.Run(ctx)
	}()

	b.Run(ctx)
	<-done

	log.Info("bot stopped")
}

func newProvider(cfg *config.Config) (remote.Provider, error) {
	if cfg.SyncBackend == config.SyncBackendDrive {
		return remote.NewDriveProvider(cfg.DriveBaseURL, cfg.SyncTimeout), nil
	}
	if err := os.MkdirAll(cfg.SyncDir, 0o750); err != nil {
		return nil, err
	}
	return remote.NewDirProvider(afero.NewOsFs(), cfg.SyncDir), nil
}

func newLogger(level, file string) *slog.Logger {
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

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
}
