package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ziyaaktas/tab-limiter/internal/action"
	"github.com/ziyaaktas/tab-limiter/internal/alert"
	"github.com/ziyaaktas/tab-limiter/internal/api"
	"github.com/ziyaaktas/tab-limiter/internal/badge"
	"github.com/ziyaaktas/tab-limiter/internal/browser"
	"github.com/ziyaaktas/tab-limiter/internal/config"
	"github.com/ziyaaktas/tab-limiter/internal/engine"
	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/netutil"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/session"
	"github.com/ziyaaktas/tab-limiter/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		slog.Debug("log directory creation failed", "error", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   "logs/tablimitd.log",
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	slog.Info("starting tab limiter daemon")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"launch_browser", cfg.LaunchBrowser,
		"data_dir", cfg.DataDir,
		"api_bind", cfg.APIBindAddr,
		"redis_addr", cfg.RedisAddr,
		"notify_endpoint", cfg.NotifyEndpoint,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	syncStore, err := storage.NewFileStore(filepath.Join(cfg.DataDir, "options.json"))
	if err != nil {
		slog.Error("failed to open sync store", "error", err)
		os.Exit(1)
	}

	var sessionStore storage.Store
	if cfg.RedisAddr != "" {
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "tablimiter:session", 24*time.Hour)
		if err != nil {
			slog.Error("failed to connect session store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				slog.Warn("session store close failed", "error", err)
			}
		}()
		sessionStore = redisStore
	} else {
		sessionStore = storage.NewMemStore()
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.LaunchConfig{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	client := browser.NewClient(cfg.GetCDPURL())
	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "error", err)
		slog.Info("make sure a browser is running with remote debugging enabled, or set TABLIMITER_LAUNCH_BROWSER=true")
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
	}()

	provider := options.NewProvider(syncStore)
	state := session.NewState(sessionStore, client)
	exec := action.NewExecutor(client)
	notifier := alert.NewNotifier(cfg.NotifyEndpoint, nil)
	bd := badge.New(client)
	feed := engine.NewFeed()

	journal := storage.NewJournal(filepath.Join(cfg.DataDir, "journal"), 256, 50)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}()

	// Every limiter decision lands in the on-disk journal.
	journalCh, journalCancel := feed.Subscribe()
	defer journalCancel()
	go func() {
		for ev := range journalCh {
			if ev.Kind == "badge" {
				continue
			}
			_ = journal.Write(ev)
		}
	}()

	eng := engine.New(provider, client, state, exec, notifier, bd, feed)
	subs := eng.Subscriptions()

	// First run against this data dir counts as the install; every later
	// start is a plain session startup.
	if _, err := syncStore.Get(ctx, options.KeyDefaultOptions); errors.Is(err, storage.ErrNotFound) {
		engine.Dispatch(ctx, subs, engine.Installed, inventory.Tab{})
	} else {
		engine.Dispatch(ctx, subs, engine.Startup, inventory.Tab{})
	}

	if err := client.Watch(ctx, subs); err != nil {
		slog.Error("failed to watch browser targets", "error", err)
		os.Exit(1)
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.APIBindAddr, cfg.APIFallbackAddrs)
	if err != nil {
		slog.Error("no usable api bind address", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(eng)}
	go func() {
		slog.Info("api listening", "addr", bindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
		}
	}()

	slog.Info("tab limiter running")
	<-sigCh
	slog.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api shutdown failed", "error", err)
	}

	cancel()
	slog.Info("tab limiter stopped")
}
