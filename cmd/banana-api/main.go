package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adu4862/banana-api/internal/api"
	"github.com/adu4862/banana-api/internal/bitbrowser"
	"github.com/adu4862/banana-api/internal/config"
	"github.com/adu4862/banana-api/internal/lovart"
	"github.com/adu4862/banana-api/internal/mail"
	"github.com/adu4862/banana-api/internal/pool"
	"github.com/adu4862/banana-api/internal/reaper"
	"github.com/adu4862/banana-api/internal/session"
	"github.com/adu4862/banana-api/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "path to banana.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, running in open access mode")
	}

	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mailer, err := mail.New(mail.Options{
		APIURL:       cfg.Mail.APIURL,
		APIToken:     cfg.Mail.APIToken,
		BridgeURL:    cfg.Mail.BridgeURL,
		BridgeSecret: cfg.Mail.BridgeSecret,
		Domains:      cfg.Mail.Domains,
		Password:     cfg.Mail.Password,
		Proxy:        cfg.Mail.Proxy,
	}, logger)
	if err != nil {
		logger.Error("mail client", "error", err)
		os.Exit(1)
	}

	proxy, err := bitbrowser.ParseProxy(cfg.BitBrowser.Proxy)
	if err != nil {
		logger.Error("bitbrowser proxy", "error", err)
		os.Exit(1)
	}
	bb := bitbrowser.New(cfg.BitBrowser.APIURL, cfg.BitBrowser.WindowIDs, cfg.BitBrowser.RequestsPerSecond, proxy, logger)

	site := lovart.Options{
		BaseURL:        cfg.Lovart.BaseURL,
		MinPoints:      cfg.Lovart.MinPoints,
		ViewportWidth:  cfg.Lovart.ViewportWidth,
		ViewportHeight: cfg.Lovart.ViewportHeight,
		ResultWait:     time.Duration(cfg.Lovart.ResultWaitSecs) * time.Second,
	}
	prov := lovart.NewProvisioner(site, bb, mailer, st, nil, logger)
	exec := lovart.NewExecutor(site, logger)

	p := pool.New(pool.Options{
		Size:             cfg.Pool.Size,
		PollInterval:     cfg.Pool.PollInterval(),
		ProbeTimeout:     cfg.Pool.ProbeTimeout(),
		ProvisionTimeout: cfg.Pool.ProvisionTimeout(),
		TeardownTimeout:  cfg.Pool.TeardownTimeout(),
	}, prov, bb, logger)

	mgr := session.NewManager(session.Options{
		AcquireTimeout: cfg.Pool.AcquireTimeout(),
		TaskTimeout:    cfg.Pool.TaskTimeout(),
		MaxRetries:     cfg.Pool.MaxRetries,
	}, p, exec, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpr := reaper.New(p, st, reaper.Options{
		Interval:    cfg.Pool.CleanupInterval(),
		IdleTimeout: cfg.Pool.IdleTimeout(),
		Retention:   time.Duration(cfg.TaskRetentionHours) * time.Hour,
	}, logger)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		rpr.Run(ctx)
	}()

	srv := api.NewServer(cfg, mgr, logger)

	httpServer := &http.Server{
		Addr:        cfg.Listen,
		Handler:     srv.Handler(),
		ReadTimeout: 30 * time.Second,
		// Generations hold the request open until the result is captured.
		WriteTimeout: cfg.Pool.RequestBudget() + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigCh
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}

		cancel()
		<-reaperDone

		teardownCtx, teardownCancel := context.WithTimeout(context.Background(), cfg.Pool.TeardownTimeout()+10*time.Second)
		defer teardownCancel()
		p.Close(teardownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen, "pool_size", cfg.Pool.Size)
	fmt.Fprintf(os.Stderr, "\n  banana-api ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
