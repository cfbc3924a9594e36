package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackmichael/mastodon-triage/internal/config"
	"github.com/blackmichael/mastodon-triage/internal/domain"
	"github.com/blackmichael/mastodon-triage/internal/httpserver"
	"github.com/blackmichael/mastodon-triage/internal/mastodon"
	"github.com/blackmichael/mastodon-triage/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up the repository (implements both PostRepository and TagRepository)
	repo, err := sqlite.NewRepository(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.DBPath)

	client := mastodon.NewClient()

	triage, err := domain.NewTriageService(serverConfigs(cfg), repo, repo, client, cfg.PageLimit, logger)
	if err != nil {
		return fmt.Errorf("create triage service: %w", err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the background sync job when configured
	if cfg.SyncInterval > 0 {
		go triage.StartSyncJob(ctx, cfg.SyncInterval)
		logger.Info("background sync enabled", "interval", cfg.SyncInterval)
	}

	// Start the HTTP server
	server := httpserver.NewServer(cfg, triage, client, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "servers", triage.ServerSlugs())

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

func serverConfigs(cfg *config.Config) []domain.ServerConfig {
	servers := make([]domain.ServerConfig, 0, len(cfg.Servers))
	for slug, baseURL := range cfg.Servers {
		servers = append(servers, domain.ServerConfig{
			Slug:        slug,
			BaseURL:     baseURL,
			AccessToken: cfg.Tokens[slug],
		})
	}
	return servers
}
