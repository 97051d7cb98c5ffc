package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servotv/internal/api"
	"servotv/internal/auth"
	"servotv/internal/config"
	"servotv/internal/db"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	if err := bootstrapAdmin(database, cfg); err != nil {
		slog.Error("failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}

	cleanupService := db.NewCleanupService(
		db.NewPendingCodeRepository(database),
		db.NewStreamTokenRepository(database),
		db.NewPlayTokenRepository(database),
		db.NewRefreshTokenRepository(database),
	)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go cleanupService.Start(cleanupCtx)

	server, err := api.NewServer(cfg, database)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	cleanupCancel()

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// bootstrapAdmin seeds the first admin account when the admins table is
// empty, so a fresh deployment has a way in.
func bootstrapAdmin(database *db.DB, cfg *config.Config) error {
	admins := db.NewAdminRepository(database)

	count, err := admins.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if cfg.Bootstrap.AdminPassword == "" {
		slog.Warn("admins table is empty and no bootstrap password configured, skipping admin seed")
		return nil
	}

	passwordHash, err := auth.HashPassword(cfg.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}

	admin, err := admins.Create(cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminEmail, passwordHash, "superadmin")
	if err != nil {
		return err
	}

	slog.Info("seeded bootstrap admin", "username", admin.Username, "email", admin.Email)
	return nil
}
