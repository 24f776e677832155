// Package main запускает HTTP-сервер сервиса донорства крови.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bloodbank-system/internal/config"
	"github.com/mmeshcher/bloodbank-system/internal/handler"
	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/seed"
	"github.com/mmeshcher/bloodbank-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.Open(cfg, logger)
	if err != nil {
		sugar.Fatalw("storage initialization error", "driver", cfg.StorageDriver, "error", err.Error())
	}

	if cfg.SeedFile != "" {
		if err := seedUsers(repo, cfg.SeedFile, logger); err != nil {
			repo.Close()
			sugar.Fatalw("seed error", "file", cfg.SeedFile, "error", err.Error())
		}
	}

	svc := service.NewService(repo, logger, service.WithMaxAcceptAttempts(cfg.MaxAcceptAttempts))
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое закрытие завершившихся акций
	g.Go(func() error {
		svc.RunCampExpiry(ctx, cfg.CampExpiryInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting bloodbank server", "addr", cfg.RunAddress, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func seedUsers(repo repository.Store, path string, logger *zap.Logger) error {
	f, err := seed.LoadFromPath(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := seed.Apply(ctx, repo, f.Models(time.Now().UTC()), logger)
	if err != nil {
		return err
	}
	logger.Info("users seeded", zap.Int("created", len(created)), zap.Int("total", len(f.Users)))
	return nil
}
