// Точка входа Audio Server — backend хранения аудиозаписей.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/goaudiostore/internal/api/handlers"
	"github.com/bigkaa/goaudiostore/internal/config"
	"github.com/bigkaa/goaudiostore/internal/database"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/server"
	"github.com/bigkaa/goaudiostore/internal/service"
	"github.com/bigkaa/goaudiostore/internal/storage/blobstore"
	"github.com/bigkaa/goaudiostore/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Audio Server запускается",
		slog.String("version", version.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("metadata_backend", cfg.MetadataBackend),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Audio Server остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Blob Store
	store, err := blobstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("ошибка инициализации Blob Store: %w", err)
	}

	// 2. Metadata Store
	var (
		repo     repository.AudioRepository
		dbHealth handlers.ReadinessChecker
	)
	switch cfg.MetadataBackend {
	case config.MetadataBackendPostgres:
		// Connect ждёт PostgreSQL с повторами, поэтому идёт до миграций
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}

		repo = repository.NewAudioRepository(pool)
		dbHealth = database.NewReadinessChecker(pool)
	default:
		logger.Warn("Используется in-memory хранилище метаданных, данные не сохраняются между запусками")
		repo = repository.NewMemoryAudioRepository()
	}
	repo = repository.NewCachedAudioRepository(repo, cfg.CacheSize, cfg.CacheTTL)

	// 3. Сервисы
	audioSvc := service.NewAudioService(repo, store, cfg.UploadField, cfg.MaxFileSize, logger)
	if err := audioSvc.RefreshGauge(ctx); err != nil {
		logger.Warn("Не удалось обновить метрику количества записей", slog.String("error", err.Error()))
	}

	reconcileSvc := service.NewReconcileService(repo, store, service.ReconcileOptions{
		Interval:      cfg.ReconcileInterval,
		Grace:         cfg.ReconcileGrace,
		RemoveOrphans: cfg.ReconcileRemoveOrphans,
	}, logger)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 4. HTTP-сервер
	srv := server.New(cfg, logger, server.Handlers{
		Audios:      handlers.NewAudiosHandler(audioSvc, cfg.UploadField, cfg.MaxFileSize, cfg.PublicBaseURL),
		Uploads:     handlers.NewUploadsHandler(store),
		Health:      handlers.NewHealthHandler(cfg.DataDir, dbHealth),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc),
	})

	return srv.Run(ctx)
}
