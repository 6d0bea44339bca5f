package main

import (
	"context"
	"fmt"

	"github.com/Totarae/shortlink/internal/config"
	"github.com/Totarae/shortlink/internal/database"
	"github.com/Totarae/shortlink/internal/repositories"
	"github.com/Totarae/shortlink/internal/service"
	"github.com/Totarae/shortlink/internal/storage"
	"go.uber.org/zap"
)

// openStore подключает хранилище по режиму конфигурации.
// Возвращаемая функция освобождает ресурсы хранилища.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Repository, func(), error) {
	switch cfg.Mode {
	case config.ModeDatabase:
		if err := database.Migrate(cfg.DatabaseDSN, logger); err != nil {
			return nil, nil, err
		}
		db, err := database.NewDB(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewLinkRepository(db), db.Close, nil

	case config.ModeRedis:
		client, err := repositories.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		logger.Info("Подключение к Redis установлено", zap.String("prefix", cfg.RedisPrefix))
		return repositories.NewRedisRepository(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil

	default:
		store, err := storage.New(cfg.FileStoragePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка открытия хранилища: %w", err)
		}
		logger.Info("Используется локальное хранилище",
			zap.String("mode", cfg.Mode),
			zap.Int("links", store.Len()),
		)
		return store, func() { _ = store.Close() }, nil
	}
}
