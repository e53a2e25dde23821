package app

import (
	"fmt"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/storage"
	"pulse-engine/internal/storage/postgres"
	"pulse-engine/internal/storage/sqlite"
)

func init() {
	storage.RegisterFactory("sqlite", func(config storage.StorageConfig) (storage.Storage, error) {
		return sqlite.NewAdapter(config.(*sqlite.Config))
	})
	storage.RegisterFactory("postgres", func(config storage.StorageConfig) (storage.Storage, error) {
		return postgres.NewAdapter(config.(*postgres.Config))
	})
}

func (app *App) initializeStorage() error {
	var storageConfig storage.StorageConfig

	switch app.Config.DatabaseType {
	case "postgres", "postgresql":
		app.Logger.Info("Database: PostgreSQL",
			logging.Field{Key: "host", Value: app.Config.PostgresHost},
			logging.Field{Key: "port", Value: app.Config.PostgresPort},
			logging.Field{Key: "database", Value: app.Config.PostgresDB},
		)
		storageConfig = &postgres.Config{
			ConnectionString: app.Config.PostgresConnectionString(),
		}
	default:
		app.Logger.Info("Database: SQLite",
			logging.Field{Key: "path", Value: app.Config.DatabasePath})
		storageConfig = &sqlite.Config{
			Path: app.Config.DatabasePath,
		}
	}

	if err := storageConfig.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	store, err := storage.New(storageConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Storage = store
	return nil
}
