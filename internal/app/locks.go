package app

import (
	"fmt"
	"strconv"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/locks"
	"pulse-engine/internal/redis"
)

// initializeLocks selects the lock manager. A configured Redis address
// means completion messages may arrive at any instance, so locks must be
// shared; otherwise in-process locks suffice.
func (app *App) initializeLocks() error {
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Locks: in-process")
		app.Locks = locks.NewMemoryManager()
		return nil
	}

	db, _ := strconv.Atoi(app.Config.RedisDB)
	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       db,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	app.Logger.Info("Locks: Redis",
		logging.Field{Key: "address", Value: app.Config.RedisAddress})
	app.RedisClient = client
	app.Locks = locks.NewRedisManager(client)
	return nil
}
