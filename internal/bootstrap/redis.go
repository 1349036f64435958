package bootstrap

import (
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/linksync/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
)

// SetupRedis connects when Redis is enabled. A connection failure is logged
// and nil returned; callers fall back to process-local locks and an
// in-memory failure cache.
func SetupRedis(cfg *config.Config, log infralogger.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled, using process-local job locks")
		return nil
	}

	client, err := infraredis.NewClient(infraredis.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using process-local job locks",
			infralogger.String("address", cfg.Redis.Address),
			infralogger.Error(err),
		)
		return nil
	}

	log.Info("Redis connected", infralogger.String("address", cfg.Redis.Address))
	return client
}
