package config

import "github.com/xpload/voicecore-ai-sub002/pkg/redis"

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     getEnvOrDefault("REDIS_PORT", "6379"),
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       getEnvAsIntOrDefault("REDIS_DB", 0),
	}
}

// RedisConfig mirrors pkg/redis.RedisConfig, expressed in env-loadable
// form so callers that only need the settings don't have to import
// the client package.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ToRedisConfig converts to the pkg/redis constructor argument.
func (c RedisConfig) ToRedisConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		DB:       c.DB,
	}
}
