package config

// DatabaseConfig configures the Postgres connection used by
// internal/repository (gorm.io/driver/postgres).
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		DSN:             getEnvOrDefault("DATABASE_DSN", "host=localhost user=voicecore password=voicecore dbname=voicecore port=5432 sslmode=disable"),
		MaxOpenConns:    getEnvAsIntOrDefault("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsIntOrDefault("DATABASE_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvAsIntOrDefault("DATABASE_CONN_MAX_LIFETIME_MIN", 30),
	}
}
