package repository

import (
	"fmt"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/config"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDatabaseConnection opens a GORM connection to Postgres and tunes
// the underlying connection pool per cfg.
func NewDatabaseConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logger.NewGORMWriter(), gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	return db, nil
}

// AutoMigrate runs schema migration for every persisted domain model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Tenant{},
		&domain.Department{},
		&domain.Agent{},
		&domain.CallbackRequest{},
		&domain.CallbackAttempt{},
		&domain.CreditTransaction{},
		&domain.AuditEvent{},
		&domain.ServiceEndpoint{},
		&domain.FailoverEvent{},
		&domain.ScalingPolicy{},
		&domain.ScalingEvent{},
	)
}

// SeedEndpoints ensures the HA Gateway has a ServiceEndpoint row for
// every URL in urls, used to bootstrap the pool from
// config.GatewayConfig.Endpoints on first boot. Existing rows (by URL)
// are left untouched so accumulated health/circuit state survives a
// restart.
func SeedEndpoints(db *gorm.DB, urls []string, healthCheckPath string, timeout time.Duration) error {
	for i, url := range urls {
		ep := domain.ServiceEndpoint{
			URL:             url,
			Priority:        i,
			Weight:          1,
			HealthCheckPath: healthCheckPath,
			Timeout:         timeout,
			Status:          domain.HealthUnknown,
			Circuit:         domain.CircuitClosed,
		}
		if err := db.Where(domain.ServiceEndpoint{URL: url}).FirstOrCreate(&ep).Error; err != nil {
			return fmt.Errorf("failed to seed service endpoint %s: %w", url, err)
		}
	}
	return nil
}

// NewRepositoryManager opens the database connection, runs migrations,
// and returns a ready-to-use RepositoryManager.
func NewRepositoryManager(cfg config.DatabaseConfig) (RepositoryManager, error) {
	db, err := NewDatabaseConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to run auto migration: %w", err)
	}

	return NewGormRepositoryManager(db), nil
}
