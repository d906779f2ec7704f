package repository

import (
	"context"

	"gorm.io/gorm"
)

// RepositoryManager combines all repositories and provides
// transactional composition across them via WithTx.
type RepositoryManager interface {
	Tenant() TenantRepository
	Agent() AgentRepository
	Callback() CallbackRepository
	Ledger() LedgerRepository
	Audit() AuditRepository
	Gateway() GatewayRepository
	Scaling() ScalingRepository

	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error

	Ping(ctx context.Context) error
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM.
type GormRepositoryManager struct {
	db       *gorm.DB
	tenant   *GormTenantRepository
	agent    *GormAgentRepository
	callback *GormCallbackRepository
	ledger   *GormLedgerRepository
	audit    *GormAuditRepository
	gateway  *GormGatewayRepository
	scaling  *GormScalingRepository
}

// NewGormRepositoryManager creates a new GORM repository manager bound
// to a single Postgres connection pool.
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:       db,
		tenant:   NewGormTenantRepository(db),
		agent:    NewGormAgentRepository(db),
		callback: NewGormCallbackRepository(db),
		ledger:   NewGormLedgerRepository(db),
		audit:    NewGormAuditRepository(db),
		gateway:  NewGormGatewayRepository(db),
		scaling:  NewGormScalingRepository(db),
	}
}

func (m *GormRepositoryManager) Tenant() TenantRepository     { return m.tenant }
func (m *GormRepositoryManager) Agent() AgentRepository       { return m.agent }
func (m *GormRepositoryManager) Callback() CallbackRepository { return m.callback }
func (m *GormRepositoryManager) Ledger() LedgerRepository     { return m.ledger }
func (m *GormRepositoryManager) Audit() AuditRepository       { return m.audit }
func (m *GormRepositoryManager) Gateway() GatewayRepository   { return m.gateway }
func (m *GormRepositoryManager) Scaling() ScalingRepository   { return m.scaling }

// WithTx executes fn within a database transaction; every repository
// obtained from the repos argument shares that transaction, so (for
// example) a ledger debit and its audit event either both commit or
// both roll back together.
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection.
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
