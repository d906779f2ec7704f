package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpload/voicecore-ai-sub002/internal/audit"
	"github.com/xpload/voicecore-ai-sub002/internal/directory"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/event"
	"github.com/xpload/voicecore-ai-sub002/internal/ledger"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
)

type fakeTenantRepo struct {
	repository.TenantRepository
	byTenantID map[string]*domain.Tenant
}

func (f *fakeTenantRepo) GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return f.byTenantID[tenantID], nil
}

type fakeAgentRepo struct {
	repository.AgentRepository
	byID map[string]*domain.Agent
}

func (f *fakeAgentRepo) ListAvailable(ctx context.Context, tenantID, departmentID string) ([]*domain.Agent, error) {
	var out []*domain.Agent
	for _, a := range f.byID {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgentRepo) ReserveSlot(ctx context.Context, id string) (bool, error) {
	a, ok := f.byID[id]
	if !ok || a.CurrentCalls >= a.Capacity || a.Status != domain.AgentAvailable {
		return false, nil
	}
	a.CurrentCalls++
	a.Status = domain.AgentBusy
	return true, nil
}

func (f *fakeAgentRepo) ReleaseSlot(ctx context.Context, id string) error {
	if a, ok := f.byID[id]; ok {
		if a.CurrentCalls > 0 {
			a.CurrentCalls--
		}
		if a.Status == domain.AgentBusy && a.CurrentCalls < a.Capacity {
			a.Status = domain.AgentAvailable
		}
	}
	return nil
}

type fakeLedgerRepo struct {
	repository.LedgerRepository
	txs []*domain.CreditTransaction
}

func (f *fakeLedgerRepo) RecordTransaction(ctx context.Context, tx *domain.CreditTransaction) (bool, error) {
	f.txs = append(f.txs, tx)
	return true, nil
}

func (f *fakeLedgerRepo) CurrentUsageSeconds(ctx context.Context, tenantID string, cycleStart interface{}) (int64, error) {
	var total int64
	for _, tx := range f.txs {
		if tx.TenantID == tenantID {
			total += tx.Seconds
		}
	}
	return total, nil
}

type fakeAuditRepo struct{ events []*domain.AuditEvent }

func (f *fakeAuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAuditRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	return f.events, nil
}

type fakeRepos struct {
	repository.RepositoryManager
	tenant *fakeTenantRepo
	agent  *fakeAgentRepo
	ledger *fakeLedgerRepo
}

func (f *fakeRepos) Tenant() repository.TenantRepository { return f.tenant }
func (f *fakeRepos) Agent() repository.AgentRepository   { return f.agent }
func (f *fakeRepos) Ledger() repository.LedgerRepository { return f.ledger }
func (f *fakeRepos) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.RepositoryManager) error) error {
	return fn(ctx, f)
}

type fakeCarrier struct {
	bridged []string
	played  []string
}

func (c *fakeCarrier) Play(ctx context.Context, sessionID, utterance string) error {
	c.played = append(c.played, utterance)
	return nil
}

func (c *fakeCarrier) Bridge(ctx context.Context, sessionID, agentEndpoint string) error {
	c.bridged = append(c.bridged, agentEndpoint)
	return nil
}

func (c *fakeCarrier) Record(ctx context.Context, sessionID, voicemailBoxID string) (*domain.VoicemailRecord, error) {
	return &domain.VoicemailRecord{BoxID: voicemailBoxID, StorageURI: "voicemail://" + voicemailBoxID + "/" + sessionID}, nil
}

func testTenant(tenantID string) *domain.Tenant {
	return &domain.Tenant{
		TenantID:            tenantID,
		Active:              true,
		MonthlyMinuteQuota:  3600,
		CreditWarningPct:    90,
		MaxTransferAttempts: 2,
		BillingCycleStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestService(t *testing.T, tenant *domain.Tenant, agents ...*domain.Agent) (*Service, *fakeCarrier) {
	t.Helper()
	agentByID := map[string]*domain.Agent{}
	for _, a := range agents {
		agentByID[a.ID] = a
	}
	repos := &fakeRepos{
		tenant: &fakeTenantRepo{byTenantID: map[string]*domain.Tenant{tenant.TenantID: tenant}},
		agent:  &fakeAgentRepo{byID: agentByID},
		ledger: &fakeLedgerRepo{},
	}
	ledgerSvc := ledger.NewService(repos)
	engine := routing.NewEngine(directory.NewService(repos.agent))
	auditSvc := audit.NewService(&fakeAuditRepo{}, "test-salt")
	carrier := &fakeCarrier{}
	svc := NewService(repos, engine, ledgerSvc, auditSvc, event.NewEventBus(), carrier, nil)
	return svc, carrier
}

func TestOpenSession_RegistersAndTracksSession(t *testing.T) {
	svc, carrier := newTestService(t, testTenant("t-1"))

	o, err := svc.OpenSession(context.Background(), "sess-1", "t-1", "caller-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, o.Session().State)
	assert.Contains(t, carrier.played, "greeting")

	got, ok := svc.Get("sess-1")
	require.True(t, ok)
	assert.Same(t, o, got)
	assert.Equal(t, 1, svc.Count())
}

func TestCallerHangup_ClosesAndForgetsSession(t *testing.T) {
	svc, _ := newTestService(t, testTenant("t-1"))
	_, err := svc.OpenSession(context.Background(), "sess-1", "t-1", "caller-1")
	require.NoError(t, err)

	err = svc.CallerHangup(context.Background(), "sess-1")

	require.NoError(t, err)
	_, ok := svc.Get("sess-1")
	assert.False(t, ok)
	assert.Equal(t, 0, svc.Count())
}

func TestLookup_UnknownSessionReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t, testTenant("t-1"))

	err := svc.CallerHangup(context.Background(), "missing")

	require.Error(t, err)
}

func TestDispatch_BridgesReservedAgent(t *testing.T) {
	tenant := testTenant("t-1")
	agent := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	svc, carrier := newTestService(t, tenant, agent)
	req := &domain.CallbackRequest{ID: "cb-1", TenantID: "t-1", CallerFingerprint: "caller-hash"}

	err := svc.Dispatch(context.Background(), req, "agent-1")

	require.NoError(t, err)
	o, ok := svc.Get("callback-cb-1")
	require.True(t, ok)
	assert.Equal(t, domain.StateBridged, o.Session().State)
	assert.Contains(t, carrier.bridged, "agent-1")
}

func TestCleanupExpired_TerminatesStaleSessions(t *testing.T) {
	svc, _ := newTestService(t, testTenant("t-1"))
	_, err := svc.OpenSession(context.Background(), "sess-1", "t-1", "caller-1")
	require.NoError(t, err)

	n := svc.CleanupExpired(context.Background(), -time.Second)

	assert.Equal(t, 1, n)
	_, ok := svc.Get("sess-1")
	assert.False(t, ok)
}

func TestCountForTenant_OnlyCountsMatchingTenant(t *testing.T) {
	svc, _ := newTestService(t, testTenant("t-1"))
	_, err := svc.OpenSession(context.Background(), "sess-1", "t-1", "caller-1")
	require.NoError(t, err)
	_, err = svc.OpenSession(context.Background(), "sess-2", "t-1", "caller-2")
	require.NoError(t, err)

	assert.Equal(t, 2, svc.CountForTenant("t-1"))
	assert.Equal(t, 0, svc.CountForTenant("t-other"))
	assert.Equal(t, 2, svc.Count())
}

func everyDayAllHours() map[string]domain.Window {
	w := domain.Window{StartMinute: 0, EndMinute: 24 * 60}
	return map[string]domain.Window{
		"mon": w, "tue": w, "wed": w, "thu": w, "fri": w, "sat": w, "sun": w,
	}
}
