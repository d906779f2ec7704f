package session

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

// fakeTenantRepo is an in-memory stand-in for GormTenantRepository.
type fakeTenantRepo struct {
	repository.TenantRepository
	byTenantID map[string]*domain.Tenant
}

func (f *fakeTenantRepo) GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return f.byTenantID[tenantID], nil
}

// fakeAgentRepo is an in-memory stand-in for GormAgentRepository, enough
// to exercise ReserveSlot's compare-and-set semantics via the real
// directory.Service/routing.Engine.
type fakeAgentRepo struct {
	repository.AgentRepository
	byID map[string]*domain.Agent
}

func (f *fakeAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	return f.byID[id], nil
}

func (f *fakeAgentRepo) ListAvailable(ctx context.Context, tenantID, departmentID string) ([]*domain.Agent, error) {
	var out []*domain.Agent
	for _, a := range f.byID {
		if a.TenantID != tenantID {
			continue
		}
		if departmentID != "" && a.DepartmentID != departmentID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAgentRepo) ReserveSlot(ctx context.Context, id string) (bool, error) {
	a, ok := f.byID[id]
	if !ok || a.CurrentCalls >= a.Capacity {
		return false, nil
	}
	a.CurrentCalls++
	return true, nil
}

func (f *fakeAgentRepo) ReleaseSlot(ctx context.Context, id string) error {
	if a, ok := f.byID[id]; ok && a.CurrentCalls > 0 {
		a.CurrentCalls--
	}
	return nil
}

// fakeLedgerRepo is an in-memory stand-in for GormLedgerRepository.
type fakeLedgerRepo struct {
	repository.LedgerRepository
	txs []*domain.CreditTransaction
}

func (f *fakeLedgerRepo) RecordTransaction(ctx context.Context, tx *domain.CreditTransaction) (bool, error) {
	for _, existing := range f.txs {
		if existing.CallID != "" && existing.CallID == tx.CallID && existing.Reason == tx.Reason {
			return false, nil
		}
	}
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

// fakeAuditRepo is an in-memory stand-in for GormAuditRepository.
type fakeAuditRepo struct {
	events []*domain.AuditEvent
}

func (f *fakeAuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAuditRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	return f.events, nil
}

// fakeRepos embeds the real interface (nil) and overrides only the
// accessors this test's collaborators need; WithTx runs fn directly,
// with no real transaction semantics.
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

// fakeCarrier records every outbound command the Orchestrator issues.
type fakeCarrier struct {
	played  []string
	bridged []string
	recorded []string
	failPlay bool
}

func (c *fakeCarrier) Play(ctx context.Context, sessionID, utterance string) error {
	c.played = append(c.played, utterance)
	if c.failPlay {
		return assertErr
	}
	return nil
}

func (c *fakeCarrier) Bridge(ctx context.Context, sessionID, agentEndpoint string) error {
	c.bridged = append(c.bridged, agentEndpoint)
	return nil
}

func (c *fakeCarrier) Record(ctx context.Context, sessionID, voicemailBoxID string) (*domain.VoicemailRecord, error) {
	c.recorded = append(c.recorded, voicemailBoxID)
	return &domain.VoicemailRecord{BoxID: voicemailBoxID, StorageURI: "voicemail://" + voicemailBoxID + "/" + sessionID, RecordedAt: time.Now()}, nil
}

var assertErr = &testCarrierError{}

type testCarrierError struct{}

func (*testCarrierError) Error() string { return "carrier play failed" }

func testTenant(tenantID string) *domain.Tenant {
	return &domain.Tenant{
		TenantID:            tenantID,
		Active:              true,
		MonthlyMinuteQuota:  3600,
		CreditWarningPct:    90,
		MaxTransferAttempts: 1,
		BillingCycleStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newHarness(t *testing.T, tenant *domain.Tenant, agents ...*domain.Agent) (*ledger.Service, *routing.Engine, *fakeCarrier, event.EventBus) {
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
	dir := directory.NewService(repos.agent)
	engine := routing.NewEngine(dir)
	carrier := &fakeCarrier{}
	bus := event.NewEventBus()
	return ledgerSvc, engine, carrier, bus
}

func newAuditService(t *testing.T) *audit.Service {
	t.Helper()
	return audit.NewService(&fakeAuditRepo{}, "test-salt")
}

func TestOpen_AdmitsActiveTenantWithBudget(t *testing.T) {
	tenant := testTenant("t-1")
	ledgerSvc, engine, carrier, bus := newHarness(t, tenant)
	aud := newAuditService(t)
	now := time.Now()

	o, err := Open(context.Background(), "sess-1", tenant, "caller-1", engine, ledgerSvc, aud, bus, carrier, now)

	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, o.Session().State)
	assert.Contains(t, carrier.played, "greeting")
}

func TestOpen_RejectsInactiveTenant(t *testing.T) {
	tenant := testTenant("t-1")
	tenant.Active = false
	ledgerSvc, engine, carrier, bus := newHarness(t, tenant)
	aud := newAuditService(t)

	_, err := Open(context.Background(), "sess-1", tenant, "caller-1", engine, ledgerSvc, aud, bus, carrier, time.Now())

	require.Error(t, err)
}

func TestOpen_RejectsExhaustedBudget(t *testing.T) {
	tenant := testTenant("t-1")
	tenant.MonthlyMinuteQuota = 0
	ledgerSvc, engine, carrier, bus := newHarness(t, tenant)
	aud := newAuditService(t)

	_, err := Open(context.Background(), "sess-1", tenant, "caller-1", engine, ledgerSvc, aud, bus, carrier, time.Now())

	require.Error(t, err)
}

func openedSession(t *testing.T, tenant *domain.Tenant, agents ...*domain.Agent) (*Orchestrator, *fakeCarrier) {
	t.Helper()
	ledgerSvc, engine, carrier, bus := newHarness(t, tenant, agents...)
	aud := newAuditService(t)
	o, err := Open(context.Background(), "sess-1", tenant, "caller-1", engine, ledgerSvc, aud, bus, carrier, time.Now())
	require.NoError(t, err)
	return o, carrier
}

func TestCallerUtterance_MovesGreetingToAITurn(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)
	now := time.Now()

	err := o.CallerUtterance(context.Background(), "hello", now)

	require.NoError(t, err)
	assert.Equal(t, domain.StateAITurn, o.Session().State)
}

func TestCallerUtterance_BargesInOnInFlightAIUtterance(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)
	now := time.Now()
	require.NoError(t, o.CallerUtterance(context.Background(), "hello", now))
	require.NoError(t, o.AIToken(context.Background(), "thinking", false, now.Add(time.Second)))

	err := o.CallerUtterance(context.Background(), "actually wait", now.Add(2*time.Second))

	require.NoError(t, err)
	sess := o.Session()
	require.Len(t, sess.Turns, 3)
	assert.True(t, sess.Turns[1].Cancelled)
}

func TestAIToken_ExhaustingAttemptsForcesRouting(t *testing.T) {
	tenant := testTenant("t-1")
	tenant.MaxTransferAttempts = 1
	agent := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, _ := openedSession(t, tenant, agent)
	now := time.Now()
	require.NoError(t, o.CallerUtterance(context.Background(), "hello", now))
	require.NoError(t, o.AIToken(context.Background(), "a", true, now.Add(time.Second)))
	require.NoError(t, o.CallerUtterance(context.Background(), "again", now.Add(2*time.Second)))

	err := o.AIToken(context.Background(), "b", false, now.Add(3*time.Second))

	require.NoError(t, err)
	sess := o.Session()
	assert.Equal(t, domain.StateRouting, sess.State)
	assert.Equal(t, "agent-1", sess.AssignedAgentID)
}

func TestRequestTransfer_OffersAvailableAgent(t *testing.T) {
	tenant := testTenant("t-1")
	agent := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, _ := openedSession(t, tenant, agent)

	err := o.RequestTransfer(context.Background(), "caller_asked", "", time.Now())

	require.NoError(t, err)
	sess := o.Session()
	assert.Equal(t, domain.StateRouting, sess.State)
	assert.Equal(t, "agent-1", sess.AssignedAgentID)
}

func TestRequestTransfer_FallsBackToVoicemailWhenNoAgent(t *testing.T) {
	tenant := testTenant("t-1")
	o, carrier := openedSession(t, tenant)

	err := o.RequestTransfer(context.Background(), "caller_asked", "", time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVoicemail, o.Session().State)
	assert.NotEmpty(t, carrier.recorded)
}

func TestRequestTransfer_FallsBackToCallbackCaptureWhenFlagged(t *testing.T) {
	tenant := testTenant("t-1")
	tenant.FeatureFlags = domain.JSONB{"callback_on_no_agent": true}
	o, carrier := openedSession(t, tenant)

	err := o.RequestTransfer(context.Background(), "caller_asked", "", time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StateCallbackCapture, o.Session().State)
	assert.Empty(t, carrier.recorded)
}

func TestAgentAccept_BridgesCall(t *testing.T) {
	tenant := testTenant("t-1")
	agent := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, carrier := openedSession(t, tenant, agent)
	require.NoError(t, o.RequestTransfer(context.Background(), "caller_asked", "", time.Now()))

	err := o.AgentAccept(context.Background(), "agent-1", time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StateBridged, o.Session().State)
	assert.Contains(t, carrier.bridged, "agent-1")
}

func TestAgentAccept_RejectsWithoutOutstandingOffer(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)

	err := o.AgentAccept(context.Background(), "agent-1", time.Now())

	require.Error(t, err)
}

func TestAgentReject_OffersNextCandidate(t *testing.T) {
	// Rejection releases the agent's slot back to the directory, so a
	// second round of ReserveBest may legally re-offer the same agent;
	// what matters here is that the attempt stays in routing with a
	// fresh offer rather than falling back.
	tenant := testTenant("t-1")
	tenant.MaxTransferAttempts = 3
	a1 := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1, RoutingWeight: 2,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	a2 := &domain.Agent{ID: "agent-2", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1, RoutingWeight: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, _ := openedSession(t, tenant, a1, a2)
	require.NoError(t, o.RequestTransfer(context.Background(), "caller_asked", "", time.Now()))
	require.Equal(t, "agent-1", o.Session().AssignedAgentID)

	err := o.AgentReject(context.Background(), "agent-1", time.Now())

	require.NoError(t, err)
	assert.NotEmpty(t, o.Session().AssignedAgentID)
	assert.Equal(t, domain.StateRouting, o.Session().State)
}

func TestAgentReject_FallsBackWhenExhausted(t *testing.T) {
	tenant := testTenant("t-1")
	tenant.MaxTransferAttempts = 1
	a1 := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, carrier := openedSession(t, tenant, a1)
	require.NoError(t, o.RequestTransfer(context.Background(), "caller_asked", "", time.Now()))

	err := o.AgentReject(context.Background(), "agent-1", time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVoicemail, o.Session().State)
	assert.NotEmpty(t, carrier.recorded)
}

func TestCallerHangup_Terminates(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)

	err := o.CallerHangup(context.Background(), time.Now().Add(time.Second))

	require.NoError(t, err)
	sess := o.Session()
	assert.Equal(t, domain.StateTerminated, sess.State)
	assert.Equal(t, domain.OutcomeCallerHangup, sess.Outcome)
}

func TestTerminate_IsIdempotent(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)
	now := time.Now()

	require.NoError(t, o.CallerHangup(context.Background(), now))
	err := o.AgentHangup(context.Background(), now.Add(time.Second))

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCallerHangup, o.Session().Outcome)
}

func TestAIProviderError_FallsBackToRouting(t *testing.T) {
	tenant := testTenant("t-1")
	agent := &domain.Agent{ID: "agent-1", TenantID: "t-1", Status: domain.AgentAvailable, Capacity: 1,
		WorkSchedule: domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: everyDayAllHours()}}
	o, carrier := openedSession(t, tenant, agent)
	require.NoError(t, o.CallerUtterance(context.Background(), "hello", time.Now()))

	err := o.AIProviderError(context.Background(), assertErr, time.Now().Add(time.Second))

	require.NoError(t, err)
	assert.Equal(t, domain.StateRouting, o.Session().State)
	assert.Contains(t, carrier.played, cannedFallbackUtterance)
}

func TestCheckTimeout_ExpiresStaleState(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)

	err := o.CheckTimeout(context.Background(), time.Minute, time.Now().Add(2*time.Minute))

	require.NoError(t, err)
	sess := o.Session()
	assert.Equal(t, domain.StateTerminated, sess.State)
	assert.Equal(t, domain.OutcomeTimeout, sess.Outcome)
}

func TestCheckTimeout_NoOpWithinBudget(t *testing.T) {
	tenant := testTenant("t-1")
	o, _ := openedSession(t, tenant)

	err := o.CheckTimeout(context.Background(), time.Hour, time.Now().Add(time.Second))

	require.NoError(t, err)
	assert.NotEqual(t, domain.StateTerminated, o.Session().State)
}

func everyDayAllHours() map[string]domain.Window {
	w := domain.Window{StartMinute: 0, EndMinute: 24 * 60}
	return map[string]domain.Window{
		"mon": w, "tue": w, "wed": w, "thu": w, "fri": w, "sat": w, "sun": w,
	}
}
