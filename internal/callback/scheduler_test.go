package callback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
)

// fakeCallbackRepo is an in-memory stand-in for GormCallbackRepository,
// enough to exercise the outcome state machine without a database.
type fakeCallbackRepo struct {
	repository.CallbackRepository
	byID map[string]*domain.CallbackRequest
}

func newFakeCallbackRepo() *fakeCallbackRepo {
	return &fakeCallbackRepo{byID: map[string]*domain.CallbackRequest{}}
}

func (f *fakeCallbackRepo) GetByID(ctx context.Context, id string) (*domain.CallbackRequest, error) {
	return f.byID[id], nil
}

func (f *fakeCallbackRepo) Update(ctx context.Context, c *domain.CallbackRequest) error {
	f.byID[c.ID] = c
	return nil
}

// fakeRepos embeds the real interface (nil) and overrides only
// Callback(), so every other accessor would panic if ever called —
// a deliberate signal that a test exercising them needs its own fake.
type fakeRepos struct {
	repository.RepositoryManager
	callback *fakeCallbackRepo
}

func (f *fakeRepos) Callback() repository.CallbackRepository { return f.callback }

func newTestService(repo *fakeCallbackRepo) *Service {
	return NewService(&fakeRepos{callback: repo}, nil)
}

func TestCompleteAttempt_ConnectedAndResolved_Completes(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-1", Status: domain.CallbackInProgress, WindowEnd: now.Add(time.Hour), MaxAttempts: 3}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeConnected, true, now)

	require.NoError(t, err)
	assert.Equal(t, domain.CallbackCompleted, repo.byID[req.ID].Status)
}

func TestCompleteAttempt_ConnectedNotResolved_SchedulesFollowUp(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-2", Status: domain.CallbackInProgress, WindowEnd: now.Add(time.Hour), MaxAttempts: 3}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeConnected, false, now)

	require.NoError(t, err)
	updated := repo.byID[req.ID]
	assert.Equal(t, domain.CallbackPending, updated.Status)
	assert.True(t, updated.FollowUpRequired)
	require.NotNil(t, updated.NextAttemptAt)
	assert.Equal(t, now.Add(15*time.Minute), *updated.NextAttemptAt)
}

func TestCompleteAttempt_NoAnswerUnderMaxAttempts_RetriesWithBackoff(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-3", Status: domain.CallbackInProgress, WindowEnd: now.Add(time.Hour), Attempts: 0, MaxAttempts: 3}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeNoAnswer, false, now)

	require.NoError(t, err)
	updated := repo.byID[req.ID]
	assert.Equal(t, domain.CallbackPending, updated.Status)
	assert.Equal(t, 1, updated.Attempts)
	require.NotNil(t, updated.NextAttemptAt)
	assert.Equal(t, now.Add(15*time.Minute), *updated.NextAttemptAt)
}

func TestCompleteAttempt_AtMaxAttempts_Fails(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-4", Status: domain.CallbackInProgress, WindowEnd: now.Add(time.Hour), Attempts: 2, MaxAttempts: 3}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeBusy, false, now)

	require.NoError(t, err)
	updated := repo.byID[req.ID]
	assert.Equal(t, domain.CallbackFailed, updated.Status)
	assert.Equal(t, 3, updated.Attempts)
}

func TestCompleteAttempt_PastWindowEnd_Expires(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-5", Status: domain.CallbackInProgress, WindowEnd: now.Add(-time.Minute), MaxAttempts: 3}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeConnected, true, now)

	require.NoError(t, err)
	assert.Equal(t, domain.CallbackExpired, repo.byID[req.ID].Status)
}

func TestCompleteAttempt_NotInProgress_Conflict(t *testing.T) {
	repo := newFakeCallbackRepo()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	req := &domain.CallbackRequest{ID: "cb-6", Status: domain.CallbackPending, WindowEnd: now.Add(time.Hour)}
	repo.byID[req.ID] = req

	sched := NewScheduler(newTestService(repo), nil, nil, nil)
	err := sched.CompleteAttempt(context.Background(), req.ID, domain.OutcomeConnected, true, now)

	assert.Error(t, err)
}
