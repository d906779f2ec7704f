package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Ladder(t *testing.T) {
	assert.Equal(t, 15*time.Minute, Backoff(1))
	assert.Equal(t, time.Hour, Backoff(2))
	assert.Equal(t, 4*time.Hour, Backoff(3))
	assert.Equal(t, 4*time.Hour, Backoff(10))
}

func TestCallbackRequest_PriorityScore(t *testing.T) {
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	base := &CallbackRequest{Priority: PriorityNormal}
	assert.Equal(t, 20, base.PriorityScore(now))

	withAttempts := &CallbackRequest{Priority: PriorityNormal, Attempts: 2}
	assert.Equal(t, 30, withAttempts.PriorityScore(now))

	overdue := &CallbackRequest{
		Priority:      PriorityHigh,
		NextAttemptAt: timePtr(now.Add(-time.Minute)),
	}
	assert.Equal(t, 30+20, overdue.PriorityScore(now))

	vip := &CallbackRequest{Priority: PriorityVIP}
	assert.Greater(t, vip.PriorityScore(now), base.PriorityScore(now))
}

func TestCallbackRequest_IsOverdue(t *testing.T) {
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	notYet := &CallbackRequest{NextAttemptAt: timePtr(now.Add(time.Minute))}
	assert.False(t, notYet.IsOverdue(now))

	past := &CallbackRequest{NextAttemptAt: timePtr(now.Add(-time.Minute))}
	assert.True(t, past.IsOverdue(now))

	scheduledPast := &CallbackRequest{ScheduledTime: timePtr(now.Add(-time.Second))}
	assert.True(t, scheduledPast.IsOverdue(now))
}

func TestCallbackRequest_IsExpired(t *testing.T) {
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	notExpired := &CallbackRequest{WindowEnd: now.Add(time.Minute)}
	assert.False(t, notExpired.IsExpired(now))

	expired := &CallbackRequest{WindowEnd: now.Add(-time.Minute)}
	assert.True(t, expired.IsExpired(now))

	noWindow := &CallbackRequest{}
	assert.False(t, noWindow.IsExpired(now))
}

func timePtr(t time.Time) *time.Time { return &t }
