package callback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

func mondayNineToFive() domain.BusinessHoursPolicy {
	return domain.BusinessHoursPolicy{
		Timezone: "UTC",
		WeeklySchedule: map[string]domain.Window{
			"mon": {StartMinute: 9 * 60, EndMinute: 17 * 60},
			"tue": {StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
	}
}

func TestNextAvailableSlot_SameDayWithinWindow(t *testing.T) {
	policy := mondayNineToFive()
	// Monday 10:07 should snap forward to 10:15.
	after := time.Date(2026, 8, 3, 10, 7, 0, 0, time.UTC)

	slot, ok := nextAvailableSlot(policy, after, 14)

	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 3, 10, 15, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_BeforeWindowUsesWindowStart(t *testing.T) {
	policy := mondayNineToFive()
	// Monday 06:00 is before the 09:00 window opens.
	after := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC)

	slot, ok := nextAvailableSlot(policy, after, 14)

	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_SkipsNonBusinessDay(t *testing.T) {
	policy := mondayNineToFive()
	// Sunday has no weekly schedule entry; next business day is Monday.
	after := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)

	slot, ok := nextAvailableSlot(policy, after, 14)

	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_AfterWindowRollsToNextDay(t *testing.T) {
	policy := mondayNineToFive()
	// Monday 18:00 is past close; only Tuesday is scheduled next.
	after := time.Date(2026, 8, 3, 18, 0, 0, 0, time.UTC)

	slot, ok := nextAvailableSlot(policy, after, 14)

	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_NoFitWithinHorizon(t *testing.T) {
	policy := domain.BusinessHoursPolicy{Timezone: "UTC", WeeklySchedule: map[string]domain.Window{}}
	after := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	_, ok := nextAvailableSlot(policy, after, 3)

	assert.False(t, ok)
}
