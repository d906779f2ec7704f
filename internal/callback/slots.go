package callback

import (
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/domain"
)

// slotGranularity is the snap-to boundary inside a business-hours
// window (§4.3 "snapping to the next 15-minute boundary").
const slotGranularity = 15 * time.Minute

// nextAvailableSlot walks forward from after, day by day, up to
// maxAdvanceDays, looking for the first instant that both falls inside
// policy's business-hours window for that weekday and sits on a
// 15-minute boundary. Returns the zero time and false if nothing fits
// within the horizon.
func nextAvailableSlot(policy domain.BusinessHoursPolicy, after time.Time, maxAdvanceDays int) (time.Time, bool) {
	loc, err := time.LoadLocation(policy.Timezone)
	if err != nil {
		loc = time.UTC
	}
	cursor := after.In(loc)

	for day := 0; day <= maxAdvanceDays; day++ {
		date := cursor.AddDate(0, 0, day)
		window, ok := policy.WeeklySchedule[weekdayKey(date.Weekday())]
		if !ok {
			continue
		}

		dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		windowStart := dayStart.Add(time.Duration(window.StartMinute) * time.Minute)
		windowEnd := dayStart.Add(time.Duration(window.EndMinute) * time.Minute)

		candidate := windowStart
		if day == 0 && after.After(windowStart) {
			candidate = snapUp(after.In(loc), slotGranularity)
		}
		if candidate.Before(windowStart) {
			candidate = windowStart
		}
		if candidate.Before(windowEnd) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// snapUp rounds t forward to the next multiple of d.
func snapUp(t time.Time, d time.Duration) time.Time {
	rem := t.Sub(t.Truncate(d))
	if rem == 0 {
		return t
	}
	return t.Truncate(d).Add(d)
}

func weekdayKey(w time.Weekday) string {
	return [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}[w]
}
