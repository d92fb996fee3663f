package eligibility

import (
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/utafrali/redeemables/internal/domain"
)

// withinRecurrence reports whether now falls inside every configured window
// kind of the validity. An unloadable timezone fails closed.
func withinRecurrence(v *domain.Voucher, now time.Time) bool {
	validity := v.Validity
	if validity.IsZero() {
		return true
	}

	loc := time.UTC
	if validity.Timezone != "" {
		l, err := time.LoadLocation(validity.Timezone)
		if err != nil {
			return false
		}
		loc = l
	}
	local := now.In(loc)

	if len(validity.DaysOfWeek) > 0 && !slices.Contains(validity.DaysOfWeek, local.Weekday()) {
		return false
	}
	if len(validity.Daily) > 0 && !withinAnySlot(validity.Daily, local) {
		return false
	}
	if tf := validity.Timeframe; tf != nil {
		anchor := v.CreatedAt
		if v.StartDate != nil {
			anchor = *v.StartDate
		}
		if !withinTimeframe(*tf, anchor, now) {
			return false
		}
	}
	return true
}

func withinAnySlot(slots []domain.TimeSlot, local time.Time) bool {
	minute := local.Hour()*60 + local.Minute()
	for _, s := range slots {
		if len(s.DaysOfWeek) > 0 && !slices.Contains(s.DaysOfWeek, local.Weekday()) {
			continue
		}
		start, ok := parseClock(s.StartTime)
		if !ok {
			continue
		}
		end, ok := parseClock(s.ExpirationTime)
		if !ok {
			continue
		}
		if start <= end {
			if minute >= start && minute < end {
				return true
			}
			continue
		}
		// Slot wraps past midnight, e.g. 22:00-02:00.
		if minute >= start || minute < end {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	if h == 24 && m != 0 {
		return 0, false
	}
	return h*60 + m, true
}

// withinTimeframe checks a rolling window: active for duration out of every
// interval, counted from anchor.
func withinTimeframe(tf domain.Timeframe, anchor, now time.Time) bool {
	if tf.IntervalSeconds <= 0 || tf.DurationSeconds <= 0 {
		return false
	}
	elapsed := now.Sub(anchor)
	if elapsed < 0 {
		return false
	}
	interval := time.Duration(tf.IntervalSeconds) * time.Second
	phase := elapsed % interval
	return phase < time.Duration(tf.DurationSeconds)*time.Second
}
