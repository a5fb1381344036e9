// Package schedule decides which targets are due for a check.
package schedule

import (
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// FrequentMaxMinutes is the largest interval that gets the early-check allowance.
const FrequentMaxMinutes = 5

// IsDue reports whether target should be checked at now.
func IsDue(target monitor.Target, now time.Time) bool {
	if !target.IsActive {
		return false
	}
	if target.LastCheckedAt == nil {
		return true
	}
	elapsed := now.UTC().Sub(target.LastCheckedAt.UTC())
	threshold := target.Interval()
	if target.CheckIntervalMinutes <= FrequentMaxMinutes {
		// 80% of the interval, so a coarse ticker does not skip a whole cycle.
		threshold = threshold * 4 / 5
	}
	return elapsed >= threshold
}

// Due filters targets down to those that are due at now, preserving order.
func Due(targets []monitor.Target, now time.Time) []monitor.Target {
	out := make([]monitor.Target, 0, len(targets))
	for _, t := range targets {
		if IsDue(t, now) {
			out = append(out, t)
		}
	}
	return out
}
