package segment

import "time"

const day = 24 * time.Hour

var windowLengths = map[TimeWindow]time.Duration{
	WindowLast7Days:  7 * day,
	WindowLast30Days: 30 * day,
	WindowLast90Days: 90 * day,
	WindowLastYear:   365 * day,
}

// ResolveTimeWindow maps a relative window to its absolute cutoff. The
// second result is false when the window has no lower bound: allTime,
// customRange and unknown windows.
func ResolveTimeWindow(window TimeWindow, now time.Time) (time.Time, bool) {
	d, ok := windowLengths[window]
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-d), true
}

// Duration returns the lookback length of a bounded window.
func (w TimeWindow) Duration() (time.Duration, bool) {
	d, ok := windowLengths[w]
	return d, ok
}

// IsKnown reports whether w is one of the declared windows.
func (w TimeWindow) IsKnown() bool {
	switch w {
	case WindowLast7Days, WindowLast30Days, WindowLast90Days, WindowLastYear, WindowAllTime, WindowCustomRange:
		return true
	}
	return false
}
