package presence

import "time"

// SessionSeconds returns the whole seconds elapsed between the start of
// a session and now, clamped to zero when the clock runs backwards.
func SessionSeconds(joinedAt, now time.Time) int64 {
	secs := int64(now.Sub(joinedAt) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// FoldSession accumulates one completed session into a running total.
func FoldSession(totalBefore, sessionSeconds int64) int64 {
	return totalBefore + sessionSeconds
}

// LiveStudyTime is the member's true elapsed study time at `now`:
// completed sessions plus the open one while the member is online.
func LiveStudyTime(total int64, active bool, joinedAt, now time.Time) int64 {
	if !active {
		return total
	}
	return FoldSession(total, SessionSeconds(joinedAt, now))
}
