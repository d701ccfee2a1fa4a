// Package streak computes daily completion streaks.
package streak

import (
	"time"

	"github.com/questie/progression-engine/pkg/common"
)

// Result is the streak state after one completion.
type Result struct {
	Current int
	Longest int
}

// Advance returns the streak after a completion on today.
//
//   - last completion yesterday: current+1
//   - last completion today: current unchanged (at least 1)
//   - otherwise, including no prior completion: 1
//
// Longest never decreases. Days are compared as UTC calendar dates, so both
// times should already carry the caller's calendar date. A last completion
// after today is treated as today.
func Advance(last *time.Time, today time.Time, current, longest int) Result {
	next := 1
	if last != nil {
		switch days := common.DaysBetween(*last, today, time.UTC); {
		case days <= 0:
			next = max(current, 1)
		case days == 1:
			next = current + 1
		}
	}

	return Result{
		Current: next,
		Longest: max(longest, next),
	}
}
