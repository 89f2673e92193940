// Package schedule evaluates a queue's business-hours window against a
// timestamp. Evaluation is pure; logging and error reporting belong to the
// caller.
package schedule

import (
	"strconv"
	"strings"
	"time"
)

// Result is the admission decision for a queue at a point in time.
type Result int

const (
	// Admit means the queue may accept the conversation now.
	Admit Result = iota
	// RejectDay means the current weekday is not a working day.
	RejectDay
	// RejectHours means the time of day falls outside the work window.
	RejectHours
)

func (r Result) String() string {
	switch r {
	case Admit:
		return "admit"
	case RejectDay:
		return "reject_day"
	case RejectHours:
		return "reject_hours"
	default:
		return "unknown"
	}
}

// Hours is a queue's schedule configuration. Start and End are "HH:MM"
// time-of-day strings, nullable together. WorkDays maps weekday index
// (0 = Sunday) to availability; an absent or empty map never rejects.
type Hours struct {
	Start    *string
	End      *string
	WorkDays map[int]bool
}

// Evaluate decides whether a queue is open at now. Days are checked before
// hours and a day rejection short-circuits the hour check. The hour window is
// inclusive on both bounds; an inverted window (start after end) is never
// open. Malformed bounds fail open: a bound that does not parse imposes no
// hour restriction.
func Evaluate(h Hours, now time.Time) Result {
	if len(h.WorkDays) > 0 && !h.WorkDays[int(now.Weekday())] {
		return RejectDay
	}

	if h.Start == nil || h.End == nil {
		return Admit
	}
	start, startOK := parseClock(*h.Start)
	end, endOK := parseClock(*h.End)
	if !startOK || !endOK {
		return Admit
	}

	sec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if sec < start || sec > end {
		return RejectHours
	}
	return Admit
}

// parseClock converts "HH:MM" to seconds since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hours*3600 + minutes*60, true
}
