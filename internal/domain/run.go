package domain

import "time"

// Duration sanity bounds for a single sprint, in milliseconds. Anything
// outside this window is not a physically plausible sprint time.
const (
	MinRunDurationMs int64 = 50
	MaxRunDurationMs int64 = 600_000
)

// DailyRunCap is the maximum number of accepted runs per user per
// calendar day in the league timezone.
const DailyRunCap = 10

// Run is one recorded sprint attempt. The team a run counts toward is
// never stored here: it is resolved at read time from the submitting
// user's current team, so reassigning a player moves their whole run
// history to the new team on the next read.
type Run struct {
	ID         int64
	Username   string
	DurationMs int64
	CreatedAt  time.Time
}

// ValidDuration reports whether d is inside the sprint sanity bounds.
func ValidDuration(d int64) bool {
	return d >= MinRunDurationMs && d <= MaxRunDurationMs
}
