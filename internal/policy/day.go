package policy

import "keeper-vault/internal/domain"

// DayIndex returns the day number of a Unix timestamp.
// Floor division keeps pre-epoch timestamps on the correct side of midnight.
func DayIndex(ts int64) int64 {
	day := ts / domain.SecondsPerDay
	if ts%domain.SecondsPerDay < 0 {
		day--
	}
	return day
}

// IsNewDay reports whether now falls on a later day than last (both Unix seconds).
func IsNewDay(lastTs, nowTs int64) bool {
	return DayIndex(nowTs) > DayIndex(lastTs)
}

// NeedsRollover reports whether now falls on a later day than the stored day index.
func NeedsRollover(lastDay, nowTs int64) bool {
	return DayIndex(nowTs) > lastDay
}
