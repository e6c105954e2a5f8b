package keypool

import (
	"time"

	"ai_chat/internal/models"
)

// Quota evaluation is pure: it never mutates stored state, it only tells the
// selector and recorder what should happen given a key snapshot and a clock
// reading.

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfMinute returns the start of t's minute.
func StartOfMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// DailyWindowStale reports whether the key's stored daily window predates
// the current calendar day, i.e. a daily rollover is due.
func DailyWindowStale(key *models.APIKey, now time.Time) bool {
	return key.LastResetAt.Before(StartOfDay(now))
}

// MinuteWindowStale reports whether the key's stored minute window predates
// the current minute.
func MinuteWindowStale(key *models.APIKey, now time.Time) bool {
	return key.LastMinuteResetAt.Before(StartOfMinute(now))
}

// HasHeadroom reports whether the key can absorb one more request on every
// limited axis. Counters whose window has rolled over are treated as zero
// even before the physical reset lands, so yesterday's usage never blocks a
// request made just after midnight. A nil limit is unlimited; any exhausted
// axis with a set limit disqualifies the key regardless of the others.
func HasHeadroom(key *models.APIKey, now time.Time) bool {
	dailyUsed := key.DailyUsed
	dailyTokenUsed := key.DailyTokenUsed
	if DailyWindowStale(key, now) {
		dailyUsed = 0
		dailyTokenUsed = 0
	}

	minuteUsed := key.MinuteUsed
	minuteTokenUsed := key.MinuteTokenUsed
	if MinuteWindowStale(key, now) {
		minuteUsed = 0
		minuteTokenUsed = 0
	}

	if key.DailyLimit != nil && dailyUsed >= *key.DailyLimit {
		return false
	}
	if key.MinuteLimit != nil && minuteUsed >= *key.MinuteLimit {
		return false
	}
	if key.DailyTokenLimit != nil && dailyTokenUsed >= *key.DailyTokenLimit {
		return false
	}
	if key.MinuteTokenLimit != nil && minuteTokenUsed >= *key.MinuteTokenLimit {
		return false
	}

	return true
}
