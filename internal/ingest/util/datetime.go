package util

import (
	"math"
	"strings"
	"time"
)

// DBLayout is how timestamps are stored in text columns (UTC, millisecond precision).
const DBLayout = "2006-01-02 15:04:05.000"

// EpochMsToUTC converts a log timestamp (milliseconds since the Unix epoch,
// with a fractional microsecond part) to UTC.
func EpochMsToUTC(ms float64) time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(ms / 1000)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// FormatDB renders t for a text column; the zero time renders as "".
func FormatDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DBLayout)
}

// ParseDB is the inverse of FormatDB. It also accepts seconds-only and RFC3339 values.
func ParseDB(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DBLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// LooksLikeEpochMs reports whether ms is plausibly wall-clock (after 2001)
// rather than relative to process start.
func LooksLikeEpochMs(ms float64) bool {
	return ms >= 1e12
}
