package utils

import (
	"time"
)

// timestampCutoff separates epoch seconds from epoch millis. Second values stay
// below it until the year 5138.
const timestampCutoff = 100000000000

// FormatTime formats time in ISO 8601 format
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseTime parses ISO 8601 formatted time string
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, timeStr)
}

// ValidityToTime converts a validity time to time.Time. Values in seconds and
// in milliseconds are both accepted.
func ValidityToTime(validityTime int64) time.Time {
	if validityTime < timestampCutoff {
		return time.Unix(validityTime, 0)
	}
	return time.UnixMilli(validityTime)
}

// IsExpiredAt checks whether a validity time has passed at now. Zero means no expiry.
func IsExpiredAt(validityTime int64, now time.Time) bool {
	if validityTime == 0 {
		return false
	}
	return now.After(ValidityToTime(validityTime))
}
