package market

import (
	"strconv"
	"strings"
	"time"
)

// IntervalSeconds parses "1m", "15m", "4h", "1d", "1w" into the interval
// length in seconds. Returns (0, false) on invalid input.
func IntervalSeconds(timeframe string) (int64, bool) {
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		return 0, false
	}
	unit := timeframe[len(timeframe)-1]
	numStr := strings.TrimSpace(timeframe[:len(timeframe)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return n * 60, true
	case 'h':
		return n * 3600, true
	case 'd':
		return n * 86400, true
	case 'w':
		return n * 7 * 86400, true
	default:
		return 0, false
	}
}

// IntervalDuration is IntervalSeconds expressed as a time.Duration.
func IntervalDuration(timeframe string) (time.Duration, bool) {
	sec, ok := IntervalSeconds(timeframe)
	if !ok {
		return 0, false
	}
	return time.Duration(sec) * time.Second, true
}

// IsAligned reports whether ts sits on an open-timestamp boundary.
func IsAligned(ts, step int64) bool {
	return step > 0 && ts%step == 0
}

// AlignDown rounds ts down to the nearest boundary.
func AlignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	return ts - ts%step
}

// LastClosedOpen returns the open timestamp of the most recent candle that
// has fully closed by `now`. The bar opening at AlignDown(now) is still
// forming, so the answer is one step before it.
func LastClosedOpen(now, step int64) int64 {
	return AlignDown(now, step) - step
}
