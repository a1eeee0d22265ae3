package main

import "time"

// liveness tracks the last successful exchange with the device.
//
// The zero value starts offline: lastSuccessAt is the zero time, so nothing
// is considered online until the first successful read or write.
type liveness struct {
	lastSuccessAt time.Time
	threshold     time.Duration
}

func newLiveness(threshold time.Duration) *liveness {
	if threshold <= 0 {
		threshold = defaultOnlineThresholdMS * time.Millisecond
	}
	return &liveness{threshold: threshold}
}

// recordSuccess advances lastSuccessAt. It never moves backwards.
func (l *liveness) recordSuccess(now time.Time) {
	if now.After(l.lastSuccessAt) {
		l.lastSuccessAt = now
	}
}

// isOnline reports whether the last success is younger than the threshold.
func (l *liveness) isOnline(now time.Time) bool {
	if l.lastSuccessAt.IsZero() {
		return false
	}
	return now.Sub(l.lastSuccessAt) < l.threshold
}

func (l *liveness) last() time.Time { return l.lastSuccessAt }
