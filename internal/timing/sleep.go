// Package timing provides timer helpers for scripts.
package timing

import "time"

// Sleep returns a channel that is closed once at least d has elapsed.
// Non-positive durations close the channel on the next scheduler tick,
// never before Sleep returns. There is no way to abort a sleep; select
// on the channel alongside another signal instead.
func Sleep(d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if d <= 0 {
		go func() { close(done) }()
		return done
	}
	time.AfterFunc(d, func() { close(done) })
	return done
}

// SleepMillis is Sleep with the duration given in milliseconds
func SleepMillis(ms float64) <-chan struct{} {
	return Sleep(time.Duration(ms * float64(time.Millisecond)))
}
