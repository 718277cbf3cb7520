package trip

import (
	"fmt"
	"time"
)

// Remaining is the time left in the matching window anchored at the
// server-issued createdAt, clamped at zero.
func Remaining(createdAt, now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(createdAt)
	if left < 0 {
		return 0
	}
	return left
}

// FormatCountdown renders d as MM:SS, truncating partial seconds.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
