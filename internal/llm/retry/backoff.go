package retry

import "time"

// maxShift caps the exponent so the delay cannot overflow time.Duration.
const maxShift = 16

// Backoff returns the delay that follows the zero-based attempt index:
// 2^attempt * unit. No jitter: a single sequential worker has nobody to
// desynchronize from.
func Backoff(attempt int, unit time.Duration) time.Duration {
	if attempt < 0 || unit <= 0 {
		return 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	return unit << attempt
}
