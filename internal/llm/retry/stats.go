package retry

import (
	"sync/atomic"
	"time"
)

// retryStats provides thread-safe retry metrics using atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64
	successfulRetries       atomic.Int64
	failedRetries           atomic.Int64
	successfulFirstAttempts atomic.Int64
	maxBackoff              atomic.Int64 // nanoseconds
}

// Stats holds aggregated metrics for retry middleware activity.
type Stats struct {
	TotalAttempts           int64         `json:"total_attempts"`
	SuccessfulRetries       int64         `json:"successful_retries"`
	FailedRetries           int64         `json:"failed_retries"`
	SuccessfulFirstAttempts int64         `json:"successful_first_attempts"`
	MaxBackoff              time.Duration `json:"max_backoff"`
}

func (s *retryStats) recordBackoff(backoff time.Duration) {
	n := backoff.Nanoseconds()
	for {
		current := s.maxBackoff.Load()
		if n <= current || s.maxBackoff.CompareAndSwap(current, n) {
			return
		}
	}
}

func (s *retryStats) snapshot() Stats {
	return Stats{
		TotalAttempts:           s.totalAttempts.Load(),
		SuccessfulRetries:       s.successfulRetries.Load(),
		FailedRetries:           s.failedRetries.Load(),
		SuccessfulFirstAttempts: s.successfulFirstAttempts.Load(),
		MaxBackoff:              time.Duration(s.maxBackoff.Load()),
	}
}
