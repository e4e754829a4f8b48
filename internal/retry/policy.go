package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy controls how a failed unit of work (a queue entry, a batch chunk)
// is retried before it is abandoned.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DeadLetterPolicy is the processing-queue retry policy: 3 attempts, no
// priority decay, dead-letter on exhaustion (spec §4.5, §9).
func DeadLetterPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  5 * time.Second,
		BackoffFactor: 4.0,
		MaxDelay:      20 * time.Second,
	}
}

// BatchChunkPolicy is the LLM batch-chunk quota-exhaustion policy: 60s,
// 120s, 240s, up to 3 attempts (spec §4.3).
func BatchChunkPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  60 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      240 * time.Second,
	}
}

// SyncRetryPolicy is the per-city sync retry policy: 2 attempts, 5s then
// 20s (spec §4.8).
func SyncRetryPolicy() Policy {
	return Policy{
		MaxAttempts:   2,
		InitialDelay:  5 * time.Second,
		BackoffFactor: 4.0,
		MaxDelay:      20 * time.Second,
	}
}

// NextDelay returns the delay before the next attempt and whether a retry
// should be attempted at all, given the number of attempts already made.
func (p Policy) NextDelay(attemptsMade int) (delay time.Duration, shouldRetry bool) {
	if attemptsMade < 0 {
		attemptsMade = 0
	}
	if attemptsMade >= p.MaxAttempts {
		return 0, false
	}
	return backoffDelayWithFactor(attemptsMade+1, p.InitialDelay, p.MaxDelay, p.BackoffFactor), true
}

// backoffDelayWithFactor returns base * factor^(retries-1), capped at
// maxDelay, with up to 10% jitter.
func backoffDelayWithFactor(retries int, base, maxDelay time.Duration, factor float64) time.Duration {
	if retries <= 0 || base <= 0 {
		return 0
	}
	if factor < 1.0 {
		factor = 1.0
	}

	backoff := float64(base) * math.Pow(factor, float64(retries-1))
	if math.IsNaN(backoff) || math.IsInf(backoff, 0) {
		if maxDelay > 0 {
			backoff = float64(maxDelay)
		} else {
			backoff = float64(base)
		}
	}
	if maxDelay > 0 && backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}
	if backoff < float64(base) {
		backoff = float64(base)
	}

	jitter := 1.0 + (rand.Float64() * 0.1)
	return time.Duration(backoff * jitter)
}
