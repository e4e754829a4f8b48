package retry

import (
	"testing"
	"time"
)

func TestDeadLetterPolicyNextDelay(t *testing.T) {
	policy := DeadLetterPolicy()

	delay, shouldRetry := policy.NextDelay(0)
	if !shouldRetry {
		t.Fatal("first retry should be allowed")
	}
	if delay < policy.InitialDelay || delay > policy.InitialDelay+2*time.Second {
		t.Fatalf("unexpected delay for first retry: %v", delay)
	}

	_, shouldRetry = policy.NextDelay(1)
	if !shouldRetry {
		t.Fatal("second retry should be allowed")
	}

	_, shouldRetry = policy.NextDelay(2)
	if !shouldRetry {
		t.Fatal("third retry should be allowed (attempt count == MaxAttempts-1)")
	}

	_, shouldRetry = policy.NextDelay(3)
	if shouldRetry {
		t.Fatal("retries beyond MaxAttempts should dead-letter, not retry")
	}
}

func TestBatchChunkPolicyBackoffGrows(t *testing.T) {
	policy := BatchChunkPolicy()

	d1, _ := policy.NextDelay(0)
	d2, _ := policy.NextDelay(1)
	d3, _ := policy.NextDelay(2)

	if d1 < 60*time.Second || d1 > 66*time.Second {
		t.Fatalf("expected ~60s for first attempt, got %v", d1)
	}
	if d2 < 120*time.Second || d2 > 132*time.Second {
		t.Fatalf("expected ~120s for second attempt, got %v", d2)
	}
	if d3 < 240*time.Second || d3 > 264*time.Second {
		t.Fatalf("expected ~240s for third attempt, got %v", d3)
	}

	if _, shouldRetry := policy.NextDelay(3); shouldRetry {
		t.Fatal("fourth attempt should exhaust the 3-attempt chunk policy")
	}
}

func TestSyncRetryPolicyMatchesSpecDelays(t *testing.T) {
	policy := SyncRetryPolicy()

	d1, ok := policy.NextDelay(0)
	if !ok {
		t.Fatal("first retry should be allowed")
	}
	if d1 < 5*time.Second || d1 > 5500*time.Millisecond {
		t.Fatalf("expected ~5s for first retry, got %v", d1)
	}

	d2, ok := policy.NextDelay(1)
	if !ok {
		t.Fatal("second retry should be allowed")
	}
	if d2 < 20*time.Second || d2 > 22*time.Second {
		t.Fatalf("expected ~20s for second retry, got %v", d2)
	}

	if _, ok := policy.NextDelay(2); ok {
		t.Fatal("third attempt should exhaust the 2-attempt sync retry policy")
	}
}
