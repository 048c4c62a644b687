package backoff_test

import (
	"testing"
	"time"

	"github.com/janhicken/schedoscope/backoff"
)

// fixedSource always returns n-1, the top of the range, making wait
// durations deterministic and easy to assert on.
type fixedSource struct{}

func (fixedSource) Uint64N(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return n - 1
}

// zeroSource always returns 0, the bottom of the range.
type zeroSource struct{}

func (zeroSource) Uint64N(uint64) uint64 { return 0 }

func TestState_CurrentWaitNeverBelowConstantDelay(t *testing.T) {
	s := backoff.NewWithSource(100*time.Millisecond, 50*time.Millisecond, zeroSource{})
	for i := 0; i < 20; i++ {
		s.Next()
		if s.CurrentWait < s.ConstantDelay {
			t.Fatalf("iteration %d: CurrentWait %v < ConstantDelay %v", i, s.CurrentWait, s.ConstantDelay)
		}
	}
}

func TestState_ZeroSourceYieldsConstantDelayOnFirstRetry(t *testing.T) {
	s := backoff.NewWithSource(100*time.Millisecond, 50*time.Millisecond, zeroSource{})
	s.Next()
	if s.CurrentWait != s.ConstantDelay {
		t.Fatalf("CurrentWait = %v, want %v (k sampled as 0)", s.CurrentWait, s.ConstantDelay)
	}
	if s.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", s.Retries)
	}
}

func TestState_ResetsAfterCeiling(t *testing.T) {
	s := backoff.NewWithSource(10*time.Millisecond, 5*time.Millisecond, zeroSource{})
	for i := 0; i < backoff.Ceiling; i++ {
		s.Next()
	}
	if s.Retries != backoff.Ceiling {
		t.Fatalf("Retries = %d, want %d", s.Retries, backoff.Ceiling)
	}
	if s.Resets != 0 {
		t.Fatalf("Resets = %d, want 0 before ceiling is exceeded", s.Resets)
	}

	// One more call pushes past the ceiling.
	s.Next()
	if s.Resets != 1 {
		t.Fatalf("Resets = %d, want 1", s.Resets)
	}
	if s.Retries != 0 {
		t.Fatalf("Retries = %d, want 0 after reset", s.Retries)
	}
	if s.CurrentWait != s.ConstantDelay {
		t.Fatalf("CurrentWait = %v, want %v after reset", s.CurrentWait, s.ConstantDelay)
	}
}

func TestState_TotalRetriesCountsEveryCall(t *testing.T) {
	s := backoff.NewWithSource(10*time.Millisecond, 5*time.Millisecond, fixedSource{})
	const calls = backoff.Ceiling + 4
	for i := 0; i < calls; i++ {
		s.Next()
	}
	if s.TotalRetries != calls {
		t.Fatalf("TotalRetries = %d, want %d", s.TotalRetries, calls)
	}
}

func TestState_WaitGrowsWithRetriesUnderFixedSource(t *testing.T) {
	s := backoff.NewWithSource(time.Millisecond, 0, fixedSource{})
	s.Next()
	first := s.CurrentWait
	s.Next()
	second := s.CurrentWait
	if second <= first {
		t.Fatalf("expected wait to grow: first=%v second=%v", first, second)
	}
}
