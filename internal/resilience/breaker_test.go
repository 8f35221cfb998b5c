package resilience

import "testing"

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewErrorBreaker(3)
	if tripped := b.RecordFailure(5); tripped {
		t.Fatal("tripped too early")
	}
	if tripped := b.RecordFailure(5); tripped {
		t.Fatal("tripped too early")
	}
	if tripped := b.RecordFailure(5); !tripped {
		t.Fatal("expected breaker to trip on third consecutive failure")
	}
	tripped, depth := b.Tripped()
	if !tripped || depth != 5 {
		t.Fatalf("Tripped() = (%v, %d), want (true, 5)", tripped, depth)
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := NewErrorBreaker(2)
	b.RecordFailure(1)
	b.RecordSuccess(1)
	if tripped := b.RecordFailure(1); tripped {
		t.Fatal("streak should have reset after success")
	}
}

func TestBreakerTracksDepthsIndependently(t *testing.T) {
	b := NewErrorBreaker(2)
	b.RecordFailure(1)
	if tripped := b.RecordFailure(2); tripped {
		t.Fatal("failure at a different depth should not trip the breaker")
	}
}

func TestDefaultLimitUsedWhenNonPositive(t *testing.T) {
	b := NewErrorBreaker(0)
	if b.limit != DefaultLimit {
		t.Fatalf("limit = %d, want %d", b.limit, DefaultLimit)
	}
}
