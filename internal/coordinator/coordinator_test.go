package coordinator

import (
	"testing"
)

func TestPartitionCoversEveryRootCandidateExactlyOnce(t *testing.T) {
	const pumpCount, domainSize, ranks = 2, 3, 4 // rootDomain = 9 > ranks
	seen := make(map[int]int)
	for rank := 0; rank < ranks; rank++ {
		for _, y := range Partition(rank, ranks, pumpCount, domainSize).Roots {
			seen[y]++
		}
	}
	if len(seen) != 9 {
		t.Fatalf("covered %d distinct y_0 values, want 9", len(seen))
	}
	for y, count := range seen {
		if count != 1 {
			t.Fatalf("y_0=%d assigned to %d ranks, want exactly 1", y, count)
		}
	}
}

func TestPartitionGivesWorkToEveryRankUpToRootDomain(t *testing.T) {
	a := Partition(5, 9, 2, 3) // rootDomain = 9, rank 5 still gets exactly one
	if len(a.Roots) == 0 {
		t.Fatal("rank within rootDomain should receive at least one candidate")
	}
}

func TestPartitionDeepensWithoutOverlap(t *testing.T) {
	const pumpCount, domainSize, ranks = 1, 2, 8 // rootDomain = 2 < ranks
	type unit struct{ y0, y1 int }
	seen := make(map[unit]int)
	for rank := 0; rank < ranks; rank++ {
		a := Partition(rank, ranks, pumpCount, domainSize)
		for y0, y1s := range a.Restrict {
			for _, y1 := range y1s {
				seen[unit{y0, y1}]++
			}
		}
	}
	const fineDomain = 4 // rootDomain(2) * domainSize(2)
	if len(seen) != fineDomain {
		t.Fatalf("covered %d distinct (y_0,y_1) units, want %d", len(seen), fineDomain)
	}
	for u, count := range seen {
		if count != 1 {
			t.Fatalf("(y_0=%d,y_1=%d) assigned to %d ranks, want exactly 1", u.y0, u.y1, count)
		}
	}
}

func TestInProcessBoundStoreTracksMinimum(t *testing.T) {
	s := NewInProcessBoundStore(2)
	if got := s.Global(); !isPosInf(got) {
		t.Fatalf("Global() before any publish = %v, want +Inf", got)
	}
	s.PublishLocal(10)
	s.PublishLocal(5)
	s.PublishLocal(7)
	if got := s.Global(); got != 5 {
		t.Fatalf("Global() = %v, want 5", got)
	}
}

func TestInProcessBoundStoreExhaustion(t *testing.T) {
	s := NewInProcessBoundStore(2)
	if s.AllExhausted() {
		t.Fatal("should not be exhausted before any rank reports")
	}
	s.MarkExhausted(0)
	if s.AllExhausted() {
		t.Fatal("should not be exhausted with only one of two ranks reporting")
	}
	s.MarkExhausted(1)
	if !s.AllExhausted() {
		t.Fatal("expected AllExhausted once every rank has reported")
	}
}

func isPosInf(f float64) bool {
	return f > 1.0e307
}
