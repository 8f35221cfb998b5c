package result

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hydrobb/pumpsched/internal/constraints"
	"github.com/hydrobb/pumpsched/internal/stats"
)

func TestFromYDecodesEveryPeriod(t *testing.T) {
	// Domain is non-identity (index i maps to a different value than i) so
	// the test can't pass by accident if FromY forgets to map through it.
	domain := []float64{0, 0.5, 1}
	sol, err := FromY(12.5, []int{0, 5, 8}, 3, domain)
	if err != nil {
		t.Fatalf("FromY: %v", err)
	}
	if sol.BestCost != 12.5 {
		t.Fatalf("BestCost = %v, want 12.5", sol.BestCost)
	}
	// y=0 -> {0,0,0}; y=5 -> {2,1,0}; y=8 -> {2,2,0} (pump 0 least
	// significant), each index mapped through domain.
	want := []float64{0, 0, 0, 1, 0.5, 0, 1, 1, 0}
	if !reflect.DeepEqual(sol.BestX, want) {
		t.Fatalf("BestX = %v, want %v", sol.BestX, want)
	}
}

func TestWriteSolutionReturnsIOErrorOnFailure(t *testing.T) {
	sol, err := FromY(1.0, []int{0}, 1, []float64{0, 1})
	if err != nil {
		t.Fatalf("FromY: %v", err)
	}
	err = WriteSolution(filepath.Join(t.TempDir(), "missing", "out.json"), sol)
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("WriteSolution error = %v, want *IOError", err)
	}
}

func TestWriteSolutionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solution.json")
	sol, err := FromY(3.0, []int{1}, 1, []float64{0, 1})
	if err != nil {
		t.Fatalf("FromY: %v", err)
	}
	if err := WriteSolution(path, sol); err != nil {
		t.Fatalf("WriteSolution: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Solution
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, sol) {
		t.Fatalf("round-tripped solution = %+v, want %+v", got, sol)
	}
}

func TestWriteStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	s := stats.New(2)
	s.Add(constraints.Levels, 0)
	if err := WriteStats(path, s); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stats file not written: %v", err)
	}
}
