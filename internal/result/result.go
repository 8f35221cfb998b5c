// Package result writes the two output files a completed run produces:
// solution.json (the best schedule found) and stats.json (the
// prune-reason tallies), both written only by rank 0.
package result

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hydrobb/pumpsched/internal/decision"
	"github.com/hydrobb/pumpsched/internal/stats"
)

// Solution is the best_cost/best_x/best_y triple a run produces. BestX is
// a single flat vector of length (H+1)*P for periods 0..H, period 0's pump
// factors first, each entry one of the actual speed/status factors in the
// run's domain.
type Solution struct {
	BestCost float64   `json:"best_cost"`
	BestX    []float64 `json:"best_x"`
	BestY    []int     `json:"best_y"`
}

// IOError reports a failure producing or writing a result file. It wraps
// the underlying cause so callers can errors.As into it without losing
// the original error.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("result: write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FromY derives BestX from BestY for every period using the same decoding
// the search engine used internally, so the two views can never diverge.
// BestX holds the actual pump speed/status factors from domain, not the
// positional indices decision.Decode returns, matching how engine.go
// applies a decision to the simulator via domain[xi].
func FromY(bestCost float64, bestY []int, pumpCount int, domain []float64) (Solution, error) {
	x := make([]float64, 0, len(bestY)*pumpCount)
	for h, y := range bestY {
		xi, err := decision.Decode(y, pumpCount, len(domain))
		if err != nil {
			return Solution{}, fmt.Errorf("result: decode y_%d=%d: %w", h, y, err)
		}
		for _, i := range xi {
			x = append(x, domain[i])
		}
	}
	return Solution{BestCost: bestCost, BestX: x, BestY: bestY}, nil
}

// WriteSolution writes sol to path as indented JSON. Callers must gate
// this to rank 0.
func WriteSolution(path string, sol Solution) error {
	data, err := json.MarshalIndent(sol, "", "  ")
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// WriteStats writes s's tallies to path as indented JSON. Callers must
// gate this to rank 0.
func WriteStats(path string, s *stats.Statistics) error {
	data, err := s.ToJSON()
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}
