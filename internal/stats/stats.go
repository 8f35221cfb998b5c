// Package stats accumulates per-depth prune-reason counts and search
// duration for a single worker, and knows how to merge counts gathered by
// every rank into one report.
package stats

import (
	"encoding/json"
	"time"

	"github.com/hydrobb/pumpsched/internal/constraints"
)

// Statistics tallies, for every search depth, how many evaluations ended
// with each constraints.Reason (None for an accepted branch), plus the
// wall-clock duration of the search.
type Statistics struct {
	maxDepth int
	counts   map[constraints.Reason][]int
	start    time.Time
	duration time.Duration
}

// New builds a Statistics sized for horizons 0..maxDepth inclusive.
func New(maxDepth int) *Statistics {
	s := &Statistics{
		maxDepth: maxDepth,
		counts:   make(map[constraints.Reason][]int),
	}
	for _, r := range allReasons {
		s.counts[r] = make([]int, maxDepth+1)
	}
	return s
}

var allReasons = []constraints.Reason{
	constraints.None,
	constraints.Pressures,
	constraints.Levels,
	constraints.Stability,
	constraints.Cost,
	constraints.Actuations,
	constraints.Timestep,
}

// Start records the moment the search began; call once before the first
// step.
func (s *Statistics) Start() {
	s.start = time.Now()
}

// Stop freezes the elapsed duration; call once when the engine leaves
// SEARCHING.
func (s *Statistics) Stop() {
	s.duration = time.Since(s.start)
}

// Add increments the count for reason at depth.
func (s *Statistics) Add(reason constraints.Reason, depth int) {
	if depth < 0 || depth > s.maxDepth {
		return
	}
	row, ok := s.counts[reason]
	if !ok {
		row = make([]int, s.maxDepth+1)
		s.counts[reason] = row
	}
	row[depth]++
}

// Count returns the tally for reason at depth.
func (s *Statistics) Count(reason constraints.Reason, depth int) int {
	row, ok := s.counts[reason]
	if !ok || depth < 0 || depth > s.maxDepth {
		return 0
	}
	return row[depth]
}

// Merge element-wise sums other's counts into s, the way every worker's
// local tallies are combined into one report at the end of a run.
func (s *Statistics) Merge(other *Statistics) {
	for reason, row := range other.counts {
		dst, ok := s.counts[reason]
		if !ok {
			dst = make([]int, s.maxDepth+1)
			s.counts[reason] = dst
		}
		for depth, v := range row {
			if depth < len(dst) {
				dst[depth] += v
			}
		}
	}
	if other.duration > s.duration {
		s.duration = other.duration
	}
}

// ToJSON serializes the tallies as a flat top-level object: one array per
// reason label, indexed by depth, plus a "duration" field in seconds.
func (s *Statistics) ToJSON() ([]byte, error) {
	r := make(map[string]interface{}, len(s.counts)+1)
	for reason, row := range s.counts {
		cp := make([]int, len(row))
		copy(cp, row)
		r[reason.String()] = cp
	}
	r["duration"] = s.duration.Seconds()
	return json.MarshalIndent(r, "", "  ")
}

// Total sums every reason's count at depth, i.e. how many branches were
// evaluated (accepted or pruned) at that depth.
func (s *Statistics) Total(depth int) int {
	total := 0
	for _, row := range s.counts {
		if depth >= 0 && depth < len(row) {
			total += row[depth]
		}
	}
	return total
}
