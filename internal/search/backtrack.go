package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hydrobb/pumpsched/internal/simulator"
)

// BacktrackStrategy resyncs the simulator's hydraulic state after the
// search backtracks to try a sibling decision at an already-visited depth.
// Strategies differ in how cheaply they can do that and in what, if
// anything, they persist for crash recovery.
type BacktrackStrategy interface {
	// Backtrack brings the simulator's hydraulic state back to "just
	// after period depth-1", using the decisions currently recorded in
	// the engine's stack frames below depth.
	Backtrack(ctx context.Context, eng *Engine, depth int) error

	// Checkpoint is called once a frame's decision has been accepted, at
	// the given depth, as a durability hook; ReplayStrategy's is a no-op.
	Checkpoint(eng *Engine, depth int) error
}

// ReplayStrategy re-derives simulator state purely by replaying the
// accepted decision path; it is the default and keeps no state of its
// own beyond the engine's in-memory stack.
type ReplayStrategy struct{}

func (ReplayStrategy) Backtrack(ctx context.Context, eng *Engine, depth int) error {
	return eng.replayThrough(ctx, depth)
}

func (ReplayStrategy) Checkpoint(eng *Engine, depth int) error { return nil }

// FileStrategy checkpoints the simulator's hydraulic state to a single
// in-memory snapshot (InitHydraulics(Save), the same primitive a real
// EPANET .hyd checkpoint file provides) every time a frame is accepted,
// and persists the accepted decision path to Path alongside it. When no
// actuation ceiling is configured, a Backtrack call that targets exactly
// the depth of the last snapshot restores it in one
// InitHydraulics(SaveAndInit) call instead of replaying from period 0; any
// other call falls back to a full replay (which also rebuilds the
// actuation tally) and re-snapshots at the end, the same cost
// ReplayStrategy always pays.
type FileStrategy struct {
	Path string

	savedDepth int // depth of the most recent snapshot, -1 if none taken yet
}

// NewFileStrategy builds a FileStrategy that persists checkpoints to path.
func NewFileStrategy(path string) *FileStrategy {
	return &FileStrategy{Path: path, savedDepth: -1}
}

func (f *FileStrategy) Backtrack(ctx context.Context, eng *Engine, depth int) error {
	if f.savedDepth == depth-1 && eng.cfg.Constraints.ActuationCeiling == 0 {
		return eng.sim.InitHydraulics(simulator.SaveAndInit)
	}
	if err := eng.replayThrough(ctx, depth); err != nil {
		return err
	}
	if err := eng.sim.InitHydraulics(simulator.Save); err != nil {
		return err
	}
	f.savedDepth = depth - 1
	return nil
}

func (f *FileStrategy) Checkpoint(eng *Engine, depth int) error {
	if err := eng.sim.InitHydraulics(simulator.Save); err != nil {
		return fmt.Errorf("search: checkpoint snapshot at depth %d: %w", depth, err)
	}
	f.savedDepth = depth

	decisions := eng.acceptedDecisions()
	data, err := json.Marshal(decisions)
	if err != nil {
		return fmt.Errorf("search: marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return fmt.Errorf("search: write checkpoint %s: %w", f.Path, err)
	}
	return nil
}

// LoadCheckpoint reads a decision path written by FileStrategy.Checkpoint,
// for resuming a run.
func LoadCheckpoint(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("search: read checkpoint %s: %w", path, err)
	}
	var decisions []int
	if err := json.Unmarshal(data, &decisions); err != nil {
		return nil, fmt.Errorf("search: unmarshal checkpoint %s: %w", path, err)
	}
	return decisions, nil
}
