package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hydrobb/pumpsched/internal/constraints"
	"github.com/hydrobb/pumpsched/internal/decision"
	"github.com/hydrobb/pumpsched/internal/simulator"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	sim := simulator.NewStub()
	if err := sim.Load("network.inp"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := Config{
		PumpIDs:        []string{"111"},
		TankIDs:        simulator.DefaultTankIDs,
		MonitorNodeIDs: simulator.DefaultMonitorNodeIDs,
		Domain:         []float64{0.0, 1.0},
		Horizon:        1,
		RootCandidates: decision.Successors(1, 2),
		Constraints:    constraints.DefaultConfig(),
	}
	eng, err := New(sim, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestEngineFindsFeasibleIncumbent(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.State() != Exhausted {
		t.Fatalf("State() = %v, want %v", eng.State(), Exhausted)
	}
	if math.IsInf(eng.BestCost(), 1) {
		t.Fatal("expected a feasible incumbent to have been found")
	}
	want := []int{0, 1}
	if got := eng.BestY(); !reflect.DeepEqual(got, want) {
		t.Fatalf("BestY() = %v, want %v", got, want)
	}
}

func TestEngineRecordsStabilityPrune(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := eng.Statistics().Count(constraints.Stability, 1); got == 0 {
		t.Fatal("expected at least one STABILITY prune at the final period")
	}
}

func TestEngineRejectsEmptyDomain(t *testing.T) {
	sim := simulator.NewStub()
	sim.Load("x")
	_, err := New(sim, Config{PumpIDs: []string{"111"}})
	if err == nil {
		t.Fatal("expected error for empty Domain")
	}
}

func TestEngineHandlesZeroHorizonAsSinglePeriodRun(t *testing.T) {
	sim := simulator.NewStub()
	if err := sim.Load("network.inp"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := Config{
		PumpIDs:        []string{"111"},
		TankIDs:        simulator.DefaultTankIDs,
		MonitorNodeIDs: simulator.DefaultMonitorNodeIDs,
		Domain:         []float64{0.0, 1.0},
		Horizon:        0,
		RootCandidates: decision.Successors(1, 2),
		Constraints:    constraints.DefaultConfig(),
	}
	eng, err := New(sim, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.State() != Exhausted {
		t.Fatalf("State() = %v, want %v", eng.State(), Exhausted)
	}
	if got := eng.BestY(); len(got) > 1 {
		t.Fatalf("BestY() = %v, want at most one period for Horizon=0", got)
	}
}

func TestRecordIncumbentRejectsNegativeCost(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.recordIncumbent(-0.5)
	var boundErr *BoundError
	if !errors.As(err, &boundErr) {
		t.Fatalf("recordIncumbent(-0.5) = %v, want *BoundError", err)
	}
}

func newMultiPeriodEngine(t *testing.T, backtrack BacktrackStrategy) *Engine {
	t.Helper()
	sim := simulator.NewStub()
	if err := sim.Load("network.inp"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := Config{
		PumpIDs:        []string{"111"},
		TankIDs:        simulator.DefaultTankIDs,
		MonitorNodeIDs: simulator.DefaultMonitorNodeIDs,
		Domain:         []float64{0.0, 1.0},
		Horizon:        2,
		RootCandidates: decision.Successors(1, 2),
		Backtrack:      backtrack,
		Constraints:    constraints.DefaultConfig(),
	}
	eng, err := New(sim, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestFileStrategyMatchesReplayStrategy(t *testing.T) {
	replayEng := newMultiPeriodEngine(t, ReplayStrategy{})
	if err := replayEng.Run(context.Background()); err != nil {
		t.Fatalf("Run (replay): %v", err)
	}

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	fileEng := newMultiPeriodEngine(t, NewFileStrategy(path))
	if err := fileEng.Run(context.Background()); err != nil {
		t.Fatalf("Run (file): %v", err)
	}

	if replayEng.BestCost() != fileEng.BestCost() {
		t.Fatalf("BestCost() replay=%v file=%v, want equal", replayEng.BestCost(), fileEng.BestCost())
	}
	if !reflect.DeepEqual(replayEng.BestY(), fileEng.BestY()) {
		t.Fatalf("BestY() replay=%v file=%v, want equal", replayEng.BestY(), fileEng.BestY())
	}
}
