// Package search implements the explicit-stack depth-first branch-and-bound
// engine that drives the Simulator adapter one period at a time, pruning
// branches the constraints.Evaluator rejects and tracking the best
// complete schedule found.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/hydrobb/pumpsched/internal/constraints"
	"github.com/hydrobb/pumpsched/internal/decision"
	"github.com/hydrobb/pumpsched/internal/resilience"
	"github.com/hydrobb/pumpsched/internal/simulator"
	"github.com/hydrobb/pumpsched/internal/stats"
)

// State is the engine's lifecycle: INIT -> SEARCHING -> {TERMINATED,
// EXHAUSTED}.
type State int

const (
	Init State = iota
	Searching
	Terminated
	Exhausted
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Searching:
		return "SEARCHING"
	case Terminated:
		return "TERMINATED"
	case Exhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// BoundStore is the minimal contract the engine needs from a distributed
// coordinator: publish a newly found local incumbent, and read back
// whatever the collective currently believes the global best is. Both
// internal/coordinator stores satisfy this structurally.
type BoundStore interface {
	PublishLocal(cost float64)
	Global() float64
}

// Config parameterizes one Engine run.
type Config struct {
	PumpIDs        []string
	TankIDs        []string
	MonitorNodeIDs []string
	Domain         []float64      // pump speed/status factors, index 0..|D|-1
	Horizon        int            // H, the last period index (23 for a 24-hour run)
	RootCandidates []int          // y_0 values this rank owns, from coordinator.Partition
	Depth1Restrict map[int][]int  // optional: for a y_0 key, the only y_1 values this rank owns
	Backtrack      BacktrackStrategy
	Bounds         BoundStore // optional; nil disables bound sharing
	ErrorLimit     int        // consecutive SimulatorErrors at one depth before TERMINATED; <=0 uses resilience.DefaultLimit
	Constraints    constraints.Config
	Logger         *log.Logger
}

// Engine runs the branch-and-bound search for one rank.
type Engine struct {
	sim  simulator.Simulator
	cfg  Config
	eval *constraints.Evaluator

	pumpLinkIdx []int
	tankNodeIdx []int
	monNodeIdx  []int

	stack        []Frame
	pendingRoots []int

	breaker    *resilience.ErrorBreaker
	statistics *stats.Statistics
	metrics    *stats.Metrics

	bestCost float64
	bestY    []int

	state State
	log   *log.Logger
}

// New builds an Engine bound to sim. sim must already have Load called on
// it by the caller.
func New(sim simulator.Simulator, cfg Config) (*Engine, error) {
	if len(cfg.Domain) == 0 {
		return nil, errors.New("search: Config.Domain must be non-empty")
	}
	if cfg.Backtrack == nil {
		cfg.Backtrack = ReplayStrategy{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		sim:          sim,
		cfg:          cfg,
		eval:         constraints.NewEvaluator(cfg.Constraints),
		breaker:      resilience.NewErrorBreaker(cfg.ErrorLimit),
		statistics:   stats.New(cfg.Horizon),
		bestCost:     posInf,
		state:        Init,
		log:          logger,
		pendingRoots: append([]int(nil), cfg.RootCandidates...),
	}
	if err := e.resolveIndices(); err != nil {
		return nil, err
	}
	return e, nil
}

var posInf = math.Inf(1)

func (e *Engine) resolveIndices() error {
	for _, id := range e.cfg.PumpIDs {
		idx, err := e.sim.IndexOf(simulator.ElementLink, id)
		if err != nil {
			return fmt.Errorf("search: resolve pump %q: %w", id, err)
		}
		e.pumpLinkIdx = append(e.pumpLinkIdx, idx)
	}
	for _, id := range e.cfg.TankIDs {
		idx, err := e.sim.IndexOf(simulator.ElementNode, id)
		if err != nil {
			return fmt.Errorf("search: resolve tank %q: %w", id, err)
		}
		e.tankNodeIdx = append(e.tankNodeIdx, idx)
	}
	for _, id := range e.cfg.MonitorNodeIDs {
		idx, err := e.sim.IndexOf(simulator.ElementNode, id)
		if err != nil {
			return fmt.Errorf("search: resolve monitored node %q: %w", id, err)
		}
		e.monNodeIdx = append(e.monNodeIdx, idx)
	}
	return nil
}

// SetMetrics attaches a Prometheus mirror; optional.
func (e *Engine) SetMetrics(m *stats.Metrics) { e.metrics = m }

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// BestCost and BestY report the best complete schedule found so far.
func (e *Engine) BestCost() float64 { return e.bestCost }
func (e *Engine) BestY() []int      { return append([]int(nil), e.bestY...) }

// Statistics exposes the accumulated prune-reason tallies.
func (e *Engine) Statistics() *stats.Statistics { return e.statistics }

// Run drives the engine to completion (EXHAUSTED) or until ctx is
// cancelled or the engine trips its error breaker (TERMINATED).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.sim.OpenHydraulics(); err != nil {
		e.state = Terminated
		return err
	}
	if err := e.sim.InitHydraulics(simulator.NoSave); err != nil {
		e.state = Terminated
		return err
	}
	e.statistics.Start()
	defer e.statistics.Stop()
	e.state = Searching

	for e.state == Searching {
		select {
		case <-ctx.Done():
			e.state = Terminated
			return ctx.Err()
		default:
		}
		if err := e.step(ctx); err != nil {
			e.state = Terminated
			return err
		}
		if e.cfg.Bounds != nil {
			e.eval.SetBestGlobal(e.cfg.Bounds.Global())
		}
	}
	return nil
}

// step advances the search by exactly one visit: evaluating a fresh
// frame, or advancing/popping a frame whose child subtree is done.
func (e *Engine) step(ctx context.Context) error {
	if len(e.stack) == 0 {
		if len(e.pendingRoots) == 0 {
			e.state = Exhausted
			return nil
		}
		y := e.pendingRoots[0]
		e.pendingRoots = e.pendingRoots[1:]
		e.eval.Reset()
		e.stack = append(e.stack, Frame{Depth: 0, Y: y})
		// A new root subtree starts from the network's initial conditions,
		// not from wherever the previous root's last branch left the simulator.
		return e.cfg.Backtrack.Backtrack(ctx, e, 0)
	}

	top := &e.stack[len(e.stack)-1]
	if e.metrics != nil {
		e.metrics.SetDepth(top.Depth)
	}

	if top.status == statusFresh {
		reason, leafCost, err := e.visit(top)
		if err != nil {
			if err := e.handleSimError(top.Depth, err); err != nil {
				return err
			}
			return e.advanceOrPop(ctx)
		}
		e.breaker.RecordSuccess(top.Depth)

		e.statistics.Add(reason, top.Depth)
		if e.metrics != nil {
			e.metrics.Observe(reason, top.Depth)
		}
		if reason != constraints.None {
			return e.advanceOrPop(ctx)
		}

		if top.Depth == e.cfg.Horizon {
			if err := e.recordIncumbent(leafCost); err != nil {
				return err
			}
			return e.advanceOrPop(ctx)
		}

		children := decision.Successors(len(e.cfg.PumpIDs), len(e.cfg.Domain))
		if top.Depth == 0 {
			if restricted, ok := e.cfg.Depth1Restrict[top.Y]; ok {
				children = restricted
			}
		}
		top.status = statusOpen
		if err := e.cfg.Backtrack.Checkpoint(e, top.Depth); err != nil {
			e.log.Printf("search: checkpoint failed: %v", err)
		}
		e.stack = append(e.stack, Frame{Depth: top.Depth + 1, Y: children[0], Remaining: children[1:]})
		return nil
	}

	return e.advanceOrPop(ctx)
}

func (e *Engine) handleSimError(depth int, cause error) error {
	var loadErr *simulator.LoadError
	if errors.As(cause, &loadErr) {
		return cause
	}
	if e.breaker.RecordFailure(depth) {
		return fmt.Errorf("search: error breaker tripped at depth %d: %w", depth, cause)
	}
	e.log.Printf("search: recoverable simulator error at depth %d: %v", depth, cause)
	return nil
}

func (e *Engine) advanceOrPop(ctx context.Context) error {
	top := &e.stack[len(e.stack)-1]
	if len(top.Remaining) == 0 {
		e.stack = e.stack[:len(e.stack)-1]
		return nil
	}
	nextY := top.Remaining[0]
	top.Remaining = top.Remaining[1:]
	top.Y = nextY
	top.status = statusFresh
	return e.cfg.Backtrack.Backtrack(ctx, e, top.Depth)
}

// visit applies the decision recorded in frame, advances the simulator one
// period, and checks the result against the constraints. It returns the
// prune reason (constraints.None if accepted) and, for a leaf, the total
// cost of the completed branch.
func (e *Engine) visit(frame *Frame) (constraints.Reason, float64, error) {
	if err := e.applyDecision(frame.Depth, frame.Y); err != nil {
		return constraints.None, 0, err
	}
	if _, err := e.sim.RunStep(); err != nil {
		return constraints.None, 0, err
	}
	dt, err := e.sim.NextStep()
	if err != nil {
		return constraints.None, 0, err
	}

	period, err := e.collectPeriod(frame.Depth, dt)
	if err != nil {
		return constraints.None, 0, err
	}
	reason := e.eval.Check(period)
	return reason, period.RunningCost, nil
}

func (e *Engine) applyDecision(depth, y int) error {
	x, err := decision.Decode(y, len(e.cfg.PumpIDs), len(e.cfg.Domain))
	if err != nil {
		return fmt.Errorf("search: decode y=%d at depth %d: %w", y, depth, err)
	}
	for i, xi := range x {
		if err := e.sim.SetPattern(e.pumpLinkIdx[i], depth, e.cfg.Domain[xi]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) collectPeriod(depth, dt int) (constraints.Period, error) {
	period := constraints.Period{
		TankHeads:    make(map[string]float64, len(e.cfg.TankIDs)),
		NodeHeads:    make(map[string]float64, len(e.cfg.MonitorNodeIDs)),
		Horizon:      depth,
		LastPeriod:   e.cfg.Horizon,
		TimestepSecs: dt,
	}
	for i, id := range e.cfg.TankIDs {
		head, err := e.sim.GetNodeValue(e.tankNodeIdx[i], simulator.NodeHead)
		if err != nil {
			return period, err
		}
		period.TankHeads[id] = head
	}
	for i, id := range e.cfg.MonitorNodeIDs {
		pressure, err := e.sim.GetNodeValue(e.monNodeIdx[i], simulator.NodePressure)
		if err != nil {
			return period, err
		}
		period.NodeHeads[id] = pressure
	}
	factors, err := e.pumpFactors()
	if err != nil {
		return period, err
	}
	period.PumpFactors = factors

	var totalCost float64
	for i := range e.cfg.PumpIDs {
		cost, err := e.sim.PumpTotalCost(e.pumpLinkIdx[i])
		if err != nil {
			return period, err
		}
		totalCost += cost
	}
	period.RunningCost = totalCost
	return period, nil
}

// pumpFactors reads the current speed/status factor the simulator has set
// for every pump, keyed by pump id.
func (e *Engine) pumpFactors() (map[string]float64, error) {
	factors := make(map[string]float64, len(e.cfg.PumpIDs))
	for i, id := range e.cfg.PumpIDs {
		f, err := e.sim.GetLinkValue(e.pumpLinkIdx[i], simulator.LinkSetting)
		if err != nil {
			return nil, err
		}
		factors[id] = f
	}
	return factors, nil
}

// BoundError reports an inconsistent incumbent: the cost model guarantees
// a completed schedule's total energy cost can never be negative, so a
// leaf cost below zero means an assumption elsewhere has been violated.
type BoundError struct {
	Cost float64
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("search: inconsistent incumbent cost %v", e.Cost)
}

func (e *Engine) recordIncumbent(cost float64) error {
	if cost < 0 {
		return &BoundError{Cost: cost}
	}
	if cost >= e.bestCost {
		return nil
	}
	e.bestCost = cost
	e.eval.UpdateBestLocal(cost)
	e.bestY = e.acceptedDecisions()
	if e.metrics != nil {
		e.metrics.SetBestCost(cost)
	}
	if e.cfg.Bounds != nil {
		e.cfg.Bounds.PublishLocal(cost)
	}
	return nil
}

// acceptedDecisions returns the Y chosen at every depth on the current
// path from the root to the top of the stack.
func (e *Engine) acceptedDecisions() []int {
	ys := make([]int, len(e.stack))
	for i, f := range e.stack {
		ys[i] = f.Y
	}
	return ys
}

// replayThrough resyncs the simulator to the state just after period
// depth-1 by reopening hydraulics and replaying the accepted decisions
// for periods 0..depth-1.
func (e *Engine) replayThrough(ctx context.Context, depth int) error {
	if err := e.sim.CloseHydraulics(); err != nil {
		return err
	}
	if err := e.sim.OpenHydraulics(); err != nil {
		return err
	}
	if err := e.sim.InitHydraulics(simulator.NoSave); err != nil {
		return err
	}
	trackActuations := e.cfg.Constraints.ActuationCeiling > 0
	var history []map[string]float64
	for d := 0; d < depth; d++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		y := e.stack[d].Y
		if err := e.applyDecision(d, y); err != nil {
			return err
		}
		if _, err := e.sim.RunStep(); err != nil {
			return err
		}
		if _, err := e.sim.NextStep(); err != nil {
			return err
		}
		if trackActuations {
			factors, err := e.pumpFactors()
			if err != nil {
				return err
			}
			history = append(history, factors)
		}
	}
	if trackActuations {
		e.eval.SeedActuations(history)
	}
	return nil
}
