// Command engine runs one rank of the parallel branch-and-bound pump
// scheduler: engine <inpFile> <rptFile> [<outFile>].
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydrobb/pumpsched/internal/config"
	"github.com/hydrobb/pumpsched/internal/constraints"
	"github.com/hydrobb/pumpsched/internal/coordinator"
	"github.com/hydrobb/pumpsched/internal/httpapi"
	"github.com/hydrobb/pumpsched/internal/ledger"
	"github.com/hydrobb/pumpsched/internal/progress"
	"github.com/hydrobb/pumpsched/internal/result"
	"github.com/hydrobb/pumpsched/internal/search"
	"github.com/hydrobb/pumpsched/internal/simulator"
	"github.com/hydrobb/pumpsched/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("engine: shutdown signal received, finishing current branch")
		cancel()
	}()
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("engine: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sim := simulator.NewStub()
	if err := sim.Load(cfg.InpFile); err != nil {
		return err
	}

	bounds, closeBounds, err := newBoundStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closeBounds != nil {
		defer closeBounds()
	}

	backtrack := newBacktrackStrategy(cfg)

	timestep, err := sim.TimeParam(0)
	if err != nil {
		return err
	}

	assignment := coordinator.Partition(cfg.Rank, cfg.Ranks, len(cfg.PumpIDs), len(cfg.SpeedDomain))
	log.Printf("engine: rank %d/%d owns %d root candidates", cfg.Rank, cfg.Ranks, len(assignment.Roots))

	constraintsCfg := constraints.Config{
		LevelBounds:       constraints.LevelBounds{Min: cfg.LevelMin, Max: cfg.LevelMax},
		PressureMin:       cfg.PressureThresholds,
		StabilityInitial:  cfg.InitialLevel,
		HydraulicTimestep: timestep,
		ActuationCeiling:  cfg.ActuationCeiling,
	}

	engCfg := search.Config{
		PumpIDs:        cfg.PumpIDs,
		TankIDs:        cfg.TankIDs,
		MonitorNodeIDs: cfg.NodeIDs,
		Domain:         cfg.SpeedDomain,
		Horizon:        cfg.Horizon,
		RootCandidates: assignment.Roots,
		Depth1Restrict: assignment.Restrict,
		Backtrack:      backtrack,
		Bounds:         bounds,
		Constraints:    constraintsCfg,
	}
	eng, err := search.New(sim, engCfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	eng.SetMetrics(stats.NewMetrics(reg))

	var hub *progress.Hub
	if cfg.HTTPAddr != "" {
		hub = progress.NewHub(func() progress.Snapshot {
			return progress.Snapshot{
				Rank:     cfg.Rank,
				BestCost: eng.BestCost(),
			}
		}, time.Second)
		go hub.Run(ctx)
		go func() {
			mux := httpapi.NewMux(reg, hub)
			log.Printf("engine: serving observability endpoints on %s", cfg.HTTPAddr)
			if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
				log.Printf("engine: http server stopped: %v", err)
			}
		}()
	}

	start := time.Now()
	if err := eng.Run(ctx); err != nil && eng.State() != search.Exhausted {
		log.Printf("engine: search ended with error: %v", err)
	}
	if eng.State() == search.Exhausted {
		bounds.MarkExhausted(cfg.Rank)
	}

	if cfg.Rank == 0 {
		waitForCollective(ctx, bounds)
		sol, err := result.FromY(eng.BestCost(), eng.BestY(), len(cfg.PumpIDs), cfg.SpeedDomain)
		if err != nil {
			return err
		}
		outPath := cfg.OutFile
		if outPath == "" {
			outPath = "solution.json"
		}
		// A failure to write either output file is logged, not fatal: the
		// collective has already finished its work and the run ledger
		// below still records the best cost found even if the JSON files
		// didn't make it to disk.
		if err := result.WriteSolution(outPath, sol); err != nil {
			log.Printf("engine: %v", err)
		}
		if err := result.WriteStats("stats.json", eng.Statistics()); err != nil {
			log.Printf("engine: %v", err)
		}
		log.Printf("engine: wrote %s and stats.json (best_cost=%v, elapsed=%s)", outPath, sol.BestCost, time.Since(start))
	}

	if err := persistToLedger(ctx, cfg, eng, start); err != nil {
		log.Printf("engine: ledger write failed: %v", err)
	}

	return nil
}

// exhaustible is the subset of a coordinator bound store main needs for
// the final rank-0-gated collective wait; both coordinator stores satisfy
// it alongside search.BoundStore.
type exhaustible interface {
	search.BoundStore
	MarkExhausted(rank int)
	AllExhausted() bool
}

func newBoundStore(ctx context.Context, cfg *config.Config) (exhaustible, func(), error) {
	if cfg.RedisAddr != "" {
		store, err := coordinator.NewRedisBoundStore(ctx, cfg.RedisAddr, "run", cfg.Ranks)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return coordinator.NewInProcessBoundStore(cfg.Ranks), nil, nil
}

func newBacktrackStrategy(cfg *config.Config) search.BacktrackStrategy {
	if cfg.CheckpointMode == "file" {
		path := cfg.CheckpointPath
		if path == "" {
			path = "checkpoint.json"
		}
		return search.NewFileStrategy(path)
	}
	return search.ReplayStrategy{}
}

// waitForCollective polls until every rank reports EXHAUSTED (or ctx is
// cancelled) before rank 0 writes the result files. It only waits: rank 0
// then writes its own incumbent and its own statistics, and other ranks'
// schedules and prune counts are not collected. A single-process run
// (Ranks==1) is already exhausted by the time it gets here.
func waitForCollective(ctx context.Context, bounds exhaustible) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !bounds.AllExhausted() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// persistToLedger upserts this rank's outcome when a DSN is configured.
// Every run and every rank writes the same run id, "run", so the runs
// table holds a single row that the latest write overwrites.
func persistToLedger(ctx context.Context, cfg *config.Config, eng *search.Engine, start time.Time) error {
	if cfg.DBDSN == "" {
		return nil
	}
	store, err := ledger.Open(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.UpsertRun(ctx, ledger.Run{
		RunID:      "run",
		Rank:       cfg.Rank,
		Ranks:      cfg.Ranks,
		BestCost:   eng.BestCost(),
		Horizon:    cfg.Horizon,
		DurationMS: time.Since(start).Milliseconds(),
		FinishedAt: time.Now(),
	})
}
