// Package config resolves the engine's run parameters from command-line
// flags with environment-variable fallbacks: flags for local runs, env
// vars for container/orchestrator-managed ones, no config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything one engine process needs: which network/report
// files to use, the rank this process plays in the collective, the
// discrete pump network the search explores, and the optional transports
// for cross-process bound sharing, persistence, and observability.
type Config struct {
	InpFile string
	RptFile string
	OutFile string

	Rank  int
	Ranks int

	Horizon          int
	ActuationCeiling int
	CheckpointMode   string // "replay" or "file"
	CheckpointPath   string

	SpeedDomain        []float64
	PumpIDs            []string
	TankIDs            []string
	NodeIDs            []string
	PressureThresholds map[string]float64
	LevelMin           float64
	LevelMax           float64
	InitialLevel       float64

	RedisAddr string
	DBDSN     string
	HTTPAddr  string
}

const (
	defaultLevelMin     = 66.531
	defaultLevelMax     = 71.529
	defaultInitialLevel = 66.93
)

const (
	defaultSpeedDomain        = "0,1"
	defaultPumpIDs            = "111,222,333"
	defaultTankIDs            = "65,165,265"
	defaultNodeIDs            = "55,90,170"
	defaultPressureThresholds = "55:42,90:51,170:30"
)

// Parse builds a Config from args. Rank, ranks, the network id lists,
// thresholds, level bounds and the optional transport addresses fall back
// to BB_* environment variables when not given as a flag; horizon,
// actuation ceiling and checkpoint settings are read from flags only.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)

	rank := fs.Int("rank", envInt("BB_RANK", 0), "this process's rank in [0, ranks)")
	ranks := fs.Int("ranks", envInt("BB_RANKS", 1), "total number of ranks in the collective")
	horizon := fs.Int("horizon", 23, "last period index of the 24-hour schedule")
	actuationCeiling := fs.Int("actuation-ceiling", 0, "max pump on/off transitions per pump (0 disables the check)")
	checkpointMode := fs.String("checkpoint-mode", "replay", "backtrack strategy: replay or file")
	checkpointPath := fs.String("checkpoint-path", "", "path for the file checkpoint strategy")
	speedDomain := fs.String("speed-domain", envString("BB_SPEED_DOMAIN", defaultSpeedDomain), "comma-separated discrete pump speed factors")
	pumps := fs.String("pumps", envString("BB_PUMPS", defaultPumpIDs), "comma-separated pump ids")
	tanks := fs.String("tanks", envString("BB_TANKS", defaultTankIDs), "comma-separated tank ids")
	nodes := fs.String("nodes", envString("BB_NODES", defaultNodeIDs), "comma-separated monitored node ids")
	pressureThresholds := fs.String("pressure-thresholds", envString("BB_PRESSURE_THRESHOLDS", defaultPressureThresholds), "comma-separated node:minPressure pairs")
	levelMin := fs.Float64("level-min", envFloat("BB_LEVEL_MIN", defaultLevelMin), "minimum admissible tank head")
	levelMax := fs.Float64("level-max", envFloat("BB_LEVEL_MAX", defaultLevelMax), "maximum admissible tank head")
	initialLevel := fs.Float64("initial-level", envFloat("BB_INITIAL_LEVEL", defaultInitialLevel), "tank head the end-of-horizon STABILITY check compares against")
	redisAddr := fs.String("redis-addr", os.Getenv("BB_REDIS_ADDR"), "optional Redis address for cross-process bound sharing")
	dbDSN := fs.String("db-dsn", os.Getenv("BB_DB_DSN"), "optional Postgres DSN for the run ledger")
	httpAddr := fs.String("http-addr", os.Getenv("BB_HTTP_ADDR"), "optional address to serve /health, /metrics and /ws on")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	positional := fs.Args()
	if len(positional) < 2 {
		return nil, fmt.Errorf("config: usage: engine <inpFile> <rptFile> [<outFile>]")
	}

	domain, err := parseFloatCSV(*speedDomain)
	if err != nil {
		return nil, fmt.Errorf("config: speed-domain: %w", err)
	}
	thresholds, err := parsePressureThresholds(*pressureThresholds)
	if err != nil {
		return nil, fmt.Errorf("config: pressure-thresholds: %w", err)
	}

	cfg := &Config{
		InpFile:            positional[0],
		RptFile:            positional[1],
		Rank:               *rank,
		Ranks:              *ranks,
		Horizon:            *horizon,
		ActuationCeiling:   *actuationCeiling,
		CheckpointMode:     *checkpointMode,
		CheckpointPath:     *checkpointPath,
		SpeedDomain:        domain,
		PumpIDs:            parseStringCSV(*pumps),
		TankIDs:            parseStringCSV(*tanks),
		NodeIDs:            parseStringCSV(*nodes),
		PressureThresholds: thresholds,
		LevelMin:           *levelMin,
		LevelMax:           *levelMax,
		InitialLevel:       *initialLevel,
		RedisAddr:          *redisAddr,
		DBDSN:              *dbDSN,
		HTTPAddr:           *httpAddr,
	}
	if len(positional) >= 3 {
		cfg.OutFile = positional[2]
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Ranks {
		return nil, fmt.Errorf("config: rank %d out of range [0,%d)", cfg.Rank, cfg.Ranks)
	}
	if cfg.Horizon < 0 {
		return nil, fmt.Errorf("config: horizon %d must be >= 0 (the index of the final period; 0 is a single-period run)", cfg.Horizon)
	}
	return cfg, nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func parseFloatCSV(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return vals, nil
}

func parseStringCSV(s string) []string {
	fields := strings.Split(s, ",")
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}

func parsePressureThresholds(s string) (map[string]float64, error) {
	pairs := strings.Split(s, ",")
	thresholds := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair %q, want id:minPressure", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold for %q: %w", kv[0], err)
		}
		thresholds[strings.TrimSpace(kv[0])] = v
	}
	return thresholds, nil
}
