package simulator

import (
	"fmt"
	"sync"
)

// DefaultPumpIDs, DefaultTankIDs and DefaultMonitorNodeIDs mirror the
// reference network's element identifiers: three booster pumps, three
// storage tanks, and three pressure-monitored junctions.
var (
	DefaultPumpIDs        = []string{"111", "222", "333"}
	DefaultTankIDs        = []string{"65", "165", "265"}
	DefaultMonitorNodeIDs = []string{"55", "90", "170"}
)

const (
	initialTankLevel  = 66.93
	hydraulicTimestep = 3600
)

// Stub is a deterministic, in-memory Simulator. It does not solve any real
// hydraulic network; it advances a small synthetic state (tank levels,
// monitored pressures, accumulated pump energy cost) as a function of the
// pattern values the engine sets, closely enough to exercise every code
// path of the search without a real solver wired in.
type Stub struct {
	mu sync.Mutex

	loaded  bool
	hydOpen bool

	clock int // seconds since the start of the current horizon

	tankLevel     map[string]float64
	nodeHead      map[string]float64
	pumpCost      map[string]float64
	currentFactor map[string]float64      // link id -> most recently set pattern value
	patterns      map[int]map[int]float64 // patternIndex -> period -> value

	hasSnapshot       bool
	snapshotClock     int
	snapshotTankLevel map[string]float64
	snapshotNodeHead  map[string]float64
	snapshotPumpCost  map[string]float64

	pumpIDs []string
	tankIDs []string
	nodeIDs []string
	indexOf map[string]int // "kind:id" -> index
	idOf    map[string]string
}

// NewStub builds a Stub over the reference three-pump/three-tank/three-node
// network.
func NewStub() *Stub {
	s := &Stub{
		tankLevel:     make(map[string]float64),
		nodeHead:      make(map[string]float64),
		pumpCost:      make(map[string]float64),
		currentFactor: make(map[string]float64),
		patterns:      make(map[int]map[int]float64),
		indexOf:       make(map[string]int),
		idOf:          make(map[string]string),
	}
	s.pumpIDs = append(s.pumpIDs, DefaultPumpIDs...)
	s.tankIDs = append(s.tankIDs, DefaultTankIDs...)
	s.nodeIDs = append(s.nodeIDs, DefaultMonitorNodeIDs...)

	idx := 1
	for _, id := range s.tankIDs {
		s.register(ElementNode, id, idx)
		s.tankLevel[id] = initialTankLevel
		idx++
	}
	for _, id := range s.nodeIDs {
		s.register(ElementNode, id, idx)
		s.nodeHead[id] = initialTankLevel
		idx++
	}
	linkIdx := 1
	for _, id := range s.pumpIDs {
		s.register(ElementLink, id, linkIdx)
		s.pumpCost[id] = 0
		s.patterns[linkIdx] = make(map[int]float64)
		linkIdx++
	}
	return s
}

func (s *Stub) register(kind ElementKind, id string, index int) {
	key := fmt.Sprintf("%d:%d", kind, index)
	s.indexOf[fmt.Sprintf("%d:%s", kind, id)] = index
	s.idOf[key] = id
}

func (s *Stub) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		return FromCode("Load", 101)
	}
	s.loaded = true
	return nil
}

func (s *Stub) TimeParam(code int) (int, error) {
	return hydraulicTimestep, nil
}

func (s *Stub) OpenHydraulics() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return FromCode("OpenHydraulics", 102)
	}
	s.hydOpen = true
	return nil
}

// InitHydraulics (re)initializes hydraulic state per mode. NoSave resets
// everything to the network's initial conditions. Save snapshots the
// current state without touching it, so a later SaveAndInit can restore
// exactly to this point instead of to period 0; if nothing has been
// saved yet, SaveAndInit falls back to a NoSave reset.
func (s *Stub) InitHydraulics(mode HydraulicsMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydOpen {
		return FromCode("InitHydraulics", 103)
	}
	switch mode {
	case Save:
		s.snapshotClock = s.clock
		s.snapshotTankLevel = cloneFloatMap(s.tankLevel)
		s.snapshotNodeHead = cloneFloatMap(s.nodeHead)
		s.snapshotPumpCost = cloneFloatMap(s.pumpCost)
		s.hasSnapshot = true
		return nil
	case SaveAndInit:
		if s.hasSnapshot {
			s.clock = s.snapshotClock
			s.tankLevel = cloneFloatMap(s.snapshotTankLevel)
			s.nodeHead = cloneFloatMap(s.snapshotNodeHead)
			s.pumpCost = cloneFloatMap(s.snapshotPumpCost)
			return nil
		}
	}
	s.clock = 0
	for id := range s.pumpCost {
		s.pumpCost[id] = 0
	}
	for id := range s.tankLevel {
		s.tankLevel[id] = initialTankLevel
	}
	for id := range s.nodeHead {
		s.nodeHead[id] = initialTankLevel
	}
	return nil
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (s *Stub) CloseHydraulics() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydOpen = false
	return nil
}

// RunStep integrates one hydraulic timestep. Every pump whose pattern has
// a value for the current period moves all tank levels and monitored-node
// heads by the same share: a running pump (factor > 0) raises them, an
// idle one (factor 0) lets them fall. A pump whose pattern was never set
// for the period has no effect.
func (s *Stub) RunStep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydOpen {
		return 0, FromCode("RunStep", 104)
	}

	period := s.clock / hydraulicTimestep
	var netDrive float64
	for i, id := range s.pumpIDs {
		linkIdx := i + 1
		factor, set := s.patterns[linkIdx][period]
		if !set {
			continue
		}
		if factor > 0 {
			netDrive += 0.35 * factor
			s.pumpCost[id] += factor * 1.2
		} else {
			netDrive -= 0.18
		}
	}
	for _, id := range s.tankIDs {
		s.tankLevel[id] += netDrive / float64(len(s.tankIDs))
	}
	for _, id := range s.nodeIDs {
		s.nodeHead[id] += netDrive / float64(len(s.nodeIDs))
	}
	return s.clock, nil
}

// NextStep returns the fixed hydraulic timestep until the 24-hour horizon
// is exhausted, at which point it returns 0 to signal the end of the
// simulation the way a real solver's ENnextH does.
func (s *Stub) NextStep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock >= 24*hydraulicTimestep {
		return 0, nil
	}
	s.clock += hydraulicTimestep
	return hydraulicTimestep, nil
}

func (s *Stub) GetNodeValue(nodeIndex int, property NodeProperty) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idOf[fmt.Sprintf("%d:%d", ElementNode, nodeIndex)]
	if !ok {
		return 0, FromCode("GetNodeValue", 205)
	}
	if level, ok := s.tankLevel[id]; ok {
		return level, nil
	}
	return s.nodeHead[id], nil
}

func (s *Stub) GetLinkValue(linkIndex int, property LinkProperty) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idOf[fmt.Sprintf("%d:%d", ElementLink, linkIndex)]
	if !ok {
		return 0, FromCode("GetLinkValue", 206)
	}
	switch property {
	case LinkEnergy:
		return s.pumpCost[id], nil
	default:
		return s.currentFactor[id], nil
	}
}

func (s *Stub) GetPatternValue(patternIndex, period int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patterns[patternIndex][period], nil
}

func (s *Stub) SetPattern(patternIndex, period int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[patternIndex]; !ok {
		return FromCode("SetPattern", 207)
	}
	s.patterns[patternIndex][period] = value
	if id, ok := s.idOf[fmt.Sprintf("%d:%d", ElementLink, patternIndex)]; ok {
		s.currentFactor[id] = value
	}
	return nil
}

func (s *Stub) PumpTotalCost(linkIndex int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idOf[fmt.Sprintf("%d:%d", ElementLink, linkIndex)]
	if !ok {
		return 0, FromCode("PumpTotalCost", 208)
	}
	return s.pumpCost[id], nil
}

func (s *Stub) IndexOf(kind ElementKind, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexOf[fmt.Sprintf("%d:%s", kind, id)]
	if !ok {
		return 0, FromCode("IndexOf", 209)
	}
	return idx, nil
}
