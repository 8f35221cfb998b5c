package simulator

import "testing"

func TestStubLifecycle(t *testing.T) {
	s := NewStub()
	if err := s.Load("network.inp"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.OpenHydraulics(); err != nil {
		t.Fatalf("OpenHydraulics: %v", err)
	}
	if err := s.InitHydraulics(NoSave); err != nil {
		t.Fatalf("InitHydraulics: %v", err)
	}
	defer s.CloseHydraulics()

	pumpIdx, err := s.IndexOf(ElementLink, "111")
	if err != nil {
		t.Fatalf("IndexOf pump: %v", err)
	}
	if err := s.SetPattern(pumpIdx, 0, 1.0); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}

	if _, err := s.RunStep(); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	step, err := s.NextStep()
	if err != nil {
		t.Fatalf("NextStep: %v", err)
	}
	if step != hydraulicTimestep {
		t.Fatalf("NextStep = %d, want %d", step, hydraulicTimestep)
	}

	cost, err := s.PumpTotalCost(pumpIdx)
	if err != nil {
		t.Fatalf("PumpTotalCost: %v", err)
	}
	if cost <= 0 {
		t.Fatalf("expected positive accumulated cost for a running pump, got %v", cost)
	}
}

func TestStubNextStepEndsHorizon(t *testing.T) {
	s := NewStub()
	s.Load("x")
	s.OpenHydraulics()
	s.InitHydraulics(NoSave)
	var total int
	for {
		step, err := s.NextStep()
		if err != nil {
			t.Fatalf("NextStep: %v", err)
		}
		if step == 0 {
			break
		}
		total += step
	}
	if total != 24*hydraulicTimestep {
		t.Fatalf("horizon total = %d, want %d", total, 24*hydraulicTimestep)
	}
}

func TestSaveAndInitRestoresSnapshotNotPristineState(t *testing.T) {
	s := NewStub()
	s.Load("network.inp")
	s.OpenHydraulics()
	s.InitHydraulics(NoSave)

	pumpIdx, err := s.IndexOf(ElementLink, "111")
	if err != nil {
		t.Fatalf("IndexOf: %v", err)
	}
	if err := s.SetPattern(pumpIdx, 0, 1.0); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	if _, err := s.RunStep(); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if _, err := s.NextStep(); err != nil {
		t.Fatalf("NextStep: %v", err)
	}
	levelAfterStep, err := s.GetNodeValue(1, NodeHead)
	if err != nil {
		t.Fatalf("GetNodeValue: %v", err)
	}
	if levelAfterStep == initialTankLevel {
		t.Fatal("expected tank level to move after a running step")
	}

	if err := s.InitHydraulics(Save); err != nil {
		t.Fatalf("InitHydraulics(Save): %v", err)
	}
	if err := s.SetPattern(pumpIdx, 1, 1.0); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	if _, err := s.RunStep(); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if _, err := s.NextStep(); err != nil {
		t.Fatalf("NextStep: %v", err)
	}

	if err := s.InitHydraulics(SaveAndInit); err != nil {
		t.Fatalf("InitHydraulics(SaveAndInit): %v", err)
	}
	restored, err := s.GetNodeValue(1, NodeHead)
	if err != nil {
		t.Fatalf("GetNodeValue: %v", err)
	}
	if restored != levelAfterStep {
		t.Fatalf("restored level = %v, want the Save snapshot's %v", restored, levelAfterStep)
	}
	if restored == initialTankLevel {
		t.Fatal("SaveAndInit should not fall back to a pristine reset once a snapshot exists")
	}
}

func TestLoadErrorIsFatal(t *testing.T) {
	s := NewStub()
	err := s.Load("")
	var le *LoadError
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if !asLoadError(err, &le) {
		t.Fatalf("expected *LoadError, got %T", err)
	}
}

func asLoadError(err error, target **LoadError) bool {
	le, ok := err.(*LoadError)
	if !ok {
		return false
	}
	*target = le
	return true
}
