package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	// Simulate a few ticks
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseNeighborGrid)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseForceEval)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick(20)
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}
	if _, ok := stats.PhaseAvg[PhaseNeighborGrid]; !ok {
		t.Error("expected neighbor_grid phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseForceEval]; !ok {
		t.Error("expected force_eval phase to be tracked")
	}
	if stats.AvgActive != 20 {
		t.Errorf("AvgActive = %v, want 20", stats.AvgActive)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5) // Small window

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseSpawn)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick(i)
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
	// Only the last five ticks (active 5..9) remain in the window
	if stats.AvgActive != 7 {
		t.Errorf("AvgActive = %v, want 7", stats.AvgActive)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseCommit)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseForceEval)
		time.Sleep(2 * time.Millisecond)
		pc.EndTick(1)
	}

	stats := pc.Stats()

	fastPct := stats.PhasePct[PhaseCommit]
	slowPct := stats.PhasePct[PhaseForceEval]
	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}

	row := stats.ToCSV(50)
	if row.WindowEnd != 50 || row.ForceEvalPct != slowPct {
		t.Errorf("ToCSV = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	// Empty collector should return zero values without panicking
	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}
	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}
	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfSample_StepMetrics(t *testing.T) {
	s := PerfSample{
		TickDuration: 5 * time.Millisecond,
		Phases: map[string]time.Duration{
			PhaseForceEval: 4 * time.Millisecond,
			PhaseCommit:    time.Millisecond,
		},
		Active: 1000,
	}

	m := s.ToStepMetrics(7)
	if m.Tick != 7 || m.TickUS != 5000 || m.ForceEvalUS != 4000 || m.CommitUS != 1000 {
		t.Errorf("unexpected step metrics %+v", m)
	}
	if m.ForceEvalPerPed != 4000 {
		t.Errorf("ForceEvalPerPed = %v, want 4000ns", m.ForceEvalPerPed)
	}

	if empty := (PerfSample{}).ToStepMetrics(0); empty.ForceEvalPerPed != 0 {
		t.Errorf("no pedestrians should give zero per-ped time, got %v", empty.ForceEvalPerPed)
	}
}
