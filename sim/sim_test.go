package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/geom"
	"github.com/pthm-cable/pedoni/gpu"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/systems"
	"github.com/pthm-cable/pedoni/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// burst is a corridor that releases count pedestrians on the first tick only.
func burst(count int) *scenario.Scenario {
	s := scenario.Corridor()
	s.Sources = []scenario.Source{
		{Origin: 0, Destination: 1, Spawn: scenario.Spawn{Kind: scenario.Once, Count: count}},
	}
	return &s
}

func newSim(t *testing.T, cfg *config.Config, scn *scenario.Scenario, opts ...Option) *Simulation {
	t.Helper()
	s, err := New(context.Background(), cfg, scn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func run(t *testing.T, s *Simulation, ticks int) (spawned, arrived int, crowd []telemetry.CrowdStats) {
	t.Helper()
	for range ticks {
		res, err := s.Tick(context.Background())
		require.NoError(t, err)
		spawned += res.Spawned
		arrived += res.Arrived
		if res.Crowd != nil {
			crowd = append(crowd, *res.Crowd)
		}
	}
	return spawned, arrived, crowd
}

func TestSimulation_Corridor(t *testing.T) {
	cfg := config.MustLoad("")
	scn := scenario.Corridor()
	s := newSim(t, cfg, &scn)

	spawned, arrived, crowd := run(t, s, 400)

	assert.Positive(t, spawned)
	assert.Positive(t, arrived, "nobody reached the exit")
	assert.Equal(t, spawned-arrived, s.Active())
	assert.Equal(t, int32(400), s.TickCount())
	require.Len(t, crowd, 4)
	assert.Equal(t, int32(100), crowd[0].WindowEndTick)

	var windowArrivals int
	for _, c := range crowd {
		windowArrivals += c.Arrived
	}
	assert.Equal(t, arrived, windowArrivals)

	snap := s.Snapshot()
	require.Len(t, snap.Pedestrians, s.Active())
	for i, p := range snap.Pedestrians {
		if i > 0 {
			assert.Less(t, snap.Pedestrians[i-1].ID, p.ID)
		}
		assert.True(t, p.X > 0 && p.X < 20 && p.Y > 0 && p.Y < 5, "pedestrian %d left the corridor at (%v, %v)", p.ID, p.X, p.Y)
		assert.Equal(t, int32(1), p.Destination)
	}
}

func TestSimulation_WalksTowardExit(t *testing.T) {
	cfg := config.MustLoad("")
	s := newSim(t, cfg, burst(1))

	run(t, s, 1)
	start := s.Snapshot().Pedestrians[0]
	run(t, s, 20)
	later := s.Snapshot().Pedestrians[0]

	assert.Greater(t, later.X, start.X+1)
	assert.Positive(t, later.VX)
}

func TestSimulation_LoneWalkerMonotone(t *testing.T) {
	cfg := config.MustLoad("")
	s := newSim(t, cfg, burst(1))

	// Skip the first ticks while the walker accelerates from rest.
	const warmup = 10
	prev := math.Inf(1)
	sign := 0.0
	ticks := 0
	for s.Active() > 0 || ticks == 0 {
		require.Less(t, ticks, 1000, "walker never arrived")
		run(t, s, 1)
		ticks++
		snap := s.Snapshot().Pedestrians
		if len(snap) == 0 {
			break
		}
		p := snap[0]

		u := s.Field().Potential(1, r2.Vec{X: p.X, Y: p.Y})
		assert.LessOrEqual(t, u, prev+1e-9, "potential rose at tick %d", ticks)
		prev = u

		if ticks > warmup {
			if sign == 0 {
				sign = math.Copysign(1, p.VX)
			}
			assert.Equal(t, sign, math.Copysign(1, p.VX), "vx changed sign at tick %d", ticks)
		}
	}
	assert.Positive(t, sign)
	assert.Greater(t, ticks, warmup)
}

func TestSimulation_AllArrive(t *testing.T) {
	cfg := config.MustLoad("")
	s := newSim(t, cfg, burst(20))

	spawned, arrived, _ := run(t, s, 1200)
	assert.Equal(t, 20, spawned)
	assert.Equal(t, 20, arrived)
	assert.Zero(t, s.Active())
	assert.Empty(t, s.Snapshot().Pedestrians)
}

// countingEvaluator records calls and optionally fails.
type countingEvaluator struct {
	calls int
	err   error
}

func (e *countingEvaluator) Name() string { return "counting" }

func (e *countingEvaluator) Evaluate(_ context.Context, f *systems.Frame) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	systems.StepRange(f, 0, f.Cur.Len())
	return nil
}

func (e *countingEvaluator) Close() error { return nil }

func TestSimulation_NoPedestrians(t *testing.T) {
	cfg := config.MustLoad("")
	ev := &countingEvaluator{}
	s := newSim(t, cfg, burst(0), WithEvaluator(ev))

	for range 5 {
		res, err := s.Tick(context.Background())
		require.NoError(t, err)
		assert.Zero(t, res.Active)
	}
	assert.Zero(t, ev.calls)
	assert.Zero(t, s.Frame().Next.Len())
	assert.Equal(t, int32(5), s.TickCount())
}

func TestSimulation_EvaluationFailure(t *testing.T) {
	cfg := config.MustLoad("")
	boom := errors.New("boom")
	ev := &countingEvaluator{err: boom}
	s := newSim(t, cfg, burst(5), WithEvaluator(ev))

	_, err := s.Tick(context.Background())
	require.ErrorIs(t, err, boom)

	// Spawns stay, nothing moved, the clock did not advance.
	assert.Equal(t, int32(0), s.TickCount())
	snap := s.Snapshot()
	require.Len(t, snap.Pedestrians, 5)
	for _, p := range snap.Pedestrians {
		assert.Zero(t, p.VX)
		assert.Zero(t, p.VY)
	}
}

func TestSimulation_CanceledContext(t *testing.T) {
	cfg := config.MustLoad("")
	s := newSim(t, cfg, burst(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Active())
}

func TestSimulation_ParallelMatchesInline(t *testing.T) {
	inlineCfg := config.MustLoad("")
	inlineCfg.Parallel.Workers = 1

	parCfg := config.MustLoad("")
	parCfg.Parallel.Workers = 4
	parCfg.Parallel.Threshold = 0
	parCfg.Parallel.ChunkSize = 8

	scn := scenario.Bottleneck()
	a := newSim(t, inlineCfg, &scn)
	scn2 := scenario.Bottleneck()
	b := newSim(t, parCfg, &scn2, WithField(a.Field()))

	run(t, a, 80)
	run(t, b, 80)

	assert.Equal(t, a.Snapshot().Pedestrians, b.Snapshot().Pedestrians)
}

func TestSimulation_NeighborGridDisabled(t *testing.T) {
	cfg := config.MustLoad("")
	scn := burst(30)
	withGrid := newSim(t, cfg, scn)

	off := config.MustLoad("")
	off.Neighbor.Enabled = false
	noGrid := newSim(t, off, burst(30), WithField(withGrid.Field()))

	run(t, withGrid, 30)
	run(t, noGrid, 30)

	want := withGrid.Snapshot().Pedestrians
	got := noGrid.Snapshot().Pedestrians
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].X, got[i].X, 1e-6)
		assert.InDelta(t, want[i].Y, got[i].Y, 1e-6)
	}
}

func TestSimulation_GPUBackend(t *testing.T) {
	cfg := config.MustLoad("")
	cfg.Backend.Kind = config.BackendGPU
	s := newSim(t, cfg, burst(10), WithDevice(gpu.NewSoftwareDevice()))
	assert.Equal(t, "gpu", s.Backend())

	spawned, arrived, _ := run(t, s, 1200)
	assert.Equal(t, 10, spawned)
	assert.Equal(t, 10, arrived)
}

// failingDevice accepts uploads and fails every dispatch.
type failingDevice struct{}

func (failingDevice) Upload(*gpu.Static) error { return nil }

func (failingDevice) Dispatch(context.Context, *gpu.Packet) ([]float32, error) {
	return nil, errors.New("device lost")
}

func (failingDevice) Close() error { return nil }

func TestSimulation_GPUFailureIsReported(t *testing.T) {
	cfg := config.MustLoad("")
	cfg.Backend.Kind = config.BackendGPU
	s := newSim(t, cfg, burst(3), WithDevice(failingDevice{}))

	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, gpu.ErrDispatchFailed)
	assert.Equal(t, int32(0), s.TickCount())
	assert.Equal(t, 3, s.Active())
}

func TestNew_LogsFieldSolve(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	newSim(t, config.MustLoad(""), burst(1), WithLogger(logger))

	var ready struct {
		Msg        string `json:"msg"`
		FieldSolve int64  `json:"field_solve"`
	}
	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		require.NoError(t, json.Unmarshal(line, &ready))
		if ready.Msg == "simulation ready" {
			found = true
			break
		}
	}
	require.True(t, found, "no ready line in %s", buf.String())
	assert.Positive(t, ready.FieldSolve)
}

func TestNew_Errors(t *testing.T) {
	t.Run("gpu without device", func(t *testing.T) {
		cfg := config.MustLoad("")
		cfg.Backend.Kind = config.BackendGPU
		_, err := New(context.Background(), cfg, burst(1))
		assert.ErrorIs(t, err, ErrNoDevice)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.MustLoad("")
		cfg.Backend.Kind = "quantum"
		_, err := New(context.Background(), cfg, burst(1))
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("bad scenario", func(t *testing.T) {
		cfg := config.MustLoad("")
		scn := burst(1)
		scn.Sources[0].Destination = 7
		_, err := New(context.Background(), cfg, scn)
		assert.ErrorIs(t, err, scenario.ErrInvalid)
	})

	t.Run("field mismatch", func(t *testing.T) {
		cfg := config.MustLoad("")
		one := &scenario.Scenario{
			Name:      "one",
			Size:      r2.Vec{X: 10, Y: 10},
			Waypoints: []scenario.Waypoint{{Line: geom.Seg(5, 2, 5, 8)}},
		}
		s := newSim(t, cfg, one)
		_, err := New(context.Background(), cfg, burst(1), WithField(s.Field()))
		assert.Error(t, err)
	})
}
