package gpu

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/systems"
)

// corridorFrame returns a frame with n pedestrians sorted by neighbor cell.
func corridorFrame(t *testing.T, n int) *systems.Frame {
	t.Helper()
	cfg := config.MustLoad("")
	s := scenario.Corridor()
	s.ApplyDefaults(cfg.Field.ObstacleWidth)
	f, err := field.FromScenario(context.Background(), &s, cfg.Field.Unit, cfg.Field.ObstacleCost)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(5, 6))
	var raw systems.State
	for i := 0; i < n; i++ {
		raw.Append(
			r2.Vec{X: 2 + 16*rng.Float64(), Y: 1.2 + 2.6*rng.Float64()},
			r2.Vec{X: rng.Float64() - 0.2, Y: 0.4*rng.Float64() - 0.2},
			int32(i%2),
			1.0+0.6*rng.Float64(),
		)
	}

	grid := systems.NewNeighborGrid(f.Size(), cfg.Neighbor.Unit)
	grid.Update(raw.Pos)
	order, _ := grid.Layout()

	frame := &systems.Frame{Grid: grid, Field: f, Params: systems.ParamsFromConfig(cfg)}
	raw.PermuteInto(&frame.Cur, order)
	frame.PrepareNext()
	return frame
}

func TestNewStatic(t *testing.T) {
	frame := corridorFrame(t, 1)
	s := NewStatic(frame.Field, frame.Grid, frame.Params, 64)

	rows, cols := frame.Field.Shape()
	assert.Equal(t, 3, s.Layers)
	assert.Len(t, s.Field, 3*rows*cols)
	assert.True(t, s.UseGrid)
	assert.Equal(t, float32(2), s.GridUnit)

	plane := rows * cols
	k := 10*cols + 40
	assert.Equal(t, float32(frame.Field.DistanceGrid().Data[k]), s.Field[k])
	assert.Equal(t, float32(frame.Field.PotentialGrid(1).Data[k]), s.Field[2*plane+k])

	noGrid := NewStatic(frame.Field, nil, frame.Params, 64)
	assert.False(t, noGrid.UseGrid)
}

func TestPacket_Pack(t *testing.T) {
	frame := corridorFrame(t, 50)
	var p Packet
	p.Pack(frame)

	require.Equal(t, 50, p.N)
	assert.Len(t, p.Pos, 100)
	for i := 0; i < p.N; i++ {
		assert.Equal(t, float32(frame.Cur.Pos[i].X), p.Pos[2*i])
		assert.Equal(t, float32(frame.Cur.Vel[i].Y), p.Vel[2*i+1])
		assert.Equal(t, frame.Cur.Dest[i], p.Dest[i])
	}
	_, offsets := frame.Grid.Layout()
	assert.Equal(t, offsets, p.Offsets)

	// Buffers are reused when the crowd shrinks
	frame.Cur.Resize(10)
	p.Pack(frame)
	assert.Equal(t, 10, p.N)
	assert.Len(t, p.Speed, 10)
}

func TestEvaluator_MatchesCPU(t *testing.T) {
	frame := corridorFrame(t, 100)

	systems.StepRange(frame, 0, frame.Cur.Len())
	wantPos := append([]r2.Vec(nil), frame.Next.Pos...)
	wantVel := append([]r2.Vec(nil), frame.Next.Vel...)

	ev, err := NewEvaluator(NewSoftwareDevice(), NewStatic(frame.Field, frame.Grid, frame.Params, 64), time.Second)
	require.NoError(t, err)
	defer ev.Close()

	frame.PrepareNext()
	require.NoError(t, ev.Evaluate(context.Background(), frame))

	for i := range wantVel {
		assert.InDelta(t, wantVel[i].X, frame.Next.Vel[i].X, 2e-3, "ped %d", i)
		assert.InDelta(t, wantVel[i].Y, frame.Next.Vel[i].Y, 2e-3, "ped %d", i)
		assert.InDelta(t, wantPos[i].X, frame.Next.Pos[i].X, 2e-3, "ped %d", i)
		assert.InDelta(t, wantPos[i].Y, frame.Next.Pos[i].Y, 2e-3, "ped %d", i)
	}
}

// stubDevice records dispatches and fails on demand.
type stubDevice struct {
	dispatches int
	err        error
	block      bool
	out        []float32
}

func (d *stubDevice) Upload(*Static) error { return nil }

func (d *stubDevice) Dispatch(ctx context.Context, p *Packet) ([]float32, error) {
	d.dispatches++
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.out != nil {
		return d.out, nil
	}
	return make([]float32, 4*p.N), nil
}

func (d *stubDevice) Close() error { return nil }

func TestEvaluator_ZeroPedestrians(t *testing.T) {
	frame := corridorFrame(t, 0)
	dev := &stubDevice{}
	ev, err := NewEvaluator(dev, &Static{}, time.Second)
	require.NoError(t, err)

	require.NoError(t, ev.Evaluate(context.Background(), frame))
	assert.Zero(t, dev.dispatches)
	assert.Zero(t, frame.Next.Len())
}

func TestEvaluator_Errors(t *testing.T) {
	frame := corridorFrame(t, 5)

	t.Run("timeout", func(t *testing.T) {
		ev, err := NewEvaluator(&stubDevice{block: true}, &Static{}, 10*time.Millisecond)
		require.NoError(t, err)
		err = ev.Evaluate(context.Background(), frame)
		assert.ErrorIs(t, err, ErrDispatchTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("device error", func(t *testing.T) {
		boom := errors.New("context lost")
		ev, err := NewEvaluator(&stubDevice{err: boom}, &Static{}, time.Second)
		require.NoError(t, err)
		err = ev.Evaluate(context.Background(), frame)
		assert.ErrorIs(t, err, ErrDispatchFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("short result", func(t *testing.T) {
		ev, err := NewEvaluator(&stubDevice{out: make([]float32, 3)}, &Static{}, time.Second)
		require.NoError(t, err)
		assert.ErrorIs(t, ev.Evaluate(context.Background(), frame), ErrDispatchFailed)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ev, err := NewEvaluator(&stubDevice{block: true}, &Static{}, time.Second)
		require.NoError(t, err)
		err = ev.Evaluate(ctx, frame)
		assert.ErrorIs(t, err, ErrDispatchFailed)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSoftwareDevice_BadDestination(t *testing.T) {
	frame := corridorFrame(t, 3)
	dev := NewSoftwareDevice()
	require.NoError(t, dev.Upload(NewStatic(frame.Field, nil, frame.Params, 64)))

	frame.Cur.Dest[1] = 9
	var p Packet
	p.Pack(frame)
	_, err := dev.Dispatch(context.Background(), &p)
	assert.Error(t, err)
}

func TestKernelSource(t *testing.T) {
	src := KernelSource(128)
	assert.True(t, strings.HasPrefix(src, "#version 430"))
	assert.Contains(t, src, "local_size_x = 128")
	assert.NotContains(t, src, "LOCAL_SIZE")
}

func TestSoftwareDevice_RequiresDistanceMap(t *testing.T) {
	frame := corridorFrame(t, 3)
	frame.Params.UseDistanceMap = false
	static := NewStatic(frame.Field, nil, frame.Params, 64)
	assert.False(t, static.Params.UseDistanceMap)

	err := NewSoftwareDevice().Upload(static)
	assert.ErrorIs(t, err, ErrSegmentObstacles)

	// The evaluator surfaces the upload failure instead of running a
	// different wall model.
	_, err = NewEvaluator(NewSoftwareDevice(), static, time.Second)
	assert.ErrorIs(t, err, ErrSegmentObstacles)
}
