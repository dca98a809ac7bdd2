package gpu

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/systems"
)

// NewStatic packs the field layers and constants a run needs on the device.
// grid may be nil when neighbor search is disabled.
func NewStatic(f *field.Field, grid *systems.NeighborGrid, p systems.Params, workGroupSize int) *Static {
	rows, cols := f.Shape()
	layers := 1 + f.Waypoints()
	plane := rows * cols

	s := &Static{
		Rows:          rows,
		Cols:          cols,
		Unit:          float32(f.Unit()),
		Layers:        layers,
		Field:         make([]float32, layers*plane),
		WorkGroupSize: workGroupSize,
		Params:        paramsFrom(p),
	}

	copyLayer(s.Field[:plane], f.DistanceGrid())
	for id := 0; id < f.Waypoints(); id++ {
		copyLayer(s.Field[(id+1)*plane:(id+2)*plane], f.PotentialGrid(id))
	}

	if grid != nil {
		s.UseGrid = true
		s.GridRows, s.GridCols = grid.Shape()
		s.GridUnit = float32(grid.Unit())
	}
	return s
}

func copyLayer(dst []float32, g field.Grid) {
	for i, v := range g.Data {
		dst[i] = float32(v)
	}
}

// Pack fills p from the frame's current state, reusing its buffers.
func (p *Packet) Pack(f *systems.Frame) {
	n := f.Cur.Len()
	p.N = n
	p.Pos = grow(p.Pos, 2*n)
	p.Vel = grow(p.Vel, 2*n)
	p.Speed = grow(p.Speed, n)
	p.Dest = grow(p.Dest, n)

	for i := 0; i < n; i++ {
		pos, vel := f.Cur.Pos[i], f.Cur.Vel[i]
		p.Pos[2*i], p.Pos[2*i+1] = float32(pos.X), float32(pos.Y)
		p.Vel[2*i], p.Vel[2*i+1] = float32(vel.X), float32(vel.Y)
		p.Speed[i] = float32(f.Cur.Speed[i])
		p.Dest[i] = f.Cur.Dest[i]
	}

	p.Offsets = p.Offsets[:0]
	if f.Grid != nil {
		_, offsets := f.Grid.Layout()
		p.Offsets = append(p.Offsets, offsets...)
	}
}

// Unpack writes a dispatch result into f.Next.
func Unpack(out []float32, f *systems.Frame) error {
	n := f.Cur.Len()
	if len(out) != 4*n {
		return fmt.Errorf("%w: result has %d floats, want %d", ErrDispatchFailed, len(out), 4*n)
	}
	for i := 0; i < n; i++ {
		o := out[4*i : 4*i+4]
		f.Next.Pos[i] = r2.Vec{X: float64(o[0]), Y: float64(o[1])}
		f.Next.Vel[i] = r2.Vec{X: float64(o[2]), Y: float64(o[3])}
	}
	return nil
}

func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n, n+n/2)
	}
	return s[:n]
}
