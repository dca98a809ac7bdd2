package gpu

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/systems"
)

// SoftwareDevice runs the kernel's arithmetic on the host from the packed
// buffers alone. It scans every pedestrian instead of the grid ranges, which
// gives the same forces whenever the grid unit covers the cutoff.
type SoftwareDevice struct {
	static *Static
	frame  systems.Frame
	out    []float32
	closed bool
}

// NewSoftwareDevice returns an idle software device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

// Upload implements Device.
func (d *SoftwareDevice) Upload(s *Static) error {
	if d.closed {
		return errors.New("device closed")
	}
	if !s.Params.UseDistanceMap {
		return ErrSegmentObstacles
	}
	plane := s.Rows * s.Cols
	if s.Layers < 1 || len(s.Field) != s.Layers*plane {
		return fmt.Errorf("field has %d floats, want %d layers of %d", len(s.Field), s.Layers, plane)
	}

	layer := func(k int) field.Grid {
		g := field.NewGrid(s.Rows, s.Cols, 0)
		for i, v := range s.Field[k*plane : (k+1)*plane] {
			g.Data[i] = float64(v)
		}
		return g
	}
	potentials := make([]field.Grid, s.Layers-1)
	for k := range potentials {
		potentials[k] = layer(k + 1)
	}
	f, err := field.FromGrids(float64(s.Unit), layer(0), potentials)
	if err != nil {
		return err
	}

	p := s.Params
	d.static = s
	d.frame = systems.Frame{
		Field: f,
		Params: systems.Params{
			DT:               float64(p.DT),
			Tau:              float64(p.Tau),
			A:                float64(p.A),
			B:                float64(p.B),
			Lookahead:        float64(p.Lookahead),
			CosPhi:           float64(p.CosPhi),
			UnseenFactor:     float64(p.UnseenFactor),
			CutoffSq:         float64(p.CutoffSq),
			ObstacleStrength: float64(p.ObstacleStrength),
			ObstacleRange:    float64(p.ObstacleRange),
			UseDistanceMap:   p.UseDistanceMap,
			Overshoot:        float64(p.Overshoot),
		},
	}
	return nil
}

// Dispatch implements Device.
func (d *SoftwareDevice) Dispatch(ctx context.Context, p *Packet) ([]float32, error) {
	if d.closed || d.static == nil {
		return nil, errors.New("device not ready")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, dest := range p.Dest[:p.N] {
		if int(dest) < 0 || int(dest) >= d.static.Layers-1 {
			return nil, fmt.Errorf("destination %d has no field layer", dest)
		}
	}

	cur := &d.frame.Cur
	cur.Reset()
	for i := 0; i < p.N; i++ {
		cur.Append(
			r2.Vec{X: float64(p.Pos[2*i]), Y: float64(p.Pos[2*i+1])},
			r2.Vec{X: float64(p.Vel[2*i]), Y: float64(p.Vel[2*i+1])},
			p.Dest[i],
			float64(p.Speed[i]),
		)
	}
	d.frame.PrepareNext()
	systems.StepRange(&d.frame, 0, p.N)

	d.out = grow(d.out, 4*p.N)
	for i := 0; i < p.N; i++ {
		pos, vel := d.frame.Next.Pos[i], d.frame.Next.Vel[i]
		d.out[4*i] = float32(pos.X)
		d.out[4*i+1] = float32(pos.Y)
		d.out[4*i+2] = float32(vel.X)
		d.out[4*i+3] = float32(vel.Y)
	}
	return d.out, nil
}

// Close implements Device.
func (d *SoftwareDevice) Close() error {
	d.closed = true
	return nil
}
