// Package gpu evaluates the social force model in a compute shader. The host
// side packs each tick into float32 buffers; a Device runs the kernel.
package gpu

import (
	"context"
	"errors"

	"github.com/pthm-cable/pedoni/systems"
)

// ErrSegmentObstacles is returned by Upload when the model asks for
// per-segment wall repulsion. The kernel only samples the distance map.
var ErrSegmentObstacles = errors.New("gpu kernel requires the obstacle distance map")

// Device runs the social force kernel.
type Device interface {
	// Upload replaces the static per-run data (field layers, grid shape,
	// model constants).
	Upload(s *Static) error
	// Dispatch evaluates one tick. The result holds vec4(next_pos, next_vel)
	// per pedestrian, 4*p.N floats.
	Dispatch(ctx context.Context, p *Packet) ([]float32, error)
	Close() error
}

// Static is the data that stays fixed for a run.
type Static struct {
	// Field layers: layer 0 is the obstacle distance map, layer k+1 the
	// potential toward waypoint k. Row-major, Rows*Cols floats per layer.
	Rows, Cols int
	Unit       float32
	Layers     int
	Field      []float32

	// Neighbor grid shape; UseGrid false scans every pedestrian.
	UseGrid            bool
	GridRows, GridCols int
	GridUnit           float32

	WorkGroupSize int
	Params        Params
}

// Params are the force model constants in float32 form.
type Params struct {
	DT               float32
	Tau              float32
	A, B             float32
	Lookahead        float32
	CosPhi           float32
	UnseenFactor     float32
	CutoffSq         float32
	ObstacleStrength float32
	ObstacleRange    float32
	Overshoot        float32
	UseDistanceMap   bool
}

// Packet is one tick's pedestrian state in upload layout.
type Packet struct {
	N       int
	Pos     []float32 // x, y pairs
	Vel     []float32 // x, y pairs
	Speed   []float32
	Dest    []int32
	Offsets []int32 // neighbor grid prefix offsets, cells+1
}

func paramsFrom(p systems.Params) Params {
	return Params{
		DT:               float32(p.DT),
		Tau:              float32(p.Tau),
		A:                float32(p.A),
		B:                float32(p.B),
		Lookahead:        float32(p.Lookahead),
		CosPhi:           float32(p.CosPhi),
		UnseenFactor:     float32(p.UnseenFactor),
		CutoffSq:         float32(p.CutoffSq),
		ObstacleStrength: float32(p.ObstacleStrength),
		ObstacleRange:    float32(p.ObstacleRange),
		Overshoot:        float32(p.Overshoot),
		UseDistanceMap:   p.UseDistanceMap,
	}
}
