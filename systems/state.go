// Package systems holds the per-tick pedestrian systems: neighbor search,
// social force evaluation, obstacle repulsion and spawning.
package systems

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/field"
)

// State is a struct-of-arrays snapshot of every active pedestrian.
type State struct {
	Pos   []r2.Vec
	Vel   []r2.Vec
	Dest  []int32
	Speed []float64 // desired speed
}

// Len returns the pedestrian count.
func (s *State) Len() int { return len(s.Pos) }

// Reset truncates every column, keeping capacity.
func (s *State) Reset() {
	s.Pos = s.Pos[:0]
	s.Vel = s.Vel[:0]
	s.Dest = s.Dest[:0]
	s.Speed = s.Speed[:0]
}

// Append adds one pedestrian.
func (s *State) Append(pos, vel r2.Vec, dest int32, speed float64) {
	s.Pos = append(s.Pos, pos)
	s.Vel = append(s.Vel, vel)
	s.Dest = append(s.Dest, dest)
	s.Speed = append(s.Speed, speed)
}

// Resize sets every column to length n, reusing capacity.
func (s *State) Resize(n int) {
	s.Pos = resize(s.Pos, n)
	s.Vel = resize(s.Vel, n)
	s.Dest = resize(s.Dest, n)
	s.Speed = resize(s.Speed, n)
}

// PermuteInto writes s reordered by order into dst: dst[k] = s[order[k]].
func (s *State) PermuteInto(dst *State, order []int32) {
	dst.Resize(len(order))
	for k, i := range order {
		dst.Pos[k] = s.Pos[i]
		dst.Vel[k] = s.Vel[i]
		dst.Dest[k] = s.Dest[i]
		dst.Speed[k] = s.Speed[i]
	}
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n, n+n/2)
	}
	return s[:n]
}

// Params are the force model constants in float64 form.
type Params struct {
	DT               float64
	Tau              float64
	A, B             float64
	Lookahead        float64
	CosPhi           float64
	UnseenFactor     float64
	CutoffSq         float64
	ObstacleStrength float64
	ObstacleRange    float64
	ObstacleCutoff   float64
	UseDistanceMap   bool
	Overshoot        float64
}

// ParamsFromConfig extracts force model constants.
func ParamsFromConfig(cfg *config.Config) Params {
	m := cfg.Model
	return Params{
		DT:               cfg.Sim.DT,
		Tau:              m.Tau,
		A:                m.A,
		B:                m.B,
		Lookahead:        m.Lookahead,
		CosPhi:           cfg.Derived.CosPhi,
		UnseenFactor:     m.UnseenFactor,
		CutoffSq:         cfg.Derived.CutoffSq,
		ObstacleStrength: m.ObstacleStrength,
		ObstacleRange:    m.ObstacleRange,
		ObstacleCutoff:   m.ObstacleCutoff,
		UseDistanceMap:   m.UseDistanceMap,
		Overshoot:        m.Overshoot,
	}
}

// Frame is everything a force evaluation reads and writes for one tick.
// Cur, Grid, Field and Obstacles are read-only during evaluation; each
// evaluator task writes only its own slot of Next.Pos and Next.Vel.
type Frame struct {
	Cur  State
	Next State

	// Grid is nil when neighbor search is disabled; every pedestrian is then
	// a candidate.
	Grid      *NeighborGrid
	Field     *field.Field
	Obstacles *ObstacleIndex
	Params    Params
}

// PrepareNext sizes Next to match Cur and copies the columns evaluation does
// not change.
func (f *Frame) PrepareNext() {
	n := f.Cur.Len()
	f.Next.Resize(n)
	copy(f.Next.Dest, f.Cur.Dest)
	copy(f.Next.Speed, f.Cur.Speed)
}
