package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
)

// StepRange evaluates pedestrians [i0, i1) of f.Cur and writes their next
// position and velocity into f.Next.
func StepRange(f *Frame, i0, i1 int) {
	for i := i0; i < i1; i++ {
		Step(f, i)
	}
}

// Step runs one Social Force Model update for pedestrian i.
func Step(f *Frame, i int) {
	p := &f.Params
	pos := f.Cur.Pos[i]
	vel := f.Cur.Vel[i]
	speed := f.Cur.Speed[i]

	// Desired direction descends the destination potential.
	e := geom.Normalize(r2.Scale(-1, f.Field.Gradient(int(f.Cur.Dest[i]), pos)))
	acc := r2.Scale(1/p.Tau, r2.Sub(r2.Scale(speed, e), vel))

	acc = r2.Add(acc, pedestrianForce(f, i, pos, e))
	acc = r2.Add(acc, obstacleForce(f, pos))

	nextVel := geom.ClampLength(r2.Add(vel, r2.Scale(p.DT, acc)), speed*p.Overshoot)
	nextPos := r2.Add(pos, r2.Scale(0.5*p.DT, r2.Add(vel, nextVel)))

	f.Next.Pos[i] = nextPos
	f.Next.Vel[i] = nextVel
}

// pedestrianForce sums the elliptical repulsion from every neighbor within
// the cutoff.
func pedestrianForce(f *Frame, i int, pos, e r2.Vec) r2.Vec {
	var acc r2.Vec
	if f.Grid == nil {
		for j := range f.Cur.Pos {
			if j != i {
				acc = r2.Add(acc, pairForce(&f.Params, pos, f.Cur.Pos[j], f.Cur.Vel[j], e))
			}
		}
		return acc
	}

	x0, x1, y0, y1 := f.Grid.Block(pos)
	for y := y0; y <= y1; y++ {
		lo, hi := f.Grid.RowRange(y, x0, x1)
		for j := lo; j < hi; j++ {
			if j != i {
				acc = r2.Add(acc, pairForce(&f.Params, pos, f.Cur.Pos[j], f.Cur.Vel[j], e))
			}
		}
	}
	return acc
}

// pairForce is the force pedestrian j at posJ moving at velJ exerts on a
// pedestrian at pos heading along e.
func pairForce(p *Params, pos, posJ, velJ, e r2.Vec) r2.Vec {
	diff := r2.Sub(pos, posJ)
	dist2 := r2.Norm2(diff)
	if dist2 > p.CutoffSq || dist2 == 0 {
		return r2.Vec{}
	}
	dist := math.Sqrt(dist2)
	dir := r2.Scale(1/dist, diff)

	t1 := r2.Sub(diff, r2.Scale(p.Lookahead, velJ))
	t1Len := r2.Norm(t1)
	if t1Len == 0 {
		return r2.Vec{}
	}
	t2 := dist + t1Len
	step := r2.Norm(velJ) * p.Lookahead
	b := 0.5 * math.Sqrt(math.Max(0, t2*t2-step*step))
	if b == 0 {
		return r2.Vec{}
	}

	gradB := r2.Scale(t2/(4*b), r2.Add(dir, r2.Scale(1/t1Len, t1)))
	force := r2.Scale(p.A/p.B*math.Exp(-b/p.B), gradB)

	// Weaker when the source is outside the field of view.
	if r2.Dot(e, r2.Scale(-1, force)) < r2.Norm(force)*p.CosPhi {
		force = r2.Scale(p.UnseenFactor, force)
	}
	return force
}

// obstacleForce repels from walls, from the distance map when enabled and
// otherwise from nearby obstacle segments.
func obstacleForce(f *Frame, pos r2.Vec) r2.Vec {
	p := &f.Params
	if !p.UseDistanceMap {
		return f.Obstacles.Force(pos, p.ObstacleStrength, p.ObstacleRange)
	}
	d := f.Field.ObstacleDistance(pos)
	dir := geom.Normalize(f.Field.ObstacleDistanceGradient(pos))
	return r2.Scale(p.ObstacleStrength*p.ObstacleRange*math.Exp(-d/p.ObstacleRange), dir)
}
