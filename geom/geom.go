// Package geom holds the small 2-D vector and segment helpers shared by the
// field solver and the force model.
package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r2"
)

// Segment is a line segment from A to B in metres.
type Segment struct {
	A, B r2.Vec
}

// Seg is shorthand for building a segment from coordinates.
func Seg(ax, ay, bx, by float64) Segment {
	return Segment{A: r2.Vec{X: ax, Y: ay}, B: r2.Vec{X: bx, Y: by}}
}

// Length returns the segment length.
func (s Segment) Length() float64 {
	return r2.Norm(r2.Sub(s.B, s.A))
}

// Lerp returns A + t(B-A).
func (s Segment) Lerp(t float64) r2.Vec {
	return r2.Add(s.A, r2.Scale(t, r2.Sub(s.B, s.A)))
}

// Finite reports whether both endpoints have finite coordinates.
func (s Segment) Finite() bool {
	return Finite(s.A) && Finite(s.B)
}

// Finite reports whether v has finite coordinates.
func Finite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// DistanceFromLine returns the vector from the closest point on s to p.
// A zero-length segment yields p - A.
func DistanceFromLine(p r2.Vec, s Segment) r2.Vec {
	a := r2.Sub(p, s.A)
	b := r2.Sub(s.B, s.A)
	bLen2 := r2.Norm2(b)
	if bLen2 == 0 {
		return a
	}
	t := r2.Dot(a, b) / bLen2
	t = math.Max(0, math.Min(1, t))
	return r2.Sub(a, r2.Scale(t, b))
}

// SegmentDistance returns the scalar distance from p to s.
func SegmentDistance(p r2.Vec, s Segment) float64 {
	return planar.DistanceFromSegment(Point(s.A), Point(s.B), Point(p))
}

// LineWithWidth returns the closed rectangle of the given width centred on s.
// A zero-length segment is widened along the x axis.
func LineWithWidth(s Segment, width float64) orb.Ring {
	dir := Normalize(r2.Sub(s.B, s.A))
	if dir == (r2.Vec{}) {
		dir = r2.Vec{X: 1}
	}
	n := r2.Scale(0.5*width, r2.Vec{X: dir.Y, Y: -dir.X})

	return orb.Ring{
		Point(r2.Sub(s.A, n)),
		Point(r2.Add(s.A, n)),
		Point(r2.Add(s.B, n)),
		Point(r2.Sub(s.B, n)),
		Point(r2.Sub(s.A, n)),
	}
}

// Normalize returns the unit vector of v, or the zero vector when v has no
// usable direction.
func Normalize(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// ClampLength scales v down so its length does not exceed max.
func ClampLength(v r2.Vec, max float64) r2.Vec {
	n2 := r2.Norm2(v)
	if n2 <= max*max || n2 == 0 {
		return v
	}
	return r2.Scale(max/math.Sqrt(n2), v)
}

// Point converts to an orb point.
func Point(v r2.Vec) orb.Point {
	return orb.Point{v.X, v.Y}
}
