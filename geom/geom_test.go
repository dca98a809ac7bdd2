package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestDistanceFromLine(t *testing.T) {
	line := Seg(1, 1, 4, 1)

	assert.InDelta(t, 2.0, r2.Norm(DistanceFromLine(r2.Vec{X: 2, Y: 3}, line)), 1e-9)
	assert.InDelta(t, 1.25, r2.Norm(DistanceFromLine(r2.Vec{X: 0, Y: 0.25}, line)), 1e-9)

	// Agrees with the scalar distance
	for _, p := range []r2.Vec{{X: 2, Y: 3}, {X: 0, Y: 0.25}, {X: 5, Y: -2}} {
		assert.InDelta(t, SegmentDistance(p, line), r2.Norm(DistanceFromLine(p, line)), 1e-9)
	}
}

func TestDistanceFromLine_ZeroLength(t *testing.T) {
	p := r2.Vec{X: 3, Y: 4}
	d := DistanceFromLine(p, Seg(0, 0, 0, 0))
	assert.Equal(t, p, d)
}

func TestLineWithWidth(t *testing.T) {
	ring := LineWithWidth(Seg(0, 0, 4, 0), 1)

	assert.True(t, ring.Closed())
	assert.True(t, planar.RingContains(ring, Point(r2.Vec{X: 2, Y: 0.4})))
	assert.False(t, planar.RingContains(ring, Point(r2.Vec{X: 2, Y: 0.6})))
	assert.False(t, planar.RingContains(ring, Point(r2.Vec{X: 4.2, Y: 0})))
	assert.InDelta(t, 4.0, math.Abs(planar.Area(ring)), 1e-9)
}

func TestLineWithWidth_Degenerate(t *testing.T) {
	ring := LineWithWidth(Seg(1, 1, 1, 1), 1)
	assert.InDelta(t, 0.0, planar.Area(ring), 1e-12)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, r2.Vec{}, Normalize(r2.Vec{}))
	assert.Equal(t, r2.Vec{}, Normalize(r2.Vec{X: math.NaN(), Y: 1}))

	n := Normalize(r2.Vec{X: 3, Y: 4})
	assert.InDelta(t, 0.6, n.X, 1e-12)
	assert.InDelta(t, 0.8, n.Y, 1e-12)
}

func TestClampLength(t *testing.T) {
	v := ClampLength(r2.Vec{X: 3, Y: 4}, 2.5)
	assert.InDelta(t, 2.5, r2.Norm(v), 1e-12)

	short := r2.Vec{X: 0.1, Y: 0.2}
	assert.Equal(t, short, ClampLength(short, 1))
}

func TestSegmentLerp(t *testing.T) {
	s := Seg(0, 0, 2, 4)
	assert.Equal(t, r2.Vec{X: 1, Y: 2}, s.Lerp(0.5))
	assert.InDelta(t, math.Sqrt(20), s.Length(), 1e-12)
	assert.False(t, Seg(0, math.Inf(1), 1, 1).Finite())
}
