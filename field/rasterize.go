package field

import (
	"math"

	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
)

// Rasterizer converts segment geometry into grid cells.
type Rasterizer struct {
	Unit       float64
	Rows, Cols int
}

// NewRasterizer sizes a grid to cover size with cells of side unit.
func NewRasterizer(size r2.Vec, unit float64) Rasterizer {
	return Rasterizer{
		Unit: unit,
		Rows: int(math.Ceil(size.Y / unit)),
		Cols: int(math.Ceil(size.X / unit)),
	}
}

// Obstacles marks every cell covered by the widened segment in m.
func (r Rasterizer) Obstacles(m Mask, seg geom.Segment, width float64) {
	r.cover(seg, width, func(x, y int) { m.Set(x, y) })
}

// Seeds returns a +Inf grid with 0 in every cell covered by the widened
// segment.
func (r Rasterizer) Seeds(seg geom.Segment, width float64) Grid {
	g := NewGrid(r.Rows, r.Cols, math.Inf(1))
	r.cover(seg, width, func(x, y int) { g.Set(x, y, 0) })
	return g
}

// Cells returns the flat indices covered by the widened segment.
func (r Rasterizer) Cells(seg geom.Segment, width float64) []int {
	var out []int
	seen := make(map[int]struct{})
	r.cover(seg, width, func(x, y int) {
		i := y*r.Cols + x
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			out = append(out, i)
		}
	})
	return out
}

// cover calls mark for every in-grid cell whose centre lies in the segment's
// rectangle, plus every cell the centre line passes through so walls thinner
// than a cell stay closed.
func (r Rasterizer) cover(seg geom.Segment, width float64, mark func(x, y int)) {
	if r.Rows <= 0 || r.Cols <= 0 || !(r.Unit > 0) {
		return
	}
	if !seg.Finite() || !finite(width) || width <= 0 {
		return
	}
	in := func(x, y int) {
		if x >= 0 && y >= 0 && x < r.Cols && y < r.Rows {
			mark(x, y)
		}
	}

	if seg.Length() == 0 {
		in(int(math.Floor(seg.A.X/r.Unit)), int(math.Floor(seg.A.Y/r.Unit)))
		return
	}

	ring := geom.LineWithWidth(seg, width)
	b := ring.Bound()
	x0, x1 := r.clampCol(b.Min[0]), r.clampCol(b.Max[0])
	y0, y1 := r.clampRow(b.Min[1]), r.clampRow(b.Max[1])
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			c := geom.Point(r2.Vec{X: (float64(x) + 0.5) * r.Unit, Y: (float64(y) + 0.5) * r.Unit})
			if planar.RingContains(ring, c) {
				mark(x, y)
			}
		}
	}

	r.trace(seg, in)
}

func (r Rasterizer) clampCol(v float64) int {
	return clampIndex(v/r.Unit, r.Cols)
}

func (r Rasterizer) clampRow(v float64) int {
	return clampIndex(v/r.Unit, r.Rows)
}

func clampIndex(v float64, n int) int {
	if v < 0 {
		return 0
	}
	if v >= float64(n) {
		return n - 1
	}
	return int(v)
}

// trace walks every cell crossed by the segment after clipping it to the grid.
func (r Rasterizer) trace(seg geom.Segment, mark func(x, y int)) {
	w, h := float64(r.Cols)*r.Unit, float64(r.Rows)*r.Unit
	a, b, ok := clipSegment(seg.A, seg.B, w, h)
	if !ok {
		return
	}

	x0, y0 := a.X/r.Unit, a.Y/r.Unit
	x1, y1 := b.X/r.Unit, b.Y/r.Unit
	cx, cy := int(math.Floor(x0)), int(math.Floor(y0))
	ex, ey := int(math.Floor(x1)), int(math.Floor(y1))

	stepX, tMaxX, tDeltaX := traversal(x0, x1-x0)
	stepY, tMaxY, tDeltaY := traversal(y0, y1-y0)

	n := abs(ex-cx) + abs(ey-cy)
	mark(cx, cy)
	for i := 0; i < n; i++ {
		if tMaxX < tMaxY {
			cx += stepX
			tMaxX += tDeltaX
		} else {
			cy += stepY
			tMaxY += tDeltaY
		}
		mark(cx, cy)
	}
}

func traversal(p, d float64) (step int, tMax, tDelta float64) {
	switch {
	case d > 0:
		return 1, (math.Floor(p) + 1 - p) / d, 1 / d
	case d < 0:
		return -1, (p - math.Floor(p)) / -d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// clipSegment clips a-b to [0,w]x[0,h] (Liang-Barsky).
func clipSegment(a, b r2.Vec, w, h float64) (r2.Vec, r2.Vec, bool) {
	d := r2.Sub(b, a)
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-d.X, a.X},
		{d.X, w - a.X},
		{-d.Y, a.Y},
		{d.Y, h - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = math.Max(t0, t)
		} else {
			t1 = math.Min(t1, t)
		}
		if t0 > t1 {
			return a, b, false
		}
	}
	return r2.Add(a, r2.Scale(t0, d)), r2.Add(a, r2.Scale(t1, d)), true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
