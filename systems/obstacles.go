package systems

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
	"github.com/pthm-cable/pedoni/scenario"
)

// obstacleEntry wraps a segment for R-tree storage.
type obstacleEntry struct {
	seg       geom.Segment
	halfWidth float64
	bbox      rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (o *obstacleEntry) Bounds() rtreego.Rect {
	return o.bbox
}

// ObstacleIndex answers "which obstacle segments are near this point" for the
// per-segment repulsion used when no distance map is available.
type ObstacleIndex struct {
	tree   *rtreego.Rtree
	cutoff float64
	count  int
}

// NewObstacleIndex indexes obstacles, padding each box by cutoff.
func NewObstacleIndex(obstacles []scenario.Obstacle, cutoff float64) *ObstacleIndex {
	tree := rtreego.NewTree(2, 25, 50)
	idx := &ObstacleIndex{tree: tree, cutoff: cutoff}

	for _, o := range obstacles {
		if !o.Line.Finite() {
			continue
		}
		half := o.Width / 2
		margin := half + cutoff
		minX := math.Min(o.Line.A.X, o.Line.B.X) - margin
		minY := math.Min(o.Line.A.Y, o.Line.B.Y) - margin
		maxX := math.Max(o.Line.A.X, o.Line.B.X) + margin
		maxY := math.Max(o.Line.A.Y, o.Line.B.Y) + margin

		bbox, err := rtreego.NewRect(
			rtreego.Point{minX, minY},
			[]float64{maxX - minX, maxY - minY},
		)
		if err != nil {
			continue
		}
		tree.Insert(&obstacleEntry{seg: o.Line, halfWidth: half, bbox: bbox})
		idx.count++
	}

	return idx
}

// Len returns the number of indexed segments.
func (x *ObstacleIndex) Len() int { return x.count }

// Force returns the summed exponential repulsion of every obstacle surface
// within the cutoff of pos.
func (x *ObstacleIndex) Force(pos r2.Vec, strength, rng float64) r2.Vec {
	if x == nil || x.count == 0 {
		return r2.Vec{}
	}
	q, err := rtreego.NewRect(
		rtreego.Point{pos.X, pos.Y},
		[]float64{1e-9, 1e-9},
	)
	if err != nil {
		return r2.Vec{}
	}

	var acc r2.Vec
	for _, item := range x.tree.SearchIntersect(q) {
		o := item.(*obstacleEntry)
		diff := geom.DistanceFromLine(pos, o.seg)
		d := r2.Norm(diff) - o.halfWidth
		if d > x.cutoff {
			continue
		}
		dir := geom.Normalize(diff)
		acc = r2.Add(acc, r2.Scale(strength*rng*math.Exp(-math.Max(d, 0)/rng), dir))
	}
	return acc
}
