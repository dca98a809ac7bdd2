package field

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
	"github.com/pthm-cable/pedoni/scenario"
)

var (
	// ErrShape is returned when grids that must align do not.
	ErrShape = errors.New("grid shape mismatch")
	// ErrEmptyField is returned for a non-positive size or unit.
	ErrEmptyField = errors.New("field has no cells")
)

// Builder accumulates obstacle and waypoint geometry before solving.
type Builder struct {
	raster       Rasterizer
	obstacleCost float64
	obstacles    Mask
	waypoints    []Grid
}

// NewBuilder creates a builder for a size metres field with cells of side
// unit. Obstacle cells cost obstacleCost times a free cell. Border cells are
// always obstacles.
func NewBuilder(size r2.Vec, unit, obstacleCost float64) (*Builder, error) {
	if !(unit > 0) || !(size.X > 0) || !(size.Y > 0) || !geom.Finite(size) || math.IsInf(unit, 0) {
		return nil, fmt.Errorf("size %v unit %v: %w", size, unit, ErrEmptyField)
	}
	r := NewRasterizer(size, unit)
	m := NewMask(r.Rows, r.Cols)
	m.markBorder()
	return &Builder{raster: r, obstacleCost: obstacleCost, obstacles: m}, nil
}

// AddObstacle marks the widened segment as impassable.
func (b *Builder) AddObstacle(seg geom.Segment, width float64) {
	b.raster.Obstacles(b.obstacles, seg, width)
}

// AddWaypoint registers a destination and returns its id.
func (b *Builder) AddWaypoint(seg geom.Segment, width float64) int {
	b.waypoints = append(b.waypoints, b.raster.Seeds(seg, width))
	return len(b.waypoints) - 1
}

// Build solves the distance map and every waypoint potential concurrently.
func (b *Builder) Build(ctx context.Context) (*Field, error) {
	r := b.raster
	unit := r.Unit

	cost := NewGrid(r.Rows, r.Cols, unit)
	uniform := NewGrid(r.Rows, r.Cols, unit)
	distSeeds := NewGrid(r.Rows, r.Cols, math.Inf(1))
	for i, obs := range b.obstacles.Data {
		if obs {
			cost.Data[i] = unit * b.obstacleCost
			distSeeds.Data[i] = 0
		}
	}

	jobs := make([]Job, 0, len(b.waypoints)+1)
	jobs = append(jobs, Job{Seeds: distSeeds, Cost: uniform})
	for _, seeds := range b.waypoints {
		jobs = append(jobs, Job{Seeds: seeds, Cost: cost})
	}

	grids, err := SolveAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	return &Field{
		unit:       unit,
		rows:       r.Rows,
		cols:       r.Cols,
		obstacles:  b.obstacles,
		distance:   grids[0],
		potentials: grids[1:],
	}, nil
}

// FromScenario rasterizes and solves every obstacle and waypoint in s.
func FromScenario(ctx context.Context, s *scenario.Scenario, unit, obstacleCost float64) (*Field, error) {
	b, err := NewBuilder(s.Size, unit, obstacleCost)
	if err != nil {
		return nil, err
	}
	for _, o := range s.Obstacles {
		b.AddObstacle(o.Line, o.Width)
	}
	for _, w := range s.Waypoints {
		b.AddWaypoint(w.Line, w.Width)
	}
	return b.Build(ctx)
}

// FromGrids assembles a field from already solved grids. Cells at distance
// zero are treated as obstacles.
func FromGrids(unit float64, distance Grid, potentials []Grid) (*Field, error) {
	if !(unit > 0) || distance.Rows <= 0 || distance.Cols <= 0 {
		return nil, fmt.Errorf("unit %v shape %dx%d: %w", unit, distance.Rows, distance.Cols, ErrEmptyField)
	}
	if len(distance.Data) != distance.Rows*distance.Cols {
		return nil, fmt.Errorf("distance grid: %w", ErrShape)
	}
	for i, p := range potentials {
		if p.Rows != distance.Rows || p.Cols != distance.Cols || len(p.Data) != len(distance.Data) {
			return nil, fmt.Errorf("potential %d: %w", i, ErrShape)
		}
	}

	obstacles := NewMask(distance.Rows, distance.Cols)
	for i, d := range distance.Data {
		obstacles.Data[i] = d <= 0
	}
	return &Field{
		unit:       unit,
		rows:       distance.Rows,
		cols:       distance.Cols,
		obstacles:  obstacles,
		distance:   distance,
		potentials: potentials,
	}, nil
}

// Field holds the solved navigation grids. It is immutable after Build and
// safe for concurrent reads.
type Field struct {
	unit       float64
	rows, cols int
	obstacles  Mask
	distance   Grid
	potentials []Grid
}

// Unit returns metres per cell.
func (f *Field) Unit() float64 { return f.unit }

// Shape returns (rows, cols).
func (f *Field) Shape() (int, int) { return f.rows, f.cols }

// Size returns the covered extent in metres.
func (f *Field) Size() r2.Vec {
	return r2.Vec{X: float64(f.cols) * f.unit, Y: float64(f.rows) * f.unit}
}

// Waypoints returns the number of potential maps.
func (f *Field) Waypoints() int { return len(f.potentials) }

// PotentialGrid returns the raw potential map of waypoint id.
func (f *Field) PotentialGrid(id int) Grid { return f.potentials[id] }

// DistanceGrid returns the raw obstacle distance map.
func (f *Field) DistanceGrid() Grid { return f.distance }

// Obstacles returns the obstacle mask.
func (f *Field) Obstacles() Mask { return f.obstacles }

// local converts metres to grid-local sample coordinates (cell centres at
// integers).
func (f *Field) local(pos r2.Vec) (float64, float64) {
	return pos.X/f.unit - 0.5, pos.Y/f.unit - 0.5
}

// Potential returns the interpolated potential toward waypoint id.
func (f *Field) Potential(id int, pos r2.Vec) float64 {
	if id < 0 || id >= len(f.potentials) {
		return Unreachable
	}
	x, y := f.local(pos)
	return Bilinear(f.potentials[id], x, y)
}

// Gradient returns the potential gradient toward waypoint id. It points
// uphill; pedestrians follow its negation.
func (f *Field) Gradient(id int, pos r2.Vec) r2.Vec {
	if id < 0 || id >= len(f.potentials) {
		return r2.Vec{}
	}
	x, y := f.local(pos)
	return Sobel(f.potentials[id], x, y, f.unit)
}

// ObstacleDistance returns the interpolated distance to the nearest obstacle
// cell.
func (f *Field) ObstacleDistance(pos r2.Vec) float64 {
	x, y := f.local(pos)
	return Bilinear(f.distance, x, y)
}

// ObstacleDistanceGradient points away from the nearest obstacle.
func (f *Field) ObstacleDistanceGradient(pos r2.Vec) r2.Vec {
	x, y := f.local(pos)
	return Sobel(f.distance, x, y, f.unit)
}
