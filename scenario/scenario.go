// Package scenario describes the static geometry and pedestrian sources of a
// simulation run.
package scenario

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
)

// DefaultWidth is used for waypoints and obstacles that leave Width zero.
const DefaultWidth = 1.0

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid scenario")

// Waypoint is a line a pedestrian can start from or head to.
type Waypoint struct {
	Line  geom.Segment
	Width float64
}

// Obstacle is an impassable line.
type Obstacle struct {
	Line  geom.Segment
	Width float64
}

// SpawnKind selects how a source emits pedestrians.
type SpawnKind uint8

const (
	// Periodic emits Poisson(Frequency*dt) pedestrians every tick.
	Periodic SpawnKind = iota
	// Once emits Count pedestrians on the first tick only.
	Once
)

func (k SpawnKind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case Once:
		return "once"
	default:
		return fmt.Sprintf("SpawnKind(%d)", uint8(k))
	}
}

// Spawn is a source's emission policy.
type Spawn struct {
	Kind      SpawnKind
	Frequency float64 // pedestrians per second, Periodic only
	Count     int     // Once only
}

// Source emits pedestrians along the Origin waypoint headed for Destination.
type Source struct {
	Origin      int
	Destination int
	Spawn       Spawn
}

// Scenario is the full static description of a run.
type Scenario struct {
	Name      string
	Size      r2.Vec // metres
	Waypoints []Waypoint
	Obstacles []Obstacle
	Sources   []Source
}

// ApplyDefaults fills zero widths with width.
func (s *Scenario) ApplyDefaults(width float64) {
	if width <= 0 {
		width = DefaultWidth
	}
	for i := range s.Waypoints {
		if s.Waypoints[i].Width == 0 {
			s.Waypoints[i].Width = width
		}
	}
	for i := range s.Obstacles {
		if s.Obstacles[i].Width == 0 {
			s.Obstacles[i].Width = width
		}
	}
}

// Validate checks references and ranges.
func (s *Scenario) Validate() error {
	if !(s.Size.X > 0) || !(s.Size.Y > 0) || !geom.Finite(s.Size) {
		return fmt.Errorf("%w: size %v must be positive", ErrInvalid, s.Size)
	}
	for i, w := range s.Waypoints {
		if !w.Line.Finite() {
			return fmt.Errorf("%w: waypoint %d has non-finite coordinates", ErrInvalid, i)
		}
	}
	for i, o := range s.Obstacles {
		if !o.Line.Finite() {
			return fmt.Errorf("%w: obstacle %d has non-finite coordinates", ErrInvalid, i)
		}
	}
	n := len(s.Waypoints)
	for i, src := range s.Sources {
		if src.Origin < 0 || src.Origin >= n {
			return fmt.Errorf("%w: source %d origin %d out of range [0,%d)", ErrInvalid, i, src.Origin, n)
		}
		if src.Destination < 0 || src.Destination >= n {
			return fmt.Errorf("%w: source %d destination %d out of range [0,%d)", ErrInvalid, i, src.Destination, n)
		}
		switch src.Spawn.Kind {
		case Periodic:
			if src.Spawn.Frequency < 0 {
				return fmt.Errorf("%w: source %d frequency %v is negative", ErrInvalid, i, src.Spawn.Frequency)
			}
		case Once:
			if src.Spawn.Count < 0 {
				return fmt.Errorf("%w: source %d count %d is negative", ErrInvalid, i, src.Spawn.Count)
			}
		default:
			return fmt.Errorf("%w: source %d has unknown spawn kind %v", ErrInvalid, i, src.Spawn.Kind)
		}
	}
	return nil
}
