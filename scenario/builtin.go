package scenario

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/geom"
)

var builtins = map[string]func() Scenario{
	"corridor":   Corridor,
	"bottleneck": Bottleneck,
	"crossing":   Crossing,
}

// Names lists the built-in scenarios.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName returns a built-in scenario.
func ByName(name string) (Scenario, error) {
	f, ok := builtins[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (have %v)", name, Names())
	}
	return f(), nil
}

// Corridor is a 20x5 m straight corridor walked left to right.
func Corridor() Scenario {
	return Scenario{
		Name: "corridor",
		Size: r2.Vec{X: 20, Y: 5},
		Waypoints: []Waypoint{
			{Line: geom.Seg(1, 1, 1, 4), Width: 1},
			{Line: geom.Seg(19, 1, 19, 4), Width: 1},
		},
		Sources: []Source{
			{Origin: 0, Destination: 1, Spawn: Spawn{Kind: Periodic, Frequency: 1}},
		},
	}
}

// Bottleneck funnels a room through a 1.2 m opening.
func Bottleneck() Scenario {
	return Scenario{
		Name: "bottleneck",
		Size: r2.Vec{X: 24, Y: 12},
		Waypoints: []Waypoint{
			{Line: geom.Seg(1.5, 2, 1.5, 10), Width: 1},
			{Line: geom.Seg(22.5, 4, 22.5, 8), Width: 1},
		},
		Obstacles: []Obstacle{
			{Line: geom.Seg(12, 0, 12, 5.4), Width: 0.4},
			{Line: geom.Seg(12, 6.6, 12, 12), Width: 0.4},
		},
		Sources: []Source{
			{Origin: 0, Destination: 1, Spawn: Spawn{Kind: Periodic, Frequency: 2}},
			{Origin: 0, Destination: 1, Spawn: Spawn{Kind: Once, Count: 40}},
		},
	}
}

// Crossing has two flows meeting at right angles in a square plaza.
func Crossing() Scenario {
	return Scenario{
		Name: "crossing",
		Size: r2.Vec{X: 16, Y: 16},
		Waypoints: []Waypoint{
			{Line: geom.Seg(1, 6, 1, 10), Width: 1},
			{Line: geom.Seg(15, 6, 15, 10), Width: 1},
			{Line: geom.Seg(6, 1, 10, 1), Width: 1},
			{Line: geom.Seg(6, 15, 10, 15), Width: 1},
		},
		Obstacles: []Obstacle{
			{Line: geom.Seg(0, 5, 5, 5)},
			{Line: geom.Seg(11, 5, 16, 5)},
			{Line: geom.Seg(0, 11, 5, 11)},
			{Line: geom.Seg(11, 11, 16, 11)},
		},
		Sources: []Source{
			{Origin: 0, Destination: 1, Spawn: Spawn{Kind: Periodic, Frequency: 1}},
			{Origin: 2, Destination: 3, Spawn: Spawn{Kind: Periodic, Frequency: 1}},
		},
	}
}
