// Package components defines ECS components for the simulation.
package components

// Pedestrian holds identity and bookkeeping for one walker.
type Pedestrian struct {
	ID        uint32
	Source    int32 // index of the emitting source
	SpawnTick int32
}

// Destination is the waypoint a pedestrian walks toward.
type Destination struct {
	Waypoint int32
}

// Gait holds per-pedestrian locomotion parameters.
type Gait struct {
	DesiredSpeed float64 // m/s, drawn at spawn
}
