package ui

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// OverlayID uniquely identifies an overlay.
type OverlayID string

// Standard overlay IDs.
const (
	OverlayPotential    OverlayID = "potential"
	OverlayDistance     OverlayID = "distance"
	OverlayDestinations OverlayID = "destinations"
	OverlayVelocity     OverlayID = "velocity"
	OverlayNeighborGrid OverlayID = "neighbor_grid"
	OverlayWaypoints    OverlayID = "waypoints"
)

// OverlayDescriptor defines an overlay that can be toggled.
type OverlayDescriptor struct {
	ID          OverlayID   // Unique identifier
	Name        string      // Display name
	Description string      // What this overlay shows
	Key         int32       // Keyboard key to toggle (0 = no key)
	KeyLabel    string      // Key label for display (e.g., "P")
	Category    string      // Grouping (e.g., "field", "crowd")
	Exclusive   []OverlayID // Other overlays to disable when this is enabled
}

// OverlayRegistry manages overlay state and metadata.
type OverlayRegistry struct {
	descriptors []OverlayDescriptor
	byID        map[OverlayID]OverlayDescriptor
	enabled     map[OverlayID]bool
}

// NewOverlayRegistry creates a registry with the default overlays. The
// potential map and waypoints start enabled.
func NewOverlayRegistry() *OverlayRegistry {
	reg := &OverlayRegistry{
		byID:    make(map[OverlayID]OverlayDescriptor),
		enabled: make(map[OverlayID]bool),
	}
	reg.registerDefaults()
	reg.SetEnabled(OverlayPotential, true)
	reg.SetEnabled(OverlayWaypoints, true)
	return reg
}

func (r *OverlayRegistry) registerDefaults() {
	r.Register(OverlayDescriptor{
		ID:          OverlayPotential,
		Name:        "Potential",
		Description: "Travel cost to the selected waypoint",
		Key:         rl.KeyP,
		KeyLabel:    "P",
		Category:    "field",
		Exclusive:   []OverlayID{OverlayDistance},
	})
	r.Register(OverlayDescriptor{
		ID:          OverlayDistance,
		Name:        "Obstacle Distance",
		Description: "Distance to the nearest obstacle cell",
		Key:         rl.KeyO,
		KeyLabel:    "O",
		Category:    "field",
		Exclusive:   []OverlayID{OverlayPotential},
	})
	r.Register(OverlayDescriptor{
		ID:          OverlayWaypoints,
		Name:        "Waypoints",
		Description: "Waypoint and obstacle lines",
		Key:         rl.KeyW,
		KeyLabel:    "W",
		Category:    "field",
	})
	r.Register(OverlayDescriptor{
		ID:          OverlayDestinations,
		Name:        "Destination Colors",
		Description: "Color pedestrians by destination instead of speed",
		Key:         rl.KeyC,
		KeyLabel:    "C",
		Category:    "crowd",
	})
	r.Register(OverlayDescriptor{
		ID:          OverlayVelocity,
		Name:        "Velocity",
		Description: "Draw each pedestrian's velocity",
		Key:         rl.KeyV,
		KeyLabel:    "V",
		Category:    "crowd",
	})
	r.Register(OverlayDescriptor{
		ID:          OverlayNeighborGrid,
		Name:        "Neighbor Grid",
		Description: "Neighbor search cells",
		Key:         rl.KeyG,
		KeyLabel:    "G",
		Category:    "debug",
	})
}

// Register adds an overlay to the registry, disabled.
func (r *OverlayRegistry) Register(desc OverlayDescriptor) {
	r.descriptors = append(r.descriptors, desc)
	r.byID[desc.ID] = desc
	r.enabled[desc.ID] = false
}

// Toggle switches an overlay on/off and handles exclusivity.
func (r *OverlayRegistry) Toggle(id OverlayID) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	r.SetEnabled(id, !r.enabled[id])
	return r.enabled[id]
}

// SetEnabled explicitly sets an overlay's state.
func (r *OverlayRegistry) SetEnabled(id OverlayID, enabled bool) {
	desc, ok := r.byID[id]
	if !ok {
		return
	}
	r.enabled[id] = enabled
	if enabled {
		for _, excl := range desc.Exclusive {
			r.enabled[excl] = false
		}
	}
}

// IsEnabled returns whether an overlay is active.
func (r *OverlayRegistry) IsEnabled(id OverlayID) bool {
	return r.enabled[id]
}

// All returns all registered overlays in registration order.
func (r *OverlayRegistry) All() []OverlayDescriptor {
	return r.descriptors
}

// HandleKeyPress toggles the overlay bound to key.
// Returns the overlay ID, its new state, and whether a toggle occurred.
func (r *OverlayRegistry) HandleKeyPress(key int32) (OverlayID, bool, bool) {
	for _, desc := range r.descriptors {
		if desc.Key == key {
			return desc.ID, r.Toggle(desc.ID), true
		}
	}
	return "", false, false
}
