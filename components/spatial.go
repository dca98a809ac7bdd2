package components

// Position represents a pedestrian's world position in metres.
type Position struct {
	X, Y float64
}

// Velocity represents a pedestrian's velocity in metres per second.
type Velocity struct {
	X, Y float64
}
