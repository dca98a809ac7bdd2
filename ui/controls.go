package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// MaxSpeed is the largest ticks-per-frame multiplier the slider offers.
const MaxSpeed = 20

// ControlState is what the controls panel edits.
type ControlState struct {
	Paused      bool
	Speed       int // ticks per frame
	Waypoint    int // potential map shown by the potential overlay
	Waypoints   int
	ResetCamera bool // set for one frame when the button is pressed
	Step        bool // set for one frame when a single step is requested
}

// ControlsPanel renders the right-side panel with overlay toggles and run
// controls.
type ControlsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
	visible  bool
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width int32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
		visible:  true,
	}
}

// SetPosition updates the panel position.
func (c *ControlsPanel) SetPosition(x, y int32) {
	c.x = x
	c.y = y
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Contains reports whether a screen point is over the panel, so that mouse
// input there is not treated as camera input.
func (c *ControlsPanel) Contains(x, y float32, height int32) bool {
	return c.visible &&
		x >= float32(c.x) && x <= float32(c.x+c.width) &&
		y >= float32(c.y) && y <= float32(c.y+height)
}

// Draw renders the panel, applies button presses to overlays and state, and
// returns the panel bottom.
func (c *ControlsPanel) Draw(overlays *OverlayRegistry, state *ControlState) int32 {
	state.ResetCamera = false
	state.Step = false
	if !c.visible {
		return c.y
	}

	r := c.renderer
	pad := r.Theme.Padding
	inner := float32(c.width - 2*pad)
	rowH := float32(22)

	descs := overlays.All()
	height := int32(float32(len(descs)+6)*(rowH+4)) + 3*pad + r.Theme.LineHeight
	r.DrawPanel(c.x, c.y, c.width, height)

	x := float32(c.x + pad)
	y := float32(c.y + pad)
	rl.DrawText("Controls", int32(x), int32(y), 16, rl.White)
	y += float32(r.Theme.LineHeight) + 6

	for _, desc := range descs {
		mark := "[ ]"
		if overlays.IsEnabled(desc.ID) {
			mark = "[x]"
		}
		label := fmt.Sprintf("%s %s (%s)", mark, desc.Name, desc.KeyLabel)
		if gui.Button(rl.Rectangle{X: x, Y: y, Width: inner, Height: rowH}, label) {
			overlays.Toggle(desc.ID)
		}
		y += rowH + 4
	}
	y += 4

	if state.Waypoints > 0 {
		label := fmt.Sprintf("Potential: waypoint %d/%d", state.Waypoint+1, state.Waypoints)
		if gui.Button(rl.Rectangle{X: x, Y: y, Width: inner, Height: rowH}, label) {
			state.Waypoint = (state.Waypoint + 1) % state.Waypoints
		}
		y += rowH + 4
	}

	half := (inner - 4) / 2
	pauseText := "Pause"
	if state.Paused {
		pauseText = "Resume"
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: half, Height: rowH}, pauseText) {
		state.Paused = !state.Paused
	}
	if gui.Button(rl.Rectangle{X: x + half + 4, Y: y, Width: half, Height: rowH}, "Step") {
		state.Step = true
	}
	y += rowH + 4

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: inner, Height: rowH}, "Reset Camera") {
		state.ResetCamera = true
	}
	y += rowH + 8

	rl.DrawText(fmt.Sprintf("Speed %dx", state.Speed), int32(x), int32(y), r.Theme.FontSize, r.Theme.Label)
	y += float32(r.Theme.LineHeight)
	speed := gui.SliderBar(
		rl.Rectangle{X: x + 20, Y: y, Width: inner - 50, Height: 16},
		"1", fmt.Sprint(MaxSpeed),
		float32(state.Speed), 1, MaxSpeed,
	)
	state.Speed = min(max(int(speed+0.5), 1), MaxSpeed)

	return c.y + height
}
