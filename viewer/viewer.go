// Package viewer draws a running simulation in a raylib window: the
// navigation field, scenario geometry and every pedestrian, with pan/zoom
// and overlay toggles.
package viewer

import (
	"context"
	"image/color"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pedoni/camera"
	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/sim"
	"github.com/pthm-cable/pedoni/telemetry"
	"github.com/pthm-cable/pedoni/ui"
)

const (
	screenWidth  = 1280
	screenHeight = 720
	panelWidth   = 240

	pedestrianRadius = 0.25 // metres
)

// StepFunc advances the simulation by one tick and handles its outputs.
type StepFunc func(ctx context.Context) (sim.TickResult, error)

// Viewer owns the window state for one simulation.
type Viewer struct {
	sim  *sim.Simulation
	step StepFunc

	cam      *camera.Camera
	overlays *ui.OverlayRegistry
	controls *ui.ControlsPanel
	hud      *ui.HUD
	crowd    *ui.CrowdPanel
	perf     *ui.PerfPanel
	state    ui.ControlState

	fieldTex rl.Texture2D
	texKey   int // waypoint id, -1 for the distance map, -2 when stale
	pixels   []color.RGBA

	lastCrowd *telemetry.CrowdStats
	arrived   int
	err       error

	width, height float32
}

// New creates a viewer. step is called once per simulated tick.
func New(s *sim.Simulation, step StepFunc) *Viewer {
	return &Viewer{
		sim:      s,
		step:     step,
		overlays: ui.NewOverlayRegistry(),
		hud:      ui.NewHUD(),
		texKey:   -2,
		state: ui.ControlState{
			Speed:     1,
			Waypoints: s.Field().Waypoints(),
		},
	}
}

// Run opens the window and simulates until the window closes, ctx is done or
// maxTicks ticks have run (0 = unlimited). It must be called from the main
// goroutine. A tick error halts the simulation but leaves the window open;
// it is returned when the window closes.
func (v *Viewer) Run(ctx context.Context, maxTicks int) error {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(screenWidth, screenHeight, "Pedoni - "+v.sim.Scenario().Name)
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	v.width, v.height = screenWidth, screenHeight
	size := v.sim.Field().Size()
	v.cam = camera.New(v.width-panelWidth, v.height, float32(size.X), float32(size.Y))
	v.controls = ui.NewControlsPanel(int32(v.width)-panelWidth, 0, panelWidth)
	v.crowd = ui.NewCrowdPanel(int32(v.width)-panelWidth, 0, panelWidth)
	v.perf = ui.NewPerfPanel(10, 100)

	rows, cols := v.sim.Field().Shape()
	img := rl.GenImageColor(cols, rows, rl.Black)
	v.fieldTex = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	defer rl.UnloadTexture(v.fieldTex)

	for !rl.WindowShouldClose() && ctx.Err() == nil {
		if maxTicks > 0 && int(v.sim.TickCount()) >= maxTicks {
			break
		}
		v.handleInput()
		v.update(ctx)
		v.draw()
	}
	return v.err
}

func (v *Viewer) update(ctx context.Context) {
	if v.err != nil {
		return
	}
	ticks := v.state.Speed
	if v.state.Paused {
		ticks = 0
		if v.state.Step {
			ticks = 1
		}
	}
	for range ticks {
		res, err := v.step(ctx)
		if err != nil {
			v.err = err
			v.state.Paused = true
			return
		}
		v.arrived += res.Arrived
		if res.Crowd != nil {
			v.lastCrowd = res.Crowd
		}
	}
}

// handleInput processes keyboard and mouse input.
func (v *Viewer) handleInput() {
	v.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		v.state.Paused = !v.state.Paused
	}
	if rl.IsKeyPressed(rl.KeyComma) && v.state.Speed > 1 {
		v.state.Speed--
	}
	if rl.IsKeyPressed(rl.KeyPeriod) && v.state.Speed < ui.MaxSpeed {
		v.state.Speed++
	}
	if rl.IsKeyPressed(rl.KeyTab) && v.state.Waypoints > 0 {
		v.state.Waypoint = (v.state.Waypoint + 1) % v.state.Waypoints
	}
	if rl.IsKeyPressed(rl.KeyH) {
		v.controls.Toggle()
	}
	for _, desc := range v.overlays.All() {
		if desc.Key != 0 && rl.IsKeyPressed(desc.Key) {
			v.overlays.Toggle(desc.ID)
		}
	}

	v.handleCameraInput()
}

// handleResize propagates new window dimensions.
func (v *Viewer) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w := float32(rl.GetScreenWidth())
	h := float32(rl.GetScreenHeight())
	if w == v.width && h == v.height {
		return
	}
	v.width, v.height = w, h
	v.cam.Resize(w-panelWidth, h)
	v.controls.SetPosition(int32(w)-panelWidth, 0)
}

// handleCameraInput processes pan and zoom.
func (v *Viewer) handleCameraInput() {
	mouse := rl.GetMousePosition()
	if mouse.X >= v.width-panelWidth {
		return
	}

	panSpeed := float32(8)
	if rl.IsKeyDown(rl.KeyRight) {
		v.cam.Pan(panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		v.cam.Pan(-panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		v.cam.Pan(0, panSpeed)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		v.cam.Pan(0, -panSpeed)
	}

	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		v.cam.Pan(-d.X, -d.Y)
	}

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		v.cam.ZoomAt(1+wheel*0.1, mouse.X, mouse.Y)
	}
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		v.cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		v.cam.ZoomBy(0.8)
	}
	if rl.IsKeyPressed(rl.KeyHome) || v.state.ResetCamera {
		v.cam.Reset()
	}
}

// draw renders one frame.
func (v *Viewer) draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Color{R: 15, G: 18, B: 22, A: 255})

	v.drawField()
	if v.overlays.IsEnabled(ui.OverlayNeighborGrid) {
		v.drawNeighborGrid()
	}
	if v.overlays.IsEnabled(ui.OverlayWaypoints) {
		v.drawGeometry()
	}

	snap := v.sim.Snapshot()
	v.drawPedestrians(snap.Pedestrians)

	v.hud.Draw(ui.HUDData{
		Scenario: snap.Scenario,
		Backend:  v.sim.Backend(),
		Tick:     snap.Tick,
		SimTime:  snap.Time,
		Active:   len(snap.Pedestrians),
		Arrived:  v.arrived,
		Speed:    v.state.Speed,
		FPS:      rl.GetFPS(),
		Paused:   v.state.Paused,
		Error:    errText(v.err),
	})
	v.perf.Draw(v.sim.Perf().Stats())

	bottom := v.controls.Draw(v.overlays, &v.state)
	v.crowd.SetPosition(int32(v.width)-panelWidth, bottom+4)
	v.crowd.Draw(v.lastCrowd)

	v.hud.DrawControls(int32(v.height), "Space: pause | ,/.: speed | Tab: waypoint | RMB drag/wheel: camera | H: panel")
	rl.EndDrawing()
}

// drawField draws the selected potential or distance map under the crowd.
func (v *Viewer) drawField() {
	var key int
	switch {
	case v.overlays.IsEnabled(ui.OverlayPotential) && v.state.Waypoints > 0:
		key = v.state.Waypoint
	case v.overlays.IsEnabled(ui.OverlayDistance):
		key = -1
	default:
		return
	}

	f := v.sim.Field()
	if key != v.texKey {
		var g field.Grid
		if key < 0 {
			g = f.DistanceGrid()
		} else {
			g = f.PotentialGrid(key)
		}
		v.pixels = FieldPixels(v.pixels, g, f.Obstacles())
		rl.UpdateTexture(v.fieldTex, v.pixels)
		v.texKey = key
	}

	size := f.Size()
	x0, y0 := v.cam.WorldToScreen(0, 0)
	rows, cols := f.Shape()
	rl.DrawTexturePro(
		v.fieldTex,
		rl.Rectangle{X: 0, Y: 0, Width: float32(cols), Height: float32(rows)},
		rl.Rectangle{X: x0, Y: y0, Width: v.cam.Scale(float32(size.X)), Height: v.cam.Scale(float32(size.Y))},
		rl.Vector2{},
		0,
		rl.Color{R: 255, G: 255, B: 255, A: 200},
	)
}

func (v *Viewer) drawNeighborGrid() {
	g := v.sim.NeighborGrid()
	if g == nil {
		return
	}
	rows, cols := g.Shape()
	unit := float32(g.Unit())
	w, h := float32(cols)*unit, float32(rows)*unit
	col := rl.Color{R: 255, G: 255, B: 255, A: 40}
	for c := 0; c <= cols; c++ {
		x := float32(c) * unit
		rl.DrawLineV(v.vec(x, 0), v.vec(x, h), col)
	}
	for r := 0; r <= rows; r++ {
		y := float32(r) * unit
		rl.DrawLineV(v.vec(0, y), v.vec(w, y), col)
	}
}

func (v *Viewer) drawGeometry() {
	scn := v.sim.Scenario()
	for _, o := range scn.Obstacles {
		rl.DrawLineEx(
			v.vec(float32(o.Line.A.X), float32(o.Line.A.Y)),
			v.vec(float32(o.Line.B.X), float32(o.Line.B.Y)),
			max(v.cam.Scale(float32(o.Width)), 1),
			rl.Color{R: 110, G: 110, B: 120, A: 255},
		)
	}
	for i, w := range scn.Waypoints {
		c := DestinationColor(int32(i))
		c.A = 150
		rl.DrawLineEx(
			v.vec(float32(w.Line.A.X), float32(w.Line.A.Y)),
			v.vec(float32(w.Line.B.X), float32(w.Line.B.Y)),
			max(v.cam.Scale(0.1), 2),
			c,
		)
	}
}

func (v *Viewer) drawPedestrians(peds []telemetry.PedestrianState) {
	radius := max(v.cam.Scale(pedestrianRadius), 2)
	byDest := v.overlays.IsEnabled(ui.OverlayDestinations)
	showVel := v.overlays.IsEnabled(ui.OverlayVelocity)

	for _, p := range peds {
		x, y := float32(p.X), float32(p.Y)
		if !v.cam.IsVisible(x, y, pedestrianRadius) {
			continue
		}

		col := DestinationColor(p.Destination)
		if !byDest {
			col = SpeedColor(speedRatio(p))
		}
		center := v.vec(x, y)
		rl.DrawCircleV(center, radius, col)

		if showVel {
			tip := v.vec(x+float32(p.VX), y+float32(p.VY))
			rl.DrawLineV(center, tip, rl.White)
		}
	}
}

// vec maps scene metres to a screen vector.
func (v *Viewer) vec(x, y float32) rl.Vector2 {
	sx, sy := v.cam.WorldToScreen(x, y)
	return rl.Vector2{X: sx, Y: sy}
}

// speedRatio compares a pedestrian's speed to a typical walking pace.
func speedRatio(p telemetry.PedestrianState) float64 {
	const walking = 1.34
	return math.Hypot(p.VX, p.VY) / walking
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
