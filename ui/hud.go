package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pedoni/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Scenario string
	Backend  string
	Tick     int32
	SimTime  float64
	Active   int
	Arrived  int
	Speed    int
	FPS      int32
	Paused   bool
	Error    string
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{renderer: NewRenderer()}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(fmt.Sprintf("Pedoni - %s", data.Scenario), 10, 10, 20, rl.White)

	rl.DrawText(
		fmt.Sprintf("Active: %d | Arrived: %d | Backend: %s", data.Active, data.Arrived, data.Backend),
		10, 35, 16, rl.LightGray,
	)
	rl.DrawText(
		fmt.Sprintf("Tick: %d | t=%.1fs | Speed: %dx | FPS: %d", data.Tick, data.SimTime, data.Speed, data.FPS),
		10, 55, 16, rl.LightGray,
	)

	switch {
	case data.Error != "":
		rl.DrawText("HALTED: "+data.Error, 10, 75, 16, rl.Red)
	case data.Paused:
		rl.DrawText("PAUSED", 10, 75, 16, rl.Yellow)
	}
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// CrowdPanel renders the last closed stats window.
type CrowdPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewCrowdPanel creates a crowd stats panel.
func NewCrowdPanel(x, y, width int32) *CrowdPanel {
	return &CrowdPanel{renderer: NewRenderer(), x: x, y: y, width: width}
}

// SetPosition updates the panel position.
func (c *CrowdPanel) SetPosition(x, y int32) {
	c.x = x
	c.y = y
}

// Draw renders stats; nil draws a placeholder until the first window closes.
func (c *CrowdPanel) Draw(stats *telemetry.CrowdStats) int32 {
	r := c.renderer
	pad := r.Theme.Padding
	inner := c.width - 2*pad
	height := r.Theme.LineHeight*9 + 2*pad

	r.DrawPanel(c.x, c.y, c.width, height)
	x, y := c.x+pad, c.y+pad
	y = r.DrawSectionHeader(x, y, "Crowd")

	if stats == nil {
		r.DrawLabelValue(x, y, "Window", "collecting")
		return c.y + height
	}

	y = r.DrawLabelValue(x, y, "Window end", fmt.Sprintf("%.1fs", stats.SimTimeSec))
	y = r.DrawLabelValue(x, y, "Flow", fmt.Sprintf("%.2f ped/s", stats.Flow))
	y = r.DrawLabelValue(x, y, "Travel", fmt.Sprintf("%.1fs (p90 %.1fs)", stats.TravelMean, stats.TravelP90))
	y = r.DrawLabelValue(x, y, "Speed", fmt.Sprintf("%.2f +- %.2f", stats.SpeedMean, stats.SpeedStd))
	y = r.DrawLabelValue(x, y, "p10/50/90", fmt.Sprintf("%.2f %.2f %.2f", stats.SpeedP10, stats.SpeedP50, stats.SpeedP90))
	y = r.DrawLabelValue(x, y, "In/out", fmt.Sprintf("%d / %d", stats.Spawned, stats.Arrived))
	r.DrawRatioBar(x, y, "Efficiency", float32(stats.Efficiency), inner)
	return c.y + height
}

// PerfPanel renders tick phase timings.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y int32) *PerfPanel {
	return &PerfPanel{renderer: NewRenderer(), x: x, y: y}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	x, y := p.x, p.y

	rl.DrawText("Tick Performance", x, y, 16, rl.White)
	y += 20

	rl.DrawText(fmt.Sprintf("Avg: %s  (%.0f ticks/s)", stats.AvgTickDuration.Round(time.Microsecond), stats.TicksPerSecond), x, y, 14, rl.Yellow)
	y += 16

	for _, phase := range telemetry.Phases {
		avg := stats.PhaseAvg[phase]
		pct := stats.PhasePct[phase]

		color := rl.LightGray
		if pct > 50 {
			color = rl.Red
		} else if pct > 25 {
			color = rl.Orange
		}
		rl.DrawText(
			fmt.Sprintf("%-14s %8s %5.1f%%", phase, avg.Round(time.Microsecond), pct),
			x, y, 12, color,
		)
		y += 14
	}
}
