package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Renderer handles all UI drawing with consistent styling.
type Renderer struct {
	Theme Theme
}

// NewRenderer creates a renderer with the default theme.
func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme()}
}

// DrawPanel draws a panel background with border.
func (r *Renderer) DrawPanel(x, y, width, height int32) {
	rl.DrawRectangle(x, y, width, height, r.Theme.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, r.Theme.PanelBorder)
}

// DrawSectionHeader draws a section header and returns the new Y position.
func (r *Renderer) DrawSectionHeader(x, y int32, title string) int32 {
	rl.DrawText(title, x, y, r.Theme.HeaderSize, r.Theme.Header)
	return y + r.Theme.LineHeight + 2
}

// DrawLabelValue draws a label and value on the same line.
func (r *Renderer) DrawLabelValue(x, y int32, label, value string) int32 {
	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.Label)
	rl.DrawText(value, x+r.Theme.LabelWidth, y, r.Theme.FontSize, r.Theme.Value)
	return y + r.Theme.LineHeight
}

// DrawRatioBar draws a [0, 1] bar shaded jammed, slow or free.
func (r *Renderer) DrawRatioBar(x, y int32, label string, value float32, width int32) int32 {
	value = min(max(value, 0), 1)

	barX := x + r.Theme.LabelWidth
	barWidth := width - r.Theme.LabelWidth - 40

	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.Label)
	rl.DrawRectangle(barX, y+2, barWidth, r.Theme.BarHeight, r.Theme.BarTrack)

	rl.DrawRectangle(barX, y+2, int32(float32(barWidth)*value), r.Theme.BarHeight, r.Theme.barColor(value))

	rl.DrawText(fmt.Sprintf("%.2f", value), barX+barWidth+5, y, r.Theme.FontSize, r.Theme.Value)
	return y + r.Theme.LineHeight + 2
}

// DrawLegend draws a horizontal colour ramp labelled lo to hi.
func (r *Renderer) DrawLegend(x, y, width int32, lo, hi string, ramp func(t float32) rl.Color) int32 {
	for i := int32(0); i < width; i++ {
		rl.DrawRectangle(x+i, y, 1, r.Theme.BarHeight, ramp(float32(i)/float32(width-1)))
	}
	y += r.Theme.BarHeight + 2
	rl.DrawText(lo, x, y, r.Theme.FontSize, r.Theme.Label)
	hw := rl.MeasureText(hi, r.Theme.FontSize)
	rl.DrawText(hi, x+width-hw, y, r.Theme.FontSize, r.Theme.Label)
	return y + r.Theme.LineHeight
}
