// Package ui draws the viewer's panels: HUD, crowd and timing readouts and
// the overlay controls.
package ui

import rl "github.com/gen2brain/raylib-go/raylib"

// Theme holds panel colours and metrics.
type Theme struct {
	PanelBg     rl.Color
	PanelBorder rl.Color
	Header      rl.Color
	Label       rl.Color
	Value       rl.Color

	// Ratio bars are shaded by how freely the crowd moves.
	BarTrack  rl.Color
	BarJammed rl.Color
	BarSlow   rl.Color
	BarFree   rl.Color
	JamBelow  float32
	SlowBelow float32

	Padding    int32
	LineHeight int32
	LabelWidth int32
	BarHeight  int32
	FontSize   int32
	HeaderSize int32
}

// DefaultTheme returns the viewer's dark theme.
func DefaultTheme() Theme {
	return Theme{
		PanelBg:     rl.Color{R: 18, G: 22, B: 28, A: 235},
		PanelBorder: rl.Color{R: 70, G: 78, B: 90, A: 255},
		Header:      rl.Color{R: 240, G: 200, B: 90, A: 255},
		Label:       rl.LightGray,
		Value:       rl.RayWhite,

		BarTrack:  rl.Color{R: 45, G: 45, B: 50, A: 255},
		BarJammed: rl.Color{R: 210, G: 80, B: 70, A: 255},
		BarSlow:   rl.Color{R: 220, G: 170, B: 70, A: 255},
		BarFree:   rl.Color{R: 90, G: 190, B: 110, A: 255},
		JamBelow:  0.3,
		SlowBelow: 0.6,

		Padding:    10,
		LineHeight: 16,
		LabelWidth: 90,
		BarHeight:  12,
		FontSize:   12,
		HeaderSize: 14,
	}
}

// barColor picks the fill for a ratio in [0, 1].
func (t Theme) barColor(v float32) rl.Color {
	switch {
	case v < t.JamBelow:
		return t.BarJammed
	case v < t.SlowBelow:
		return t.BarSlow
	default:
		return t.BarFree
	}
}
