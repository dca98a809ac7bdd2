package viewer

import (
	"image/color"

	"github.com/pthm-cable/pedoni/field"
)

// obstacleColor fills obstacle cells in field images.
var obstacleColor = color.RGBA{R: 45, G: 45, B: 50, A: 255}

// destinationColors cycles per waypoint id.
var destinationColors = []color.RGBA{
	{R: 230, G: 90, B: 80, A: 255},
	{R: 80, G: 160, B: 230, A: 255},
	{R: 240, G: 200, B: 70, A: 255},
	{R: 120, G: 210, B: 120, A: 255},
	{R: 200, G: 120, B: 220, A: 255},
	{R: 240, G: 150, B: 60, A: 255},
}

// Ramp maps t in [0, 1] onto a dark blue, cyan, yellow, white gradient.
func Ramp(t float32) color.RGBA {
	t = min(max(t, 0), 1)
	var r, g, b float32
	switch {
	case t < 0.25:
		s := t / 0.25
		r, g, b = 10+s*30, 20+s*60, 60+s*100
	case t < 0.5:
		s := (t - 0.25) / 0.25
		r, g, b = 40+s*20, 80+s*120, 160+s*40
	case t < 0.75:
		s := (t - 0.5) / 0.25
		r, g, b = 60+s*140, 200-s*40, 200-s*150
	default:
		s := (t - 0.75) / 0.25
		r, g, b = 200+s*55, 160+s*95, 50+s*205
	}
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}

// FieldPixels renders g into dst, reusing its capacity. Free cells are scaled
// by the largest free-cell value; obstacle and unreachable cells are grey.
func FieldPixels(dst []color.RGBA, g field.Grid, obstacles field.Mask) []color.RGBA {
	n := g.Rows * g.Cols
	if cap(dst) < n {
		dst = make([]color.RGBA, n)
	}
	dst = dst[:n]

	blocked := func(i int) bool {
		return g.Data[i] >= field.Unreachable || (len(obstacles.Data) == n && obstacles.Data[i])
	}

	var hi float64
	for i, v := range g.Data {
		if !blocked(i) && v > hi {
			hi = v
		}
	}

	for i, v := range g.Data {
		switch {
		case blocked(i):
			dst[i] = obstacleColor
		case hi > 0:
			dst[i] = Ramp(float32(v / hi))
		default:
			dst[i] = Ramp(0)
		}
	}
	return dst
}

// SpeedColor shades a pedestrian red when stalled through green at desired
// speed.
func SpeedColor(ratio float64) color.RGBA {
	t := float32(min(max(ratio, 0), 1))
	return color.RGBA{
		R: uint8(220 - 150*t),
		G: uint8(70 + 150*t),
		B: 70,
		A: 255,
	}
}

// DestinationColor returns the colour for waypoint id.
func DestinationColor(id int32) color.RGBA {
	if id < 0 {
		return obstacleColor
	}
	return destinationColors[int(id)%len(destinationColors)]
}
