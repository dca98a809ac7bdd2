package viewer

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/pedoni/field"
)

func TestRamp(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 60, A: 255}, Ramp(0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, Ramp(1))
	assert.Equal(t, Ramp(0), Ramp(-3), "clamped below")
	assert.Equal(t, Ramp(1), Ramp(7), "clamped above")
}

func TestFieldPixels(t *testing.T) {
	g := field.NewGrid(2, 3, 0)
	copy(g.Data, []float64{0, 1, 2, 4, field.Unreachable, 1e6})
	mask := field.NewMask(2, 3)
	mask.Set(2, 1) // the 1e6 cell

	px := FieldPixels(nil, g, mask)
	require.Len(t, px, 6)

	assert.Equal(t, Ramp(0), px[0])
	assert.Equal(t, Ramp(0.5), px[2])
	assert.Equal(t, Ramp(1), px[3], "largest free value maps to the top of the ramp")
	assert.Equal(t, obstacleColor, px[4])
	assert.Equal(t, obstacleColor, px[5])

	// Reuses the buffer
	again := FieldPixels(px, g, mask)
	assert.Same(t, &px[0], &again[0])
}

func TestFieldPixels_Flat(t *testing.T) {
	g := field.NewGrid(1, 2, 0)
	px := FieldPixels(nil, g, field.Mask{})
	assert.Equal(t, []color.RGBA{Ramp(0), Ramp(0)}, px)
}

func TestSpeedAndDestinationColors(t *testing.T) {
	slow, fast := SpeedColor(0), SpeedColor(1)
	assert.Greater(t, slow.R, fast.R)
	assert.Greater(t, fast.G, slow.G)
	assert.Equal(t, fast, SpeedColor(2))

	assert.Equal(t, DestinationColor(0), DestinationColor(int32(len(destinationColors))))
	assert.NotEqual(t, DestinationColor(0), DestinationColor(1))
	assert.Equal(t, obstacleColor, DestinationColor(-1))
}
