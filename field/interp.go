package field

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Bilinear samples g at grid-local coordinates (x = column, y = row).
// Corners outside the grid contribute Unreachable.
func Bilinear(g Grid, x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return Unreachable
	}
	// Far outside: avoid float-to-int overflow.
	if x < -2 || y < -2 || x > float64(g.Cols)+1 || y > float64(g.Rows)+1 {
		return Unreachable
	}

	bx, by := math.Floor(x), math.Floor(y)
	tx, ty := x-bx, y-by
	sx, sy := 1-tx, 1-ty
	ix, iy := int(bx), int(by)

	corner := func(x, y int) float64 {
		if v, ok := g.At(x, y); ok {
			return v
		}
		return Unreachable
	}

	v := sy * sx * corner(ix, iy)
	v += sy * tx * corner(ix+1, iy)
	v += ty * sx * corner(ix, iy+1)
	v += ty * tx * corner(ix+1, iy+1)
	return v
}

// Sobel returns the gradient of g at grid-local (x, y) from a 3x3 Sobel
// stencil over bilinear samples one cell apart, scaled to per-metre.
func Sobel(g Grid, x, y, unit float64) r2.Vec {
	var s [3][3]float64
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			s[j+1][i+1] = Bilinear(g, x+float64(i), y+float64(j))
		}
	}

	gx := (s[0][2] + 2*s[1][2] + s[2][2]) - (s[0][0] + 2*s[1][0] + s[2][0])
	gy := (s[2][0] + 2*s[2][1] + s[2][2]) - (s[0][0] + 2*s[0][1] + s[0][2])
	return r2.Vec{X: gx / (8 * unit), Y: gy / (8 * unit)}
}
