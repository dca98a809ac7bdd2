// Package field builds the navigation fields pedestrians descend: one
// Fast-Marching potential per waypoint plus a distance-to-obstacle map, all on
// a shared uniform grid.
package field

import "math"

// Unreachable is returned for samples outside the grid and written into cells
// the solver never reached.
const Unreachable = 1e12

// Grid is a row-major rows x cols array of float64.
// x indexes columns, y indexes rows.
type Grid struct {
	Rows, Cols int
	Data       []float64
}

// NewGrid returns a grid with every cell set to fill.
func NewGrid(rows, cols int, fill float64) Grid {
	g := Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	if fill != 0 {
		for i := range g.Data {
			g.Data[i] = fill
		}
	}
	return g
}

// In reports whether (x, y) is inside the grid.
func (g Grid) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Cols && y < g.Rows
}

// At returns the value at (x, y) and whether it exists.
func (g Grid) At(x, y int) (float64, bool) {
	if !g.In(x, y) {
		return 0, false
	}
	return g.Data[y*g.Cols+x], true
}

// Set writes v at (x, y). Out-of-grid writes are ignored.
func (g Grid) Set(x, y int, v float64) {
	if g.In(x, y) {
		g.Data[y*g.Cols+x] = v
	}
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// Max returns the largest value below Unreachable, or 0 for an empty grid.
func (g Grid) Max() float64 {
	m := 0.0
	for _, v := range g.Data {
		if v < Unreachable && v > m {
			m = v
		}
	}
	return m
}

// Mask is a row-major boolean grid.
type Mask struct {
	Rows, Cols int
	Data       []bool
}

// NewMask returns an all-false mask.
func NewMask(rows, cols int) Mask {
	return Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At returns the mask value; out-of-grid cells read as set.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Cols || y >= m.Rows {
		return true
	}
	return m.Data[y*m.Cols+x]
}

// Set marks (x, y). Out-of-grid writes are ignored.
func (m Mask) Set(x, y int) {
	if x >= 0 && y >= 0 && x < m.Cols && y < m.Rows {
		m.Data[y*m.Cols+x] = true
	}
}

// Count returns the number of set cells.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// markBorder sets every edge cell.
func (m Mask) markBorder() {
	for x := 0; x < m.Cols; x++ {
		m.Set(x, 0)
		m.Set(x, m.Rows-1)
	}
	for y := 0; y < m.Rows; y++ {
		m.Set(0, y)
		m.Set(m.Cols-1, y)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
