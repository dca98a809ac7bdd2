package systems

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

// cellReserve is the extra capacity a full cell list grows by.
const cellReserve = 16

// NeighborGrid buckets pedestrians by cell for 3x3 neighborhood queries.
// Queries only cover the interaction radius when Unit is at least that radius.
type NeighborGrid struct {
	unit  float64
	cols  int
	rows  int
	cells [][]int32 // flat grid of pedestrian index lists

	// Sorted layout rebuilt by Update.
	order   []int32 // pedestrian indices grouped by cell, row-major
	offsets []int32 // prefix sums; cell c holds order[offsets[c]:offsets[c+1]]
}

// NewNeighborGrid creates a grid covering size with square cells of side unit.
func NewNeighborGrid(size r2.Vec, unit float64) *NeighborGrid {
	cols := int(size.X/unit) + 1
	rows := int(size.Y/unit) + 1

	cells := make([][]int32, cols*rows)
	for i := range cells {
		cells[i] = make([]int32, 0, cellReserve)
	}

	return &NeighborGrid{
		unit:    unit,
		cols:    cols,
		rows:    rows,
		cells:   cells,
		offsets: make([]int32, cols*rows+1),
	}
}

// Unit returns the cell side.
func (g *NeighborGrid) Unit() float64 { return g.unit }

// Shape returns (rows, cols).
func (g *NeighborGrid) Shape() (int, int) { return g.rows, g.cols }

// Clear empties every cell without releasing capacity.
func (g *NeighborGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Update rebuilds the grid from positions indexed by pedestrian.
func (g *NeighborGrid) Update(positions []r2.Vec) {
	g.Clear()
	for i, p := range positions {
		c := g.cellIndex(p)
		if len(g.cells[c]) == cap(g.cells[c]) {
			g.cells[c] = slices.Grow(g.cells[c], cellReserve)
		}
		g.cells[c] = append(g.cells[c], int32(i))
	}

	g.order = g.order[:0]
	for c, cell := range g.cells {
		g.offsets[c] = int32(len(g.order))
		g.order = append(g.order, cell...)
	}
	g.offsets[len(g.cells)] = int32(len(g.order))
}

// Layout returns the sorted order and the per-cell prefix offsets built by
// the last Update. Callers that permute their data by order can read a cell
// range [offsets[c], offsets[c+1]) directly.
func (g *NeighborGrid) Layout() (order, offsets []int32) {
	return g.order, g.offsets
}

// Cell returns the (x, y) cell of pos, clamped to the grid.
func (g *NeighborGrid) Cell(pos r2.Vec) (int, int) {
	c := g.cellIndex(pos)
	return c % g.cols, c / g.cols
}

// CellIndices returns the pedestrians bucketed in cell (x, y).
func (g *NeighborGrid) CellIndices(x, y int) []int32 {
	if x < 0 || y < 0 || x >= g.cols || y >= g.rows {
		return nil
	}
	return g.cells[y*g.cols+x]
}

// Candidates appends every pedestrian in the 3x3 block around pos to dst.
func (g *NeighborGrid) Candidates(dst []int32, pos r2.Vec) []int32 {
	cx, cy := g.Cell(pos)
	for y := max(cy-1, 0); y <= min(cy+1, g.rows-1); y++ {
		for x := max(cx-1, 0); x <= min(cx+1, g.cols-1); x++ {
			dst = append(dst, g.cells[y*g.cols+x]...)
		}
	}
	return dst
}

// Block returns the clamped 3x3 block bounds around pos.
func (g *NeighborGrid) Block(pos r2.Vec) (x0, x1, y0, y1 int) {
	cx, cy := g.Cell(pos)
	return max(cx-1, 0), min(cx+1, g.cols-1), max(cy-1, 0), min(cy+1, g.rows-1)
}

// RowRange returns the sorted-layout range covering cells x0..x1 of row y.
func (g *NeighborGrid) RowRange(y, x0, x1 int) (int, int) {
	base := y * g.cols
	return int(g.offsets[base+x0]), int(g.offsets[base+x1+1])
}

// cellIndex returns the flat index for a position.
func (g *NeighborGrid) cellIndex(p r2.Vec) int {
	col := clampCell(p.X/g.unit, g.cols)
	row := clampCell(p.Y/g.unit, g.rows)
	return row*g.cols + col
}

func clampCell(v float64, n int) int {
	if !(v >= 0) { // also catches NaN
		return 0
	}
	if v >= float64(n) {
		return n - 1
	}
	return int(math.Floor(v))
}
