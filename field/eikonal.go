package field

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type cellStatus uint8

const (
	far cellStatus = iota
	considered
	accepted
)

// marchItem is a heap entry. Entries are never decreased in place; a cell
// may be pushed several times and stale copies are skipped on pop.
type marchItem struct {
	idx int
	u   float64
}

// marchHeap implements heap.Interface as a min-heap on tentative potential.
type marchHeap []marchItem

func (h marchHeap) Len() int           { return len(h) }
func (h marchHeap) Less(i, j int) bool { return h[i].u < h[j].u }
func (h marchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *marchHeap) Push(x any) { *h = append(*h, x.(marchItem)) }

func (h *marchHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

var neighbors4 = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Solve runs Fast Marching from every finite cell in seeds over the local
// traversal cost grid and returns the arrival potential. Cells the front
// never reaches hold Unreachable.
func Solve(seeds, cost Grid) Grid {
	rows, cols := seeds.Rows, seeds.Cols
	u := seeds.Clone()
	status := make([]cellStatus, len(u.Data))
	h := make(marchHeap, 0, 2*(rows+cols))

	for i, v := range u.Data {
		if finite(v) {
			status[i] = accepted
		} else {
			u.Data[i] = math.Inf(1)
		}
	}

	// Seed the front with direct neighbours of every seed.
	for i, st := range status {
		if st != accepted {
			continue
		}
		x, y := i%cols, i/cols
		for _, d := range neighbors4 {
			nx, ny := x+d[0], y+d[1]
			if !u.In(nx, ny) {
				continue
			}
			j := ny*cols + nx
			if status[j] == accepted {
				continue
			}
			tent := u.Data[i] + cost.Data[j]
			if tent < u.Data[j] {
				u.Data[j] = tent
				status[j] = considered
				heap.Push(&h, marchItem{idx: j, u: tent})
			}
		}
	}

	axisMin := func(x, y, dx, dy int) float64 {
		best := math.Inf(1)
		for _, s := range [2]int{-1, 1} {
			nx, ny := x+s*dx, y+s*dy
			if !u.In(nx, ny) {
				continue
			}
			j := ny*cols + nx
			if status[j] == accepted && u.Data[j] < best {
				best = u.Data[j]
			}
		}
		return best
	}

	for h.Len() > 0 {
		it := heap.Pop(&h).(marchItem)
		if status[it.idx] == accepted {
			continue
		}
		status[it.idx] = accepted

		x, y := it.idx%cols, it.idx/cols
		for _, d := range neighbors4 {
			nx, ny := x+d[0], y+d[1]
			if !u.In(nx, ny) {
				continue
			}
			j := ny*cols + nx
			if status[j] == accepted {
				continue
			}

			tent := upwind(axisMin(nx, ny, 1, 0), axisMin(nx, ny, 0, 1), cost.Data[j])
			if tent < u.Data[j] {
				u.Data[j] = tent
				status[j] = considered
				heap.Push(&h, marchItem{idx: j, u: tent})
			}
		}
	}

	for i, v := range u.Data {
		if math.IsInf(v, 1) || v > Unreachable {
			u.Data[i] = Unreachable
		}
	}
	return u
}

// upwind solves the first-order Eikonal update from the accepted minima along
// each axis. An unavailable axis is +Inf.
func upwind(u1, u2, f float64) float64 {
	switch {
	case math.IsInf(u1, 1) && math.IsInf(u2, 1):
		return math.Inf(1)
	case math.IsInf(u1, 1):
		return u2 + f
	case math.IsInf(u2, 1):
		return u1 + f
	}
	sq := 2*f*f - (u1-u2)*(u1-u2)
	if sq >= 0 {
		return (u1 + u2 + math.Sqrt(sq)) / 2
	}
	return math.Min(u1, u2) + f
}

// Job is one Solve invocation.
type Job struct {
	Seeds Grid
	Cost  Grid
}

// SolveAll runs the jobs concurrently and returns results in job order.
func SolveAll(ctx context.Context, jobs []Job) ([]Grid, error) {
	for i, job := range jobs {
		if job.Seeds.Rows != job.Cost.Rows || job.Seeds.Cols != job.Cost.Cols {
			return nil, fmt.Errorf("job %d: seeds %dx%d do not match cost %dx%d: %w",
				i, job.Seeds.Rows, job.Seeds.Cols, job.Cost.Rows, job.Cost.Cols, ErrShape)
		}
	}

	out := make([]Grid, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = Solve(job.Seeds, job.Cost)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("solving fields: %w", err)
	}
	return out, nil
}
