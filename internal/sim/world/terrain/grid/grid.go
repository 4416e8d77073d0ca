// Package grid buckets static obstacle footprints into uniform cells so range
// queries only visit nearby obstacles.
package grid

import (
	"math"
	"sort"

	"skyway.city/internal/sim/world/kernel/model"
)

const DefaultCellSize = 64.0

type cellKey struct {
	X int
	Y int
}

type Index struct {
	cellSize float64
	cells    map[cellKey][]int
	items    []model.Obstacle
}

func New(obstacles []model.Obstacle, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	idx := &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
		items:    append([]model.Obstacle(nil), obstacles...),
	}
	for i, o := range idx.items {
		x0, y0 := idx.cellOf(o.X, o.Y)
		x1, y1 := idx.cellOf(o.MaxX(), o.MaxY())
		for cy := y0; cy <= y1; cy++ {
			for cx := x0; cx <= x1; cx++ {
				k := cellKey{X: cx, Y: cy}
				idx.cells[k] = append(idx.cells[k], i)
			}
		}
	}
	return idx
}

func (idx *Index) cellOf(x, y float64) (int, int) {
	return int(math.Floor(x / idx.cellSize)), int(math.Floor(y / idx.cellSize))
}

func (idx *Index) Len() int { return len(idx.items) }

func (idx *Index) At(i int) model.Obstacle { return idx.items[i] }

// Obstacles returns a copy of every indexed obstacle.
func (idx *Index) Obstacles() []model.Obstacle {
	return append([]model.Obstacle(nil), idx.items...)
}

// Near returns the indexes (ascending, unique) of obstacles whose cells
// overlap the square of half-size r centered on (x,y). Callers still apply
// their exact geometric test.
func (idx *Index) Near(x, y, r float64) []int {
	if idx == nil || len(idx.items) == 0 {
		return nil
	}
	if r < 0 {
		r = 0
	}
	x0, y0 := idx.cellOf(x-r, y-r)
	x1, y1 := idx.cellOf(x+r, y+r)

	seen := make(map[int]struct{}, 8)
	var out []int
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			for _, i := range idx.cells[cellKey{X: cx, Y: cy}] {
				if _, ok := seen[i]; ok {
					continue
				}
				seen[i] = struct{}{}
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out
}
