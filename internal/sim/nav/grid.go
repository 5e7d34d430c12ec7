package nav

import (
	"math"

	"bistro.ai/internal/sim/geom"
)

// Cell is a walkable grid square on the X/Z plane.
type Cell struct{ X, Z int }

func cellOf(p geom.Vec3, size float64) Cell {
	return Cell{X: int(math.Floor(p.X / size)), Z: int(math.Floor(p.Z / size))}
}

func (c Cell) center(size float64) geom.Vec3 {
	return geom.Vec3{X: (float64(c.X) + 0.5) * size, Z: (float64(c.Z) + 0.5) * size}
}

// gridPath runs a bounded BFS from start to goal with a fixed neighbor order so
// that identical inputs always yield the same path. It returns the cells after
// start, ending at goal.
func gridPath(start, goal Cell, maxNodes int, inBounds func(Cell) bool, blocked func(Cell) bool) ([]Cell, bool) {
	if start == goal {
		return nil, true
	}
	if !inBounds(goal) || blocked(goal) {
		return nil, false
	}
	dirs := []Cell{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

	prev := make(map[Cell]Cell, 256)
	prev[start] = start
	queue := make([]Cell, 0, 256)
	queue = append(queue, start)

	for head := 0; head < len(queue); head++ {
		if len(prev) > maxNodes {
			return nil, false
		}
		cur := queue[head]
		for _, d := range dirs {
			np := Cell{X: cur.X + d.X, Z: cur.Z + d.Z}
			if _, seen := prev[np]; seen {
				continue
			}
			if !inBounds(np) || blocked(np) {
				continue
			}
			prev[np] = cur
			if np == goal {
				return unwind(prev, start, goal), true
			}
			queue = append(queue, np)
		}
	}
	return nil, false
}

func unwind(prev map[Cell]Cell, start, goal Cell) []Cell {
	var out []Cell
	for c := goal; c != start; c = prev[c] {
		out = append(out, c)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
