package geometry

import (
	"math"
	"sort"
)

// VisibleCells computes every cell visible from origin within radius,
// respecting light-blocking edges as occluders. Distance is Euclidean
// (dx*dx+dy*dy <= radius*radius); all call sites use the same metric.
//
// One ray is cast from the origin cell center to the center of each cell on
// the boundary of the radius square, walking the grid with a DDA traversal.
// Every in-bounds, in-radius cell the ray enters is visible; the ray stops
// when it crosses a blocking edge. When a ray passes exactly through a grid
// corner, it stops if either edge incident to that corner blocks light.
//
// The result is deduplicated, clipped to the width x height grid, always
// contains the origin, and is sorted by (y,x) for deterministic output.
// Runs in O(radius^2): O(radius) rays of O(radius) steps each.
func VisibleCells(origin Cell, radius, width, height int, blocksLight map[EdgeAddress]bool) []Cell {
	seen := make(map[Cell]struct{})
	inBounds := func(c Cell) bool {
		return c.X >= 0 && c.Y >= 0 && c.X < width && c.Y < height
	}
	if inBounds(origin) {
		seen[origin] = struct{}{}
	}
	if radius > 0 {
		for x := origin.X - radius; x <= origin.X+radius; x++ {
			castRay(origin, Cell{X: x, Y: origin.Y - radius}, radius, width, height, blocksLight, seen)
			castRay(origin, Cell{X: x, Y: origin.Y + radius}, radius, width, height, blocksLight, seen)
		}
		for y := origin.Y - radius + 1; y < origin.Y+radius; y++ {
			castRay(origin, Cell{X: origin.X - radius, Y: y}, radius, width, height, blocksLight, seen)
			castRay(origin, Cell{X: origin.X + radius, Y: y}, radius, width, height, blocksLight, seen)
		}
	}
	out := make([]Cell, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// castRay walks the grid from the center of origin toward the center of
// target, recording every visited cell within radius into seen. The walk
// stops at blocking edges or once the target cell is reached.
func castRay(origin, target Cell, radius, width, height int, blocksLight map[EdgeAddress]bool, seen map[Cell]struct{}) {
	sx, sy := float64(origin.X)+0.5, float64(origin.Y)+0.5
	tx, ty := float64(target.X)+0.5, float64(target.Y)+0.5
	dx, dy := tx-sx, ty-sy
	if dx == 0 && dy == 0 {
		return
	}
	adx, ady := math.Abs(dx), math.Abs(dy)
	stepX, stepY := 0, 0
	if dx > 0 {
		stepX = 1
	} else if dx < 0 {
		stepX = -1
	}
	if dy > 0 {
		stepY = 1
	} else if dy < 0 {
		stepY = -1
	}

	tDeltaX, tDeltaY := math.Inf(1), math.Inf(1)
	if adx > 0 {
		tDeltaX = 1.0 / adx
	}
	if ady > 0 {
		tDeltaY = 1.0 / ady
	}

	xCell, yCell := origin.X, origin.Y

	var tMaxX, tMaxY float64
	if stepX > 0 {
		tMaxX = (float64(xCell+1) - sx) / adx
	} else if stepX < 0 {
		tMaxX = (sx - float64(xCell)) / adx
	} else {
		tMaxX = math.Inf(1)
	}
	if stepY > 0 {
		tMaxY = (float64(yCell+1) - sy) / ady
	} else if stepY < 0 {
		tMaxY = (sy - float64(yCell)) / ady
	} else {
		tMaxY = math.Inf(1)
	}

	r2 := radius * radius
	mark := func(x, y int) {
		ddx, ddy := x-origin.X, y-origin.Y
		if ddx*ddx+ddy*ddy > r2 {
			return
		}
		if x < 0 || y < 0 || x >= width || y >= height {
			return
		}
		seen[Cell{X: x, Y: y}] = struct{}{}
	}

	for i := 0; i < 2048; i++ {
		if xCell == target.X && yCell == target.Y {
			return
		}

		if tMaxX < tMaxY {
			var crossed EdgeAddress
			if stepX > 0 {
				crossed = EdgeAddress{X: xCell + 1, Y: yCell, Orientation: Vertical}
				xCell++
			} else {
				crossed = EdgeAddress{X: xCell, Y: yCell, Orientation: Vertical}
				xCell--
			}
			if blocksLight[crossed] {
				return
			}
			tMaxX += tDeltaX
		} else if tMaxY < tMaxX {
			var crossed EdgeAddress
			if stepY > 0 {
				crossed = EdgeAddress{X: xCell, Y: yCell + 1, Orientation: Horizontal}
				yCell++
			} else {
				crossed = EdgeAddress{X: xCell, Y: yCell, Orientation: Horizontal}
				yCell--
			}
			if blocksLight[crossed] {
				return
			}
			tMaxY += tDeltaY
		} else {
			oldX, oldY := xCell, yCell

			var vEdge, hEdge EdgeAddress
			nextX, nextY := xCell, yCell

			if stepX > 0 {
				vEdge = EdgeAddress{X: oldX + 1, Y: oldY, Orientation: Vertical}
				nextX = oldX + 1
			} else if stepX < 0 {
				vEdge = EdgeAddress{X: oldX, Y: oldY, Orientation: Vertical}
				nextX = oldX - 1
			}

			if stepY > 0 {
				hEdge = EdgeAddress{X: oldX, Y: oldY + 1, Orientation: Horizontal}
				nextY = oldY + 1
			} else if stepY < 0 {
				hEdge = EdgeAddress{X: oldX, Y: oldY, Orientation: Horizontal}
				nextY = oldY - 1
			}

			// Corner rule: if either of the two edges at the corner blocks
			// light, the ray stops.
			if blocksLight[vEdge] || blocksLight[hEdge] {
				return
			}

			xCell, yCell = nextX, nextY
			tMaxX += tDeltaX
			tMaxY += tDeltaY
		}

		mark(xCell, yCell)
	}
}

// StepEdge returns the unit edge crossed by a single-cell orthogonal step
// from (x,y). Diagonal or zero steps have no single crossing edge.
func StepEdge(x, y, dx, dy int) (EdgeAddress, bool) {
	switch {
	case dx == 1 && dy == 0:
		return EdgeAddress{X: x + 1, Y: y, Orientation: Vertical}, true
	case dx == -1 && dy == 0:
		return EdgeAddress{X: x, Y: y, Orientation: Vertical}, true
	case dx == 0 && dy == 1:
		return EdgeAddress{X: x, Y: y + 1, Orientation: Horizontal}, true
	case dx == 0 && dy == -1:
		return EdgeAddress{X: x, Y: y, Orientation: Horizontal}, true
	}
	return EdgeAddress{}, false
}
