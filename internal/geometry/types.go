package geometry

type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// Cell addresses one grid square. Equality is by (x,y).
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// EdgeAddress identifies one unit edge on the grid-line lattice. A vertical
// edge at (x,y) is the left edge of cell (x,y); a horizontal edge at (x,y)
// is the top edge of cell (x,y).
type EdgeAddress struct {
	X           int
	Y           int
	Orientation Orientation
}

// SegmentEdges expands an axis-aligned wall segment between grid
// intersections (x1,y1)-(x2,y2) into the unit edges it covers. A horizontal
// segment occludes between the cells above and below it; a vertical segment
// between the cells left and right of it. Returns nil for zero-length or
// diagonal segments.
func SegmentEdges(x1, y1, x2, y2 int) []EdgeAddress {
	if x1 == x2 && y1 == y2 {
		return nil
	}
	if y1 == y2 {
		if x1 > x2 {
			x1, x2 = x2, x1
		}
		edges := make([]EdgeAddress, 0, x2-x1)
		for x := x1; x < x2; x++ {
			edges = append(edges, EdgeAddress{X: x, Y: y1, Orientation: Horizontal})
		}
		return edges
	}
	if x1 == x2 {
		if y1 > y2 {
			y1, y2 = y2, y1
		}
		edges := make([]EdgeAddress, 0, y2-y1)
		for y := y1; y < y2; y++ {
			edges = append(edges, EdgeAddress{X: x1, Y: y, Orientation: Vertical})
		}
		return edges
	}
	return nil
}
