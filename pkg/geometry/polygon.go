package geometry

import "math"

// IsConvex reports whether the vertices, taken in order, turn the same way at
// every corner. Collinear corners are ignored; a fully collinear polygon is
// not convex.
func IsConvex(polygon []Point2D) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	turn := 0.0
	for i := range polygon {
		c := cross(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		switch {
		case c == 0:
		case turn == 0:
			turn = c
		case (c > 0) != (turn > 0):
			return false
		}
	}
	return turn != 0
}

// PolygonArea returns the unsigned area of a simple polygon.
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0
	}
	var twice float64
	prev := polygon[len(polygon)-1]
	for _, p := range polygon {
		twice += prev.X*p.Y - p.X*prev.Y
		prev = p
	}
	return math.Abs(twice) / 2
}

// cross is the z component of (a-o) x (b-o).
func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
