// Package geometry provides the planar value types shared by matching and supervision.
package geometry

import (
	"fmt"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// DistanceSq returns the squared Euclidean distance to another point.
func (p Point2D) DistanceSq(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// IsFinite reports whether both coordinates are neither NaN nor infinite.
func (p Point2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Rect is an axis-aligned rectangle in template coordinates.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"w" yaml:"w"`
	Height float64 `json:"h" yaml:"h"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// Contains returns true if the point is inside the rectangle.
func (r Rect) Contains(p Point2D) bool {
	return p.X >= r.X && p.X <= r.X+r.Width &&
		p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

func (r Rect) TopLeft() Point2D     { return Point2D{X: r.X, Y: r.Y} }
func (r Rect) TopRight() Point2D    { return Point2D{X: r.X + r.Width, Y: r.Y} }
func (r Rect) BottomRight() Point2D { return Point2D{X: r.X + r.Width, Y: r.Y + r.Height} }
func (r Rect) BottomLeft() Point2D  { return Point2D{X: r.X, Y: r.Y + r.Height} }

// Corners returns the corners clockwise from the top-left one.
func (r Rect) Corners() [4]Point2D {
	return [4]Point2D{r.TopLeft(), r.TopRight(), r.BottomRight(), r.BottomLeft()}
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Matrix2 is a 2x2 linear map.
// [a b]
// [c d]
type Matrix2 struct {
	A, B float64
	C, D float64
}

// Identity2 returns the identity matrix.
func Identity2() Matrix2 {
	return Matrix2{A: 1, D: 1}
}

// Apply multiplies the matrix with a column vector.
func (m Matrix2) Apply(p Point2D) Point2D {
	return Point2D{
		X: m.A*p.X + m.B*p.Y,
		Y: m.C*p.X + m.D*p.Y,
	}
}

// Det returns the determinant.
func (m Matrix2) Det() float64 {
	return m.A*m.D - m.B*m.C
}

// ToArray returns the matrix in row-major order.
func (m Matrix2) ToArray() [2][2]float64 {
	return [2][2]float64{{m.A, m.B}, {m.C, m.D}}
}

// AlmostEqual compares entry-wise within tol.
func (m Matrix2) AlmostEqual(other Matrix2, tol float64) bool {
	return math.Abs(m.A-other.A) <= tol && math.Abs(m.B-other.B) <= tol &&
		math.Abs(m.C-other.C) <= tol && math.Abs(m.D-other.D) <= tol
}

func (m Matrix2) String() string {
	return fmt.Sprintf("[[%g %g] [%g %g]]", m.A, m.B, m.C, m.D)
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
