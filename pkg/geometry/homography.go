package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective matrix in row-major order with H[2][2] normalized to 1.
type Homography [3][3]float64

// ComputeHomography computes the projective map sending src[i] to dst[i].
// It fails when three of the points are collinear.
func ComputeHomography(src, dst [4]Point2D) (Homography, error) {
	// 8 unknowns h00..h21, h22 = 1:
	// x' = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
	// y' = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
	A := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		A.Set(r, 0, X)
		A.Set(r, 1, Y)
		A.Set(r, 2, 1)
		A.Set(r, 6, -X*x)
		A.Set(r, 7, -Y*x)
		b.SetVec(r, x)

		A.Set(r+1, 3, X)
		A.Set(r+1, 4, Y)
		A.Set(r+1, 5, 1)
		A.Set(r+1, 6, -X*y)
		A.Set(r+1, 7, -Y*y)
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(A, b); err != nil {
		return Homography{}, fmt.Errorf("degenerate quadrilateral: %w", err)
	}

	return Homography{
		{h.AtVec(0), h.AtVec(1), h.AtVec(2)},
		{h.AtVec(3), h.AtVec(4), h.AtVec(5)},
		{h.AtVec(6), h.AtVec(7), 1},
	}, nil
}

// Apply maps a point through the homography.
func (h Homography) Apply(p Point2D) Point2D {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if w == 0 {
		return Point2D{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}
