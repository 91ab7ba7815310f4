package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix2_Apply(t *testing.T) {
	m := Matrix2{A: 2, B: 1, C: -1, D: 3}
	p := m.Apply(NewPoint2D(1, 2))
	assert.InDelta(t, 4.0, p.X, 1e-12)
	assert.InDelta(t, 5.0, p.Y, 1e-12)
	assert.InDelta(t, 7.0, m.Det(), 1e-12)
}

func TestRect_Corners(t *testing.T) {
	r := NewRect(10, 20, 30, 40)
	c := r.Corners()
	assert.Equal(t, NewPoint2D(10, 20), c[0])
	assert.Equal(t, NewPoint2D(40, 20), c[1])
	assert.Equal(t, NewPoint2D(40, 60), c[2])
	assert.Equal(t, NewPoint2D(10, 60), c[3])
	assert.True(t, r.Contains(r.Center()))
	assert.False(t, r.Empty())
	assert.True(t, NewRect(0, 0, 0, 5).Empty())
}

func TestComputeHomography(t *testing.T) {
	tests := []struct {
		name string
		src  [4]Point2D
		dst  [4]Point2D
	}{
		{
			name: "scale and shift",
			src:  [4]Point2D{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
			dst:  [4]Point2D{{5, 5}, {7, 5}, {7, 7}, {5, 7}},
		},
		{
			name: "sheared quad onto rect",
			src:  [4]Point2D{{10, 10}, {60, 15}, {65, 45}, {5, 40}},
			dst:  [4]Point2D{{0, 0}, {50, 0}, {50, 30}, {0, 30}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := ComputeHomography(tc.src, tc.dst)
			require.NoError(t, err)
			for i := range tc.src {
				got := h.Apply(tc.src[i])
				assert.InDelta(t, tc.dst[i].X, got.X, 1e-9)
				assert.InDelta(t, tc.dst[i].Y, got.Y, 1e-9)
			}
		})
	}
}

func TestComputeHomography_Degenerate(t *testing.T) {
	src := [4]Point2D{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	dst := [4]Point2D{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	_, err := ComputeHomography(src, dst)
	assert.Error(t, err)
}

func TestPolygon(t *testing.T) {
	square := []Point2D{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	assert.True(t, IsConvex(square))
	assert.InDelta(t, 4.0, PolygonArea(square), 1e-12)
	assert.InDelta(t, 4.0, PolygonArea([]Point2D{{0, 2}, {2, 2}, {2, 0}, {0, 0}}), 1e-12)

	bowtie := []Point2D{{0, 0}, {2, 2}, {2, 0}, {0, 2}}
	assert.False(t, IsConvex(bowtie))

	line := []Point2D{{0, 0}, {1, 1}, {2, 2}}
	assert.False(t, IsConvex(line))
}

func TestBoundingBox(t *testing.T) {
	bb := BoundingBox([]Point2D{{3, 4}, {-1, 2}, {5, -6}})
	assert.Equal(t, NewRect(-1, -6, 6, 10), bb)
	assert.Equal(t, Rect{}, BoundingBox(nil))
}
