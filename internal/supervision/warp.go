package supervision

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"docalign/pkg/geometry"
)

// minQuadArea is the smallest target area, in square pixels, a feature may map onto.
const minQuadArea = 1

// FeatureQuad returns the target-image positions of the four corners of a
// template rectangle, clockwise from the top left.
func (r *Result) FeatureQuad(feature geometry.Rect) ([4]geometry.Point2D, error) {
	var quad [4]geometry.Point2D
	for i, c := range feature.Corners() {
		p, err := r.Translate(c)
		if err != nil {
			return quad, err
		}
		quad[i] = p
	}
	return quad, nil
}

// WarpFeature cuts the region of a template feature out of the target image and
// resamples it onto a feature.Width x feature.Height image. The caller owns the
// returned Mat.
func (r *Result) WarpFeature(feature geometry.Rect, target gocv.Mat) (gocv.Mat, error) {
	if feature.Empty() {
		return gocv.NewMat(), errors.Errorf("empty feature rectangle %+v", feature)
	}
	quad, err := r.FeatureQuad(feature)
	if err != nil {
		return gocv.NewMat(), err
	}
	if !geometry.IsConvex(quad[:]) || geometry.PolygonArea(quad[:]) < minQuadArea {
		return gocv.NewMat(), errors.New("feature maps onto a degenerate quadrilateral")
	}

	w, h := feature.Width, feature.Height
	dst := [4]geometry.Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	H, err := geometry.ComputeHomography(quad, dst)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "feature perspective")
	}

	transformMat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer transformMat.Close()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			transformMat.SetDoubleAt(i, j, H[i][j])
		}
	}

	out := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(target, &out, transformMat, image.Point{X: int(w + 0.5), Y: int(h + 0.5)},
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return out, nil
}
