package analysis

import (
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// Mutator transforms a feature image. It must not modify src.
type Mutator func(src gocv.Mat) gocv.Mat

var mutators = map[string]Mutator{
	"grayscale": grayscale,
	"binarize":  binarize,
	"blur":      blur,
	"invert":    invert,
}

// Mutators returns the names of the built-in mutators, sorted.
func Mutators() []string {
	names := make([]string, 0, len(mutators))
	for name := range mutators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyMutators runs the named mutators in order. The caller owns the result.
func applyMutators(img gocv.Mat, names []string) gocv.Mat {
	cur := img.Clone()
	for _, name := range names {
		next := mutators[name](cur)
		cur.Close()
		cur = next
	}
	return cur
}

func grayscale(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	}
	return dst
}

// binarize applies Otsu's threshold to the grayscale image.
func binarize(src gocv.Mat) gocv.Mat {
	gray := grayscale(src)
	defer gray.Close()
	dst := gocv.NewMat()
	gocv.Threshold(gray, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return dst
}

func blur(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
	return dst
}

func invert(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.BitwiseNot(src, &dst)
	return dst
}
