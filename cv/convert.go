package cv

import (
	"github.com/golang/geo/r2"
	"github.com/swdee/go-ptztrack/features"
	"gocv.io/x/gocv"
)

// PointsToMat returns an Nx1 two channel float32 Mat of the points as used by
// the OpenCV geometry and flow functions.  The caller must Close it.
func PointsToMat(points []r2.Point) gocv.Mat {

	m := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV32FC2)

	for i, pt := range points {
		m.SetFloatAt(i, 0, float32(pt.X))
		m.SetFloatAt(i, 1, float32(pt.Y))
	}

	return m
}

// MatToPoints reads an Nx1 two channel float32 Mat of points
func MatToPoints(m gocv.Mat) []r2.Point {

	if m.Empty() {
		return []r2.Point{}
	}

	n := m.Total()
	out := make([]r2.Point, n)

	for i := 0; i < n; i++ {
		out[i] = r2.Point{
			X: float64(m.GetFloatAt(i, 0)),
			Y: float64(m.GetFloatAt(i, 1)),
		}
	}

	return out
}

// DescriptorsToMat packs descriptors into a row per descriptor float32 Mat.
// All descriptors must have the same length.  The caller must Close it.
func DescriptorsToMat(desc []features.Descriptor) gocv.Mat {

	if len(desc) == 0 {
		return gocv.NewMat()
	}

	dim := len(desc[0])
	m := gocv.NewMatWithSize(len(desc), dim, gocv.MatTypeCV32F)

	for r, d := range desc {
		for c, v := range d {
			m.SetFloatAt(r, c, v)
		}
	}

	return m
}

// matRow reads one float32 descriptor row
func matRow(m gocv.Mat, r int) features.Descriptor {

	d := make(features.Descriptor, m.Cols())

	for c := range d {
		d[c] = m.GetFloatAt(r, c)
	}

	return d
}

// ToGray writes a single channel copy of src into dst
func ToGray(src gocv.Mat, dst *gocv.Mat) {

	switch src.Channels() {
	case 3:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		src.CopyTo(dst)
	}
}
