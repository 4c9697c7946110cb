package cv

import (
	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

const (
	// homographyIterations is the RANSAC iteration cap used by OpenCV
	homographyIterations = 2000
	// homographyConfidence is the RANSAC confidence used by OpenCV
	homographyConfidence = 0.995
)

// Homography is a features.HomographySolver backed by cv::findHomography
// with RANSAC
type Homography struct{}

// NewHomography returns a Homography solver
func NewHomography() *Homography {
	return &Homography{}
}

// InlierMask returns the RANSAC inlier mask of the src to dst pairs
func (h *Homography) InlierMask(src, dst []r2.Point, reprojThreshold float64) []bool {

	mask := make([]bool, len(src))

	if len(src) < 4 || len(dst) != len(src) {
		return mask
	}

	s := PointsToMat(src)
	defer s.Close()

	d := PointsToMat(dst)
	defer d.Close()

	m := gocv.NewMat()
	defer m.Close()

	hm := gocv.FindHomography(s, &d, gocv.HomograpyMethodRANSAC, reprojThreshold,
		&m, homographyIterations, homographyConfidence)
	defer hm.Close()

	// no model found
	if hm.Empty() || m.Rows() != len(src) {
		return mask
	}

	for i := range mask {
		mask[i] = m.GetUCharAt(i, 0) > 0
	}

	return mask
}
