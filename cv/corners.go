package cv

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"image"
)

// ShiTomasi is a features.CornerDetector backed by cv::goodFeaturesToTrack
type ShiTomasi struct{}

// NewShiTomasi returns a ShiTomasi corner detector
func NewShiTomasi() *ShiTomasi {
	return &ShiTomasi{}
}

// Corners returns up to maxCount corners of img inside region, in full image
// coordinates and strongest first
func (s *ShiTomasi) Corners(img gocv.Mat, maxCount int, quality, minDistance float64,
	region image.Rectangle) ([]r2.Point, error) {

	if img.Empty() {
		return nil, errors.New("empty image")
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	region = region.Intersect(bounds)

	if region.Empty() {
		return []r2.Point{}, nil
	}

	roi := img.Region(region)
	defer roi.Close()

	corners := gocv.NewMat()
	defer corners.Close()

	gocv.GoodFeaturesToTrack(roi, &corners, maxCount, quality, minDistance)

	pts := MatToPoints(corners)

	for i := range pts {
		pts[i].X += float64(region.Min.X)
		pts[i].Y += float64(region.Min.Y)
	}

	return pts, nil
}
