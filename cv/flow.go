package cv

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"image"
	"math"
)

const (
	// DefaultMaxLevel is the default number of pyramid levels above the base
	DefaultMaxLevel = 3
	// lkIterations is the iteration cap of the per level LK search
	lkIterations = 30
	// lkEpsilon is the minimum per iteration movement of the LK search
	lkEpsilon = 0.01
	// lkMinEigen is OpenCV's default minimum eigenvalue threshold
	lkMinEigen = 1e-4
)

// LucasKanade is a features.FlowSolver backed by pyramidal Lucas-Kanade
// optical flow.  The reported error is OpenCV's default measure, the mean
// absolute intensity difference per window pixel.
type LucasKanade struct {
	// MaxLevel is the number of pyramid levels above the base image
	MaxLevel int
	// nextPts, status and errMat are reused between calls
	nextPts gocv.Mat
	status  gocv.Mat
	errMat  gocv.Mat
}

// NewLucasKanade returns a LucasKanade solver, which must be closed after use
func NewLucasKanade(maxLevel int) *LucasKanade {
	return &LucasKanade{
		MaxLevel: maxLevel,
		nextPts:  gocv.NewMat(),
		status:   gocv.NewMat(),
		errMat:   gocv.NewMat(),
	}
}

// Close frees the reused Mats
func (l *LucasKanade) Close() error {
	return multierr.Combine(l.nextPts.Close(), l.status.Close(), l.errMat.Close())
}

// Flow tracks points from prev into next.  Points the solver lost get a +Inf
// error.
func (l *LucasKanade) Flow(prev, next gocv.Mat, points []r2.Point,
	window image.Point) ([]r2.Point, []float64, error) {

	if len(points) == 0 {
		return []r2.Point{}, []float64{}, nil
	}

	if prev.Empty() || next.Empty() {
		return nil, nil, errors.New("empty frame")
	}

	if prev.Rows() != next.Rows() || prev.Cols() != next.Cols() {
		return nil, nil, errors.Errorf("frame size changed from %dx%d to %dx%d",
			prev.Cols(), prev.Rows(), next.Cols(), next.Rows())
	}

	prevPts := PointsToMat(points)
	defer prevPts.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, lkIterations, lkEpsilon)

	gocv.CalcOpticalFlowPyrLKWithParams(prev, next, prevPts, l.nextPts, &l.status, &l.errMat,
		window, l.MaxLevel, criteria, 0, lkMinEigen)

	moved := MatToPoints(l.nextPts)

	if len(moved) != len(points) || l.status.Rows() != len(points) || l.errMat.Rows() != len(points) {
		return nil, nil, errors.Errorf("optical flow returned %d points for %d inputs", len(moved), len(points))
	}

	errs := make([]float64, len(points))

	for i := range points {
		if l.status.GetUCharAt(i, 0) == 0 {
			errs[i] = math.Inf(1)
			continue
		}

		errs[i] = float64(l.errMat.GetFloatAt(i, 0))
	}

	return moved, errs, nil
}
