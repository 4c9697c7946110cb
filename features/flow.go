package features

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"image"
)

const (
	// DefaultFlowError is the default maximum optical flow error, the mean
	// absolute intensity difference per window pixel
	DefaultFlowError = 20.0
)

// DefaultFlowWindow is the default optical flow search window
var DefaultFlowWindow = image.Pt(31, 31)

// FlowTracker propagates points from one frame to the next with sparse
// optical flow and discards points that were lost or left the frame
type FlowTracker struct {
	// Window is the search window passed to the FlowSolver
	Window image.Point
	solver FlowSolver
}

// NewFlowTracker returns a FlowTracker with the default window
func NewFlowTracker(solver FlowSolver) *FlowTracker {
	return &FlowTracker{
		Window: DefaultFlowWindow,
		solver: solver,
	}
}

// Track flows points from prev to next.  It returns the ascending indices of
// the input points that were tracked with an error below errThreshold and
// landed strictly inside next, along with their new locations.
func (f *FlowTracker) Track(prev, next gocv.Mat, points []r2.Point,
	errThreshold float64) ([]int, []r2.Point, error) {

	if len(points) == 0 {
		return []int{}, []r2.Point{}, nil
	}

	moved, errs, err := f.solver.Flow(prev, next, points, f.Window)

	if err != nil {
		return nil, nil, errors.Wrap(err, "optical flow failed")
	}

	if len(moved) != len(points) || len(errs) != len(points) {
		return nil, nil, errors.Wrapf(ErrLengthMismatch, "flow returned %d points, %d errors for %d inputs",
			len(moved), len(errs), len(points))
	}

	width, height := float64(next.Cols()), float64(next.Rows())

	indices := make([]int, 0, len(points))
	out := make([]r2.Point, 0, len(points))

	for i, pt := range moved {
		// NaN errors compare false and are dropped
		if !(errs[i] < errThreshold) {
			continue
		}

		if pt.X <= 0 || pt.X >= width || pt.Y <= 0 || pt.Y >= height {
			continue
		}

		indices = append(indices, i)
		out = append(out, pt)
	}

	return indices, out, nil
}
