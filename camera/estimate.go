package camera

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
	"math"
)

var (
	// ErrTooFewPoints is returned when there are not enough ray and pixel
	// pairs to constrain pan, tilt and focal length
	ErrTooFewPoints = errors.New("too few correspondences to estimate PTZ")
	// ErrEstimateDiverged is returned when the solver wanders to a non
	// physical state such as a non positive focal length
	ErrEstimateDiverged = errors.New("PTZ estimate diverged")
)

const (
	// DefaultMinPoints is the default minimum number of ray and pixel pairs
	DefaultMinPoints = 6
	// DefaultOutlierPixels is the default residual above which a pair is
	// dropped before the second solve
	DefaultOutlierPixels = 5.0
	// defaultMaxEvaluations caps the objective evaluations per solve
	defaultMaxEvaluations = 20000
	// focalScale maps focal length into the solver so that a unit step is a
	// one percent change, comparable in pixel effect to a one degree step
	focalScale = 100.0
)

// Estimate is the result of a PTZ estimation
type Estimate struct {
	PTZ PTZ
	// RMS is the root mean square pixel residual over the inliers
	RMS float64
	// Inliers is the number of pairs used in the final solve
	Inliers int
}

// Estimator recovers pan, tilt and focal length from tripod frame rays and
// the pixels they are observed at, by minimizing the squared reprojection
// error with Nelder-Mead
type Estimator struct {
	// MinPoints is the minimum number of pairs required
	MinPoints int
	// OutlierPixels is the residual above which pairs are dropped after the
	// first solve.  Zero disables outlier rejection
	OutlierPixels float64
	// MaxEvaluations limits the objective evaluations of each solve
	MaxEvaluations int
}

// NewEstimator returns an Estimator
func NewEstimator(minPoints int, outlierPixels float64) *Estimator {
	return &Estimator{
		MinPoints:      minPoints,
		OutlierPixels:  outlierPixels,
		MaxEvaluations: defaultMaxEvaluations,
	}
}

// Estimate solves for the PTZ state that best projects rays onto points
// starting from initial
func (e *Estimator) Estimate(ext Extrinsics, initial PTZ, rays []Ray,
	points []r2.Point) (Estimate, error) {

	if len(rays) != len(points) {
		return Estimate{}, errors.Errorf("got %d rays and %d points", len(rays), len(points))
	}

	minPoints := e.MinPoints

	if minPoints < 3 {
		minPoints = 3
	}

	if len(rays) < minPoints {
		return Estimate{}, errors.Wrapf(ErrTooFewPoints, "got %d, need %d", len(rays), minPoints)
	}

	if initial.FocalLength <= 0 {
		return Estimate{}, errors.Wrapf(ErrInvalidFocalLength, "initial %g", initial.FocalLength)
	}

	pp := ext.PrincipalPoint

	ptz, err := e.solve(pp, initial, rays, points)

	if err != nil {
		return Estimate{}, err
	}

	// drop outliers and solve again from the first answer
	if e.OutlierPixels > 0 {
		keepRays := make([]Ray, 0, len(rays))
		keepPoints := make([]r2.Point, 0, len(points))

		for i, ray := range rays {
			if residual(pp, ptz, ray, points[i]) <= e.OutlierPixels {
				keepRays = append(keepRays, ray)
				keepPoints = append(keepPoints, points[i])
			}
		}

		if len(keepRays) < len(rays) && len(keepRays) >= minPoints {
			ptz, err = e.solve(pp, ptz, keepRays, keepPoints)

			if err != nil {
				return Estimate{}, err
			}

			rays, points = keepRays, keepPoints
		}
	}

	return Estimate{
		PTZ:     ptz,
		RMS:     math.Sqrt(sumSquares(pp, ptz, rays, points) / float64(len(rays))),
		Inliers: len(rays),
	}, nil
}

// solve runs a single Nelder-Mead minimization
func (e *Estimator) solve(pp r2.Point, start PTZ, rays []Ray,
	points []r2.Point) (PTZ, error) {

	f0 := start.FocalLength

	toPTZ := func(x []float64) PTZ {
		return PTZ{Pan: x[0], Tilt: x[1], FocalLength: x[2] * f0 / focalScale}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			ptz := toPTZ(x)

			if ptz.FocalLength <= 0 {
				return math.Inf(1)
			}

			return sumSquares(pp, ptz, rays, points)
		},
	}

	maxEval := e.MaxEvaluations

	if maxEval <= 0 {
		maxEval = defaultMaxEvaluations
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEval,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}

	x0 := []float64{start.Pan, start.Tilt, focalScale}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 1})

	// hitting the evaluation limit still leaves the best location found
	if result == nil {
		return PTZ{}, errors.Wrap(err, "minimize")
	}

	ptz := toPTZ(result.X)

	if ptz.FocalLength <= 0 || math.IsNaN(ptz.Pan) || math.IsNaN(ptz.Tilt) ||
		math.IsInf(result.F, 0) {
		return PTZ{}, errors.Wrapf(ErrEstimateDiverged, "status %v", result.Status)
	}

	return ptz, nil
}

// residual returns the pixel distance between a projected ray and its
// observation
func residual(pp r2.Point, ptz PTZ, ray Ray, pt r2.Point) float64 {
	return projectRay(pp, ptz, ray).Sub(pt).Norm()
}

// sumSquares returns the summed squared residual of all pairs
func sumSquares(pp r2.Point, ptz PTZ, rays []Ray, points []r2.Point) float64 {

	var sum float64

	for i, ray := range rays {
		d := projectRay(pp, ptz, ray).Sub(points[i])
		sum += d.X*d.X + d.Y*d.Y
	}

	return sum
}
