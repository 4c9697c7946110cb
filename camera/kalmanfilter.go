package camera

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// stateDim is pan, tilt, focal length and their velocities
	stateDim = 6
	// measureDim is pan, tilt and focal length
	measureDim = 3
	// motionWeight scales the measurement standard deviation into the
	// process noise applied on every prediction
	motionWeight = 0.5
)

// StateMean is the 6 element filter state (pan, tilt, focal, vpan, vtilt,
// vfocal)
type StateMean []float64

// PTZ returns the position part of the state
func (m StateMean) PTZ() PTZ {
	return PTZ{Pan: m[0], Tilt: m[1], FocalLength: m[2]}
}

// StateCov represents the 6x6 state covariance
type StateCov struct {
	*mat.Dense
}

// KalmanFilter is a constant velocity filter that smooths a sequence of PTZ
// measurements
type KalmanFilter struct {
	// std is the measurement standard deviation of pan, tilt and focal
	std       [measureDim]float64
	motionMat *mat.Dense
	updateMat *mat.Dense
}

// NewKalmanFilter returns a KalmanFilter with the given measurement noise
// standard deviations, pan and tilt in degrees, focal length in pixels
func NewKalmanFilter(stdPan, stdTilt, stdFocal float64) *KalmanFilter {

	dt := 1.0

	// identity with the velocity coupling above the diagonal
	motionMat := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < stateDim; i++ {
		motionMat.Set(i, i, 1)
	}

	for i := 0; i < measureDim; i++ {
		motionMat.Set(i, measureDim+i, dt)
	}

	// 3x6 selecting the positions
	updateMat := mat.NewDense(measureDim, stateDim, nil)

	for i := 0; i < measureDim; i++ {
		updateMat.Set(i, i, 1)
	}

	return &KalmanFilter{
		std:       [measureDim]float64{stdPan, stdTilt, stdFocal},
		motionMat: motionMat,
		updateMat: updateMat,
	}
}

// Initiate creates the state mean and covariance from a first measurement
func (kf *KalmanFilter) Initiate(measurement PTZ) (StateMean, *StateCov) {

	mean := StateMean{measurement.Pan, measurement.Tilt, measurement.FocalLength, 0, 0, 0}
	cov := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < measureDim; i++ {
		pos := 2 * kf.std[i]
		vel := 10 * kf.std[i]
		cov.Set(i, i, pos*pos)
		cov.Set(measureDim+i, measureDim+i, vel*vel)
	}

	return mean, &StateCov{cov}
}

// Predict advances the state mean and covariance by one frame in place
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	var next mat.VecDense
	next.MulVec(kf.motionMat, mat.NewVecDense(stateDim, mean))

	for i := 0; i < stateDim; i++ {
		mean[i] = next.AtVec(i)
	}

	motionCov := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < measureDim; i++ {
		s := motionWeight * kf.std[i]
		motionCov.Set(i, i, s*s)
		motionCov.Set(measureDim+i, measureDim+i, s*s)
	}

	var fp, cov mat.Dense
	fp.Mul(kf.motionMat, covariance.Dense)
	cov.Mul(&fp, kf.motionMat.T())
	cov.Add(&cov, motionCov)

	covariance.Dense = &cov
}

// Update corrects the state with a new measurement in place
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement PTZ) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	var chol mat.Cholesky

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// B = P * H^T
	var b mat.Dense
	b.Mul(covariance.Dense, kf.updateMat.T())

	// gain^T = S^-1 * B^T
	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, b.T()); err != nil {
		return errors.Wrap(err, "failed to compute kalman gain")
	}

	innovation := mat.NewVecDense(measureDim, []float64{
		measurement.Pan - projectedMean[0],
		measurement.Tilt - projectedMean[1],
		measurement.FocalLength - projectedMean[2],
	})

	var delta mat.VecDense
	delta.MulVec(gainT.T(), innovation)

	for i := 0; i < stateDim; i++ {
		mean[i] += delta.AtVec(i)
	}

	// P' = P - K * S * K^T
	var ks, kskt, cov mat.Dense
	ks.Mul(gainT.T(), projectedCov)
	kskt.Mul(&ks, &gainT)
	cov.Sub(covariance.Dense, &kskt)

	covariance.Dense = &cov

	return nil
}

// project maps the state into measurement space adding measurement noise
func (kf *KalmanFilter) project(mean StateMean, covariance *StateCov) ([]float64, *mat.SymDense) {

	var pm mat.VecDense
	pm.MulVec(kf.updateMat, mat.NewVecDense(stateDim, mean))

	var hp, hpht mat.Dense
	hp.Mul(kf.updateMat, covariance.Dense)
	hpht.Mul(&hp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(measureDim, nil)

	for i := 0; i < measureDim; i++ {
		for j := i; j < measureDim; j++ {
			// average the off diagonals to stay symmetric under rounding
			projectedCov.SetSym(i, j, (hpht.At(i, j)+hpht.At(j, i))/2)
		}
		projectedCov.SetSym(i, i, projectedCov.At(i, i)+kf.std[i]*kf.std[i])
	}

	return []float64{pm.AtVec(0), pm.AtVec(1), pm.AtVec(2)}, projectedCov
}
