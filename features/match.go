package features

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

const (
	// DefaultRatio is the nearest neighbour distance ratio a match must beat
	DefaultRatio = 0.7
	// minHomographyPairs is the fewest pairs that define a homography
	minHomographyPairs = 4
)

// Matcher establishes keypoint correspondences between two frames with a
// KNN ratio test followed by homography RANSAC
type Matcher struct {
	descriptors DescriptorMatcher
	homography  HomographySolver
}

// NewMatcher returns a Matcher using the given collaborators
func NewMatcher(dm DescriptorMatcher, hs HomographySolver) *Matcher {
	return &Matcher{
		descriptors: dm,
		homography:  hs,
	}
}

// Match returns the correspondences from keypoints a to keypoints b.  A match
// passes the ratio test when its best distance is below ratio times the
// second best distance.  Survivors are then filtered to the inliers of a
// homography fitted with reprojThreshold pixels tolerance.
func (m *Matcher) Match(a, b []Keypoint, ratio, reprojThreshold float64) (*Correspondences, error) {

	res := &Correspondences{}

	if len(a) == 0 || len(b) == 0 {
		return res, nil
	}

	if err := checkDimensions(a, b); err != nil {
		return nil, err
	}

	knn, err := m.descriptors.KnnMatch(Descriptors(a), Descriptors(b), 2)

	if err != nil {
		return nil, errors.Wrap(err, "knn match failed")
	}

	if len(knn) != len(a) {
		return nil, errors.Wrapf(ErrLengthMismatch, "knn returned %d results for %d queries", len(knn), len(a))
	}

	// ratio test, walking queries in order keeps A ascending
	var pa, pb []r2.Point
	var ia, ib []int

	for i, nn := range knn {
		if len(nn) < 2 {
			continue
		}

		res.Candidates++

		best, second := nn[0], nn[1]

		if best.Distance >= ratio*second.Distance {
			continue
		}

		if best.TrainIdx < 0 || best.TrainIdx >= len(b) {
			return nil, errors.Wrapf(ErrLengthMismatch, "train index %d out of range", best.TrainIdx)
		}

		pa = append(pa, a[i].Point)
		ia = append(ia, a[i].Index)
		pb = append(pb, b[best.TrainIdx].Point)
		ib = append(ib, b[best.TrainIdx].Index)
	}

	res.RatioPassed = len(ia)

	if len(ia) < minHomographyPairs {
		return res, nil
	}

	mask := m.homography.InlierMask(pa, pb, reprojThreshold)

	if len(mask) != len(ia) {
		return nil, errors.Wrapf(ErrLengthMismatch, "homography mask has %d entries for %d pairs", len(mask), len(ia))
	}

	for i, ok := range mask {
		if !ok {
			continue
		}

		res.PointsA = append(res.PointsA, pa[i])
		res.IndexA = append(res.IndexA, ia[i])
		res.PointsB = append(res.PointsB, pb[i])
		res.IndexB = append(res.IndexB, ib[i])
	}

	return res, nil
}

// checkDimensions ensures every descriptor of both lists has the same length
func checkDimensions(a, b []Keypoint) error {

	dim := len(a[0].Descriptor)

	for _, kp := range a {
		if len(kp.Descriptor) != dim {
			return errors.Wrapf(ErrDescriptorDimension, "query sizes %d and %d", dim, len(kp.Descriptor))
		}
	}

	for _, kp := range b {
		if len(kp.Descriptor) != dim {
			return errors.Wrapf(ErrDescriptorDimension, "query size %d, train size %d", dim, len(kp.Descriptor))
		}
	}

	if dim == 0 {
		return errors.Wrap(ErrDescriptorDimension, "keypoints have no descriptors")
	}

	return nil
}
