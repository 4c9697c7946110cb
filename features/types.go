package features

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"image"
)

var (
	// ErrDescriptorDimension is returned when descriptors being matched do not
	// all have the same length
	ErrDescriptorDimension = errors.New("descriptor dimensions differ")
	// ErrIndexNotAscending is returned by MergeCommon when an index list is not
	// strictly ascending
	ErrIndexNotAscending = errors.New("index list is not strictly ascending")
	// ErrLengthMismatch is returned when a collaborator returns a result list
	// that does not line up with its input
	ErrLengthMismatch = errors.New("collaborator result length mismatch")
)

// Descriptor is a fixed length feature descriptor, 128 floats for SIFT
type Descriptor []float32

// Keypoint is a detected image feature
type Keypoint struct {
	// Point is the subpixel image location
	Point r2.Point
	// Descriptor may be nil when only locations were detected
	Descriptor Descriptor
	// Index is the ordinal of the keypoint in its frame's list
	Index int
}

// Match is a single descriptor match result
type Match struct {
	// QueryIdx is the index of the descriptor in the query list
	QueryIdx int
	// TrainIdx is the index of the descriptor in the train list
	TrainIdx int
	// Distance between the two descriptors
	Distance float64
}

// Correspondences are matched keypoints between frame A and frame B.  The
// four lists are aligned so that PointsA[i] in A corresponds to PointsB[i] in
// B, and IndexA is ascending.
type Correspondences struct {
	PointsA []r2.Point
	IndexA  []int
	PointsB []r2.Point
	IndexB  []int
	// Candidates is the number of A keypoints that received two neighbours
	Candidates int
	// RatioPassed is the number of matches that survived the ratio test and
	// were handed to the homography solver
	RatioPassed int
}

// Len returns the number of correspondences
func (c *Correspondences) Len() int {
	return len(c.IndexA)
}

// Extractor detects keypoints and optionally computes their descriptors
type Extractor interface {
	// Detect returns up to maxCount keypoint locations without descriptors,
	// a maxCount of zero means no limit
	Detect(img gocv.Mat, maxCount int) ([]Keypoint, error)
	// DetectAndCompute returns up to maxCount keypoints with descriptors
	DetectAndCompute(img gocv.Mat, maxCount int) ([]Keypoint, error)
}

// DescriptorMatcher finds the k nearest train descriptors of every query
// descriptor.  The result has one entry per query descriptor in query order,
// each sorted by ascending distance.
type DescriptorMatcher interface {
	KnnMatch(query, train []Descriptor, k int) ([][]Match, error)
}

// HomographySolver robustly fits a homography mapping src onto dst and
// reports which pairs are inliers.  Fewer than four pairs or a failed fit
// gives an all false mask.
type HomographySolver interface {
	InlierMask(src, dst []r2.Point, reprojThreshold float64) []bool
}

// FlowSolver tracks points from prev into next with sparse optical flow.  It
// returns the new location and a tracking error per input point, the error
// is +Inf for points the solver lost.
type FlowSolver interface {
	Flow(prev, next gocv.Mat, points []r2.Point, window image.Point) ([]r2.Point, []float64, error)
}

// CornerDetector finds strong corners inside region of img.  Returned points
// are in full image coordinates.
type CornerDetector interface {
	Corners(img gocv.Mat, maxCount int, quality, minDistance float64, region image.Rectangle) ([]r2.Point, error)
}

// Points returns the locations of a keypoint list
func Points(kps []Keypoint) []r2.Point {

	out := make([]r2.Point, len(kps))

	for i, kp := range kps {
		out[i] = kp.Point
	}

	return out
}

// Descriptors returns the descriptors of a keypoint list
func Descriptors(kps []Keypoint) []Descriptor {

	out := make([]Descriptor, len(kps))

	for i, kp := range kps {
		out[i] = kp.Descriptor
	}

	return out
}
