package cv

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack/features"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"sort"
)

// SIFTExtractor is a features.Extractor backed by OpenCV SIFT
type SIFTExtractor struct {
	sift gocv.SIFT
	// mask is an empty Mat meaning the whole image
	mask gocv.Mat
}

// NewSIFTExtractor returns a SIFTExtractor, which must be closed after use
func NewSIFTExtractor() *SIFTExtractor {
	return &SIFTExtractor{
		sift: gocv.NewSIFT(),
		mask: gocv.NewMat(),
	}
}

// Close frees the OpenCV resources
func (s *SIFTExtractor) Close() error {
	return multierr.Combine(s.sift.Close(), s.mask.Close())
}

// Detect returns the strongest maxCount keypoint locations
func (s *SIFTExtractor) Detect(img gocv.Mat, maxCount int) ([]features.Keypoint, error) {

	if img.Empty() {
		return nil, errors.New("empty image")
	}

	kps := s.sift.Detect(img)
	keep := strongest(kps, maxCount)

	out := make([]features.Keypoint, len(keep))

	for i, k := range keep {
		out[i] = features.Keypoint{
			Point: r2.Point{X: kps[k].X, Y: kps[k].Y},
			Index: i,
		}
	}

	return out, nil
}

// DetectAndCompute returns the strongest maxCount keypoints with their 128
// float descriptors
func (s *SIFTExtractor) DetectAndCompute(img gocv.Mat, maxCount int) ([]features.Keypoint, error) {

	if img.Empty() {
		return nil, errors.New("empty image")
	}

	kps, desc := s.sift.DetectAndCompute(img, s.mask)
	defer desc.Close()

	if len(kps) > 0 && desc.Rows() != len(kps) {
		return nil, errors.Errorf("got %d keypoints and %d descriptors", len(kps), desc.Rows())
	}

	keep := strongest(kps, maxCount)

	out := make([]features.Keypoint, len(keep))

	for i, k := range keep {
		out[i] = features.Keypoint{
			Point:      r2.Point{X: kps[k].X, Y: kps[k].Y},
			Descriptor: matRow(desc, k),
			Index:      i,
		}
	}

	return out, nil
}

// strongest returns the indices of up to maxCount keypoints with the highest
// response, in descending response order.  A maxCount of zero keeps all.
func strongest(kps []gocv.KeyPoint, maxCount int) []int {

	idx := make([]int, len(kps))

	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return kps[idx[a]].Response > kps[idx[b]].Response
	})

	if maxCount > 0 && len(idx) > maxCount {
		idx = idx[:maxCount]
	}

	return idx
}
