package cv

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack/features"
	"gocv.io/x/gocv"
)

// BFMatcher is a features.DescriptorMatcher backed by the OpenCV brute force
// matcher with L2 distance
type BFMatcher struct {
	matcher gocv.BFMatcher
}

// NewBFMatcher returns a BFMatcher, which must be closed after use
func NewBFMatcher() *BFMatcher {
	return &BFMatcher{
		matcher: gocv.NewBFMatcher(),
	}
}

// Close frees the OpenCV matcher
func (b *BFMatcher) Close() error {
	return b.matcher.Close()
}

// KnnMatch returns the k nearest train descriptors of each query descriptor
func (b *BFMatcher) KnnMatch(query, train []features.Descriptor, k int) ([][]features.Match, error) {

	out := make([][]features.Match, len(query))

	if len(query) == 0 || len(train) == 0 {
		return out, nil
	}

	if len(query[0]) != len(train[0]) {
		return nil, errors.Wrapf(features.ErrDescriptorDimension, "query %d, train %d",
			len(query[0]), len(train[0]))
	}

	q := DescriptorsToMat(query)
	defer q.Close()

	t := DescriptorsToMat(train)
	defer t.Close()

	for _, nn := range b.matcher.KnnMatch(q, t, k) {
		if len(nn) == 0 {
			continue
		}

		qi := nn[0].QueryIdx

		if qi < 0 || qi >= len(out) {
			return nil, errors.Wrapf(features.ErrLengthMismatch, "query index %d out of range", qi)
		}

		matches := make([]features.Match, len(nn))

		for i, m := range nn {
			matches[i] = features.Match{
				QueryIdx: m.QueryIdx,
				TrainIdx: m.TrainIdx,
				Distance: m.Distance,
			}
		}

		out[qi] = matches
	}

	return out, nil
}
