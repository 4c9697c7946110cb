package features

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// BruteForceMatcher is a pure Go DescriptorMatcher comparing every query
// descriptor against every train descriptor by euclidean distance
type BruteForceMatcher struct{}

// NewBruteForceMatcher returns a BruteForceMatcher
func NewBruteForceMatcher() *BruteForceMatcher {
	return &BruteForceMatcher{}
}

// KnnMatch returns up to k nearest train descriptors for every query
// descriptor, sorted by ascending distance.  Equal distances keep the lower
// train index first.
func (b *BruteForceMatcher) KnnMatch(query, train []Descriptor, k int) ([][]Match, error) {

	out := make([][]Match, len(query))

	if len(query) == 0 {
		return out, nil
	}

	if k <= 0 {
		return nil, errors.Errorf("k must be positive, got %d", k)
	}

	dim := len(query[0])

	q := toFloat64(query, dim)
	t := toFloat64(train, dim)

	if q == nil || t == nil {
		return nil, errors.Wrapf(ErrDescriptorDimension, "expected dimension %d", dim)
	}

	for i, qd := range q {
		best := make([]Match, 0, k+1)

		for j, td := range t {
			m := Match{QueryIdx: i, TrainIdx: j, Distance: floats.Distance(qd, td, 2)}
			best = insertNearest(best, m, k)
		}

		out[i] = best
	}

	return out, nil
}

// insertNearest inserts m into the ascending list best keeping at most k
// entries
func insertNearest(best []Match, m Match, k int) []Match {

	if len(best) == k && m.Distance >= best[k-1].Distance {
		return best
	}

	pos := len(best)

	for pos > 0 && best[pos-1].Distance > m.Distance {
		pos--
	}

	best = append(best, Match{})
	copy(best[pos+1:], best[pos:])
	best[pos] = m

	if len(best) > k {
		best = best[:k]
	}

	return best
}

// toFloat64 converts descriptors for use with gonum, returning nil if any
// descriptor does not have dimension dim
func toFloat64(desc []Descriptor, dim int) [][]float64 {

	out := make([][]float64, len(desc))

	for i, d := range desc {
		if len(d) != dim {
			return nil
		}

		v := make([]float64, dim)

		for j, x := range d {
			v[j] = float64(x)
		}

		out[i] = v
	}

	return out
}
