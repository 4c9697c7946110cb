package features

import (
	"github.com/pkg/errors"
)

// MergeCommon finds the values present in both ascending index lists and
// returns their positions in a and in b.  It runs in O(len(a)+len(b)).  Both
// lists must be strictly ascending.
func MergeCommon(a, b []int) ([]int, []int, error) {

	if err := checkAscending(a); err != nil {
		return nil, nil, errors.Wrap(err, "first list")
	}

	if err := checkAscending(b); err != nil {
		return nil, nil, errors.Wrap(err, "second list")
	}

	posA := make([]int, 0)
	posB := make([]int, 0)

	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			posA = append(posA, i)
			posB = append(posB, j)
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return posA, posB, nil
}

// checkAscending returns ErrIndexNotAscending when values are unsorted or
// repeated
func checkAscending(values []int) error {

	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return errors.Wrapf(ErrIndexNotAscending, "value %d at position %d follows %d",
				values[i], i, values[i-1])
		}
	}

	return nil
}
