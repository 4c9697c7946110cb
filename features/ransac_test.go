package features

import (
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"testing"
)

func TestRANSACHomographySeparatesOutliers(t *testing.T) {

	// mild perspective with rotation and scale
	h := mat.NewDense(3, 3, []float64{
		1.02, 0.05, 12,
		-0.04, 0.98, -7,
		1e-5, -2e-5, 1,
	})

	var src, dst []r2.Point
	outlier := map[int]bool{}

	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			p := r2.Point{X: 40 + float64(x)*170 + float64(y)*7, Y: 30 + float64(y)*160 + float64(x)*3}
			q, ok := applyHomography(h, p)
			require.True(t, ok)

			i := len(src)

			if i%5 == 2 {
				q = q.Add(r2.Point{X: 50, Y: -35})
				outlier[i] = true
			}

			src = append(src, p)
			dst = append(dst, q)
		}
	}

	mask := NewRANSACHomography(42).InlierMask(src, dst, 1.0)
	require.Len(t, mask, len(src))

	for i, in := range mask {
		assert.Equal(t, !outlier[i], in, "pair %d", i)
	}
}

func TestRANSACHomographyTooFew(t *testing.T) {

	src := []r2.Point{{X: 1, Y: 1}, {X: 10, Y: 1}, {X: 1, Y: 10}}

	mask := NewRANSACHomography(1).InlierMask(src, src, 1.0)
	assert.Equal(t, []bool{false, false, false}, mask)

	mask = NewRANSACHomography(1).InlierMask(nil, nil, 1.0)
	assert.Empty(t, mask)
}

func TestFitHomographyExact(t *testing.T) {

	src := []r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	dst := []r2.Point{{X: 10, Y: 20}, {X: 110, Y: 20}, {X: 110, Y: 120}, {X: 10, Y: 120}}

	h, ok := fitHomography(src, dst, []int{0, 1, 2, 3})
	require.True(t, ok)

	p, ok := applyHomography(h, r2.Point{X: 50, Y: 50})
	require.True(t, ok)
	assert.InDelta(t, 60, p.X, 1e-9)
	assert.InDelta(t, 70, p.Y, 1e-9)

	// all samples on one point
	same := []r2.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	_, ok = fitHomography(same, same, []int{0, 1, 2, 3})
	assert.False(t, ok)
}
