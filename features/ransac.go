package features

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
	"math"
	"math/rand"
)

const (
	// DefaultRANSACIterations caps the number of random samples drawn
	DefaultRANSACIterations = 2000
	// DefaultRANSACConfidence is the probability of drawing at least one all
	// inlier sample used to stop sampling early
	DefaultRANSACConfidence = 0.995
)

// RANSACHomography is a pure Go HomographySolver.  Each iteration fits a
// homography to four random pairs with the normalized direct linear
// transform and counts the pairs it reprojects within the threshold.  The
// best model is refit on all of its inliers.
type RANSACHomography struct {
	// MaxIterations caps the number of samples
	MaxIterations int
	// Confidence stops sampling once the best model is found with this
	// probability
	Confidence float64
	rnd        *rand.Rand
}

// NewRANSACHomography returns a RANSACHomography using a seeded sampler so
// that results are repeatable
func NewRANSACHomography(seed int64) *RANSACHomography {
	return &RANSACHomography{
		MaxIterations: DefaultRANSACIterations,
		Confidence:    DefaultRANSACConfidence,
		rnd:           rand.New(rand.NewSource(seed)),
	}
}

// InlierMask returns which src to dst pairs fit the best homography found
func (r *RANSACHomography) InlierMask(src, dst []r2.Point, reprojThreshold float64) []bool {

	n := len(src)
	mask := make([]bool, n)

	if n < minHomographyPairs || len(dst) != n {
		return mask
	}

	if r.rnd == nil {
		r.rnd = rand.New(rand.NewSource(1))
	}

	var best *mat.Dense
	bestCount := 0

	iterations := r.MaxIterations
	sample := make([]int, minHomographyPairs)

	for it := 0; it < iterations; it++ {
		r.draw(sample, n)

		h, ok := fitHomography(src, dst, sample)

		if !ok {
			continue
		}

		count := countInliers(h, src, dst, reprojThreshold, nil)

		if count > bestCount {
			best, bestCount = h, count
			iterations = r.adaptIterations(it+1, float64(count)/float64(n))
		}
	}

	if best == nil {
		return mask
	}

	// refit on every inlier of the best sample
	countInliers(best, src, dst, reprojThreshold, mask)

	inliers := make([]int, 0, bestCount)

	for i, ok := range mask {
		if ok {
			inliers = append(inliers, i)
		}
	}

	if refined, ok := fitHomography(src, dst, inliers); ok {
		refinedMask := make([]bool, n)

		if countInliers(refined, src, dst, reprojThreshold, refinedMask) >= bestCount {
			return refinedMask
		}
	}

	return mask
}

// draw fills sample with distinct random indices below n
func (r *RANSACHomography) draw(sample []int, n int) {

	for i := 0; i < len(sample); {
		v := r.rnd.Intn(n)

		if !containsInt(sample[:i], v) {
			sample[i] = v
			i++
		}
	}
}

// containsInt reports whether v is in values
func containsInt(values []int, v int) bool {

	for _, x := range values {
		if x == v {
			return true
		}
	}

	return false
}

// adaptIterations returns the number of samples needed to hit the confidence
// given the current inlier ratio, never more than MaxIterations
func (r *RANSACHomography) adaptIterations(done int, ratio float64) int {

	p := math.Pow(ratio, minHomographyPairs)

	if p >= 1 {
		return done
	}

	if p <= 0 {
		return r.MaxIterations
	}

	need := math.Log(1-r.Confidence) / math.Log(1-p)

	if math.IsNaN(need) || need > float64(r.MaxIterations) {
		return r.MaxIterations
	}

	if int(math.Ceil(need)) < done {
		return done
	}

	return int(math.Ceil(need))
}

// countInliers counts the pairs h maps within threshold pixels, optionally
// recording them in mask
func countInliers(h *mat.Dense, src, dst []r2.Point, threshold float64, mask []bool) int {

	count := 0
	thresh2 := threshold * threshold

	for i := range src {
		p, ok := applyHomography(h, src[i])

		in := false

		if ok {
			d := p.Sub(dst[i])
			in = d.X*d.X+d.Y*d.Y <= thresh2
		}

		if mask != nil {
			mask[i] = in
		}

		if in {
			count++
		}
	}

	return count
}

// applyHomography maps a point through the 3x3 homography
func applyHomography(h *mat.Dense, p r2.Point) (r2.Point, bool) {

	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)

	if w == 0 {
		return r2.Point{}, false
	}

	return r2.Point{
		X: (h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)) / w,
		Y: (h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)) / w,
	}, true
}

// fitHomography solves the normalized direct linear transform with h33 = 1
// for the selected pairs.  Four pairs give an exact 8x8 solve, more pairs a
// least squares solve.
func fitHomography(src, dst []r2.Point, sel []int) (*mat.Dense, bool) {

	if len(sel) < minHomographyPairs {
		return nil, false
	}

	ps := make([]r2.Point, len(sel))
	qs := make([]r2.Point, len(sel))

	for i, idx := range sel {
		ps[i] = src[idx]
		qs[i] = dst[idx]
	}

	ts, ok := normalize(ps)

	if !ok {
		return nil, false
	}

	td, ok := normalize(qs)

	if !ok {
		return nil, false
	}

	a := mat.NewDense(2*len(sel), 8, nil)
	b := mat.NewVecDense(2*len(sel), nil)

	for i := range ps {
		p, _ := applyHomography(ts, ps[i])
		q, _ := applyHomography(td, qs[i])

		r := 2 * i

		a.SetRow(r, []float64{p.X, p.Y, 1, 0, 0, 0, -p.X * q.X, -p.Y * q.X})
		b.SetVec(r, q.X)

		a.SetRow(r+1, []float64{0, 0, 0, p.X, p.Y, 1, -p.X * q.Y, -p.Y * q.Y})
		b.SetVec(r+1, q.Y)
	}

	var h mat.VecDense

	if err := h.SolveVec(a, b); err != nil {
		return nil, false
	}

	for i := 0; i < 8; i++ {
		if math.IsNaN(h.AtVec(i)) || math.IsInf(h.AtVec(i), 0) {
			return nil, false
		}
	}

	hn := mat.NewDense(3, 3, []float64{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	})

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense

	if err := tdInv.Inverse(td); err != nil {
		return nil, false
	}

	var tmp, out mat.Dense
	tmp.Mul(&tdInv, hn)
	out.Mul(&tmp, ts)

	// a collinear sample produces a singular model
	if math.Abs(mat.Det(&out)) < 1e-12 {
		return nil, false
	}

	return &out, true
}

// normalize returns the similarity transform moving the points' centroid to
// the origin with a mean distance of sqrt(2)
func normalize(points []r2.Point) (*mat.Dense, bool) {

	var c r2.Point

	for _, p := range points {
		c = c.Add(p)
	}

	c = c.Mul(1 / float64(len(points)))

	mean := 0.0

	for _, p := range points {
		mean += p.Sub(c).Norm()
	}

	mean /= float64(len(points))

	if mean == 0 {
		return nil, false
	}

	s := math.Sqrt2 / mean

	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	}), true
}
