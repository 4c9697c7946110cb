package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"math"
)

// ErrHorizonVisible is returned by Footprint when an image corner looks at
// or above the horizon and so never reaches the ground plane
var ErrHorizonVisible = errors.New("image corner does not intersect the plane in front of the camera")

// parallelEpsilon is the smallest plane-normal component of a viewing ray
// before it is treated as parallel to the plane
const parallelEpsilon = 1e-12

// Ray is a depth independent viewing direction in the tripod (rotation
// center) coordinate frame, expressed as the pan and tilt of a pixel
type Ray struct {
	// Theta is the horizontal angle in degrees
	Theta float64
	// Phi is the vertical angle in degrees
	Phi float64
}

// ImageSize is the frame size used to filter batch projections.  The zero
// value disables filtering.
type ImageSize struct {
	Width  int
	Height int
}

// IsZero reports whether no bounds are set
func (s ImageSize) IsZero() bool {
	return s.Width == 0 || s.Height == 0
}

// Contains reports whether the point lies strictly inside the frame
func (s ImageSize) Contains(pt r2.Point) bool {
	return pt.X > 0 && pt.X < float64(s.Width) && pt.Y > 0 && pt.Y < float64(s.Height)
}

// ProjectPoint projects a 3D world point to the image
func (c *Camera) ProjectPoint(p r3.Vector) (r2.Point, error) {

	homo := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})

	var uvw mat.VecDense
	uvw.MulVec(c.projection, homo)

	w := uvw.AtVec(2)

	if w == 0 {
		return r2.Point{}, errors.Wrapf(ErrPointOnFocalPlane, "point %v", p)
	}

	return r2.Point{X: uvw.AtVec(0) / w, Y: uvw.AtVec(1) / w}, nil
}

// Depth returns the homogeneous depth of a world point, positive for points
// in front of the camera
func (c *Camera) Depth(p r3.Vector) float64 {

	homo := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})

	var uvw mat.VecDense
	uvw.MulVec(c.projection, homo)

	return uvw.AtVec(2)
}

// ProjectPoints projects a list of world points.  When size is set only
// points landing inside the frame are returned, along with the index of
// each returned point in the input list.
func (c *Camera) ProjectPoints(points []r3.Vector, size ImageSize) ([]r2.Point, []int, error) {

	out := make([]r2.Point, 0, len(points))
	index := make([]int, 0, len(points))

	for i, p := range points {
		pt, err := c.ProjectPoint(p)

		if err != nil {
			return nil, nil, errors.Wrapf(err, "projecting point %d", i)
		}

		if !size.IsZero() && !size.Contains(pt) {
			continue
		}

		out = append(out, pt)
		index = append(index, i)
	}

	return out, index, nil
}

// ProjectRay projects a tripod frame ray to the image.  Rays have no depth
// so only the intrinsics and the pan/tilt rotation apply.
func (c *Camera) ProjectRay(ray Ray) r2.Point {
	return projectRay(c.ext.PrincipalPoint, c.ptz, ray)
}

// projectRay is the stateless form of ProjectRay, used by the estimator to
// evaluate candidate states without building a Camera
func projectRay(pp r2.Point, ptz PTZ, ray Ray) r2.Point {

	theta := ray.Theta * math.Pi / 180
	phi := ray.Phi * math.Pi / 180

	tt := math.Tan(theta)
	dir := mat.NewVecDense(3, []float64{tt, -math.Tan(phi) * math.Sqrt(tt*tt+1), 1})

	var kr mat.Dense
	kr.Mul(intrinsic(ptz.FocalLength, pp), panTilt(ptz))

	var pos mat.VecDense
	pos.MulVec(&kr, dir)

	return r2.Point{X: pos.AtVec(0) / pos.AtVec(2), Y: pos.AtVec(1) / pos.AtVec(2)}
}

// ProjectRays projects a list of rays, filtering to the frame when size is
// set.  Returned indices refer to the input list in input order.
func (c *Camera) ProjectRays(rays []Ray, size ImageSize) ([]r2.Point, []int) {

	out := make([]r2.Point, 0, len(rays))
	index := make([]int, 0, len(rays))

	for i, ray := range rays {
		pt := c.ProjectRay(ray)

		if !size.IsZero() && !size.Contains(pt) {
			continue
		}

		out = append(out, pt)
		index = append(index, i)
	}

	return out, index
}

// BackProjectToRay recovers the tripod frame ray of an image point.  It is
// the inverse of ProjectRay for the same camera state.
func (c *Camera) BackProjectToRay(pt r2.Point) Ray {

	dir := c.viewDirection(pt, panTilt(c.ptz))
	x, y, z := dir.X, dir.Y, dir.Z

	theta := math.Atan(x / z)
	phi := math.Atan(-y / math.Sqrt(x*x+z*z))

	return Ray{Theta: theta * 180 / math.Pi, Phi: phi * 180 / math.Pi}
}

// BackProjectToRays recovers rays for a list of image points
func (c *Camera) BackProjectToRays(points []r2.Point) []Ray {

	rays := make([]Ray, len(points))

	for i, pt := range points {
		rays[i] = c.BackProjectToRay(pt)
	}

	return rays
}

// BackProjectToPoint returns the world point seen at pixel pt that lies on
// the plane z = planeZ.  A pixel only defines a ray so the caller must say
// which plane resolves the depth.
func (c *Camera) BackProjectToPoint(pt r2.Point, planeZ float64) (r3.Vector, error) {
	p, _, err := c.backProject(pt, planeZ)
	return p, err
}

// BackProjectToPoints back projects a list of pixels onto the plane z = planeZ
func (c *Camera) BackProjectToPoints(points []r2.Point, planeZ float64) ([]r3.Vector, error) {

	out := make([]r3.Vector, len(points))

	for i, pt := range points {
		p, err := c.BackProjectToPoint(pt, planeZ)

		if err != nil {
			return nil, errors.Wrapf(err, "back projecting point %d", i)
		}

		out[i] = p
	}

	return out, nil
}

// Footprint returns the four image corners back projected onto the plane
// z = planeZ, in the order top-left, top-right, bottom-right, bottom-left.
func (c *Camera) Footprint(size ImageSize, planeZ float64) ([]r3.Vector, error) {

	w, h := float64(size.Width), float64(size.Height)
	corners := []r2.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}

	out := make([]r3.Vector, len(corners))

	for i, pt := range corners {
		p, depth, err := c.backProject(pt, planeZ)

		if err != nil {
			return nil, err
		}

		if depth <= 0 {
			return nil, errors.Wrapf(ErrHorizonVisible, "corner %v", pt)
		}

		out[i] = p
	}

	return out, nil
}

// backProject intersects the viewing ray of pt with the plane z = planeZ and
// also returns the ray scale, which is positive for points in front of the
// camera.  The displacement is included so the result is the exact inverse
// of ProjectPoint.
func (c *Camera) backProject(pt r2.Point, planeZ float64) (r3.Vector, float64, error) {

	rot := rotation(c.ptz, c.ext.BaseRotation)

	// camera coordinates satisfy x = R(X - C) + d, with x = s * K^-1 * p
	a := c.viewDirection(pt, rot)
	b := mulT(rot, c.ext.displacement(c.ptz.FocalLength))

	if math.Abs(a.Z) < parallelEpsilon {
		return r3.Vector{}, 0, errors.Wrapf(ErrRayParallelToPlane, "pixel %v, plane z=%g", pt, planeZ)
	}

	s := (planeZ - c.ext.Center.Z + b.Z) / a.Z

	return c.ext.Center.Add(a.Mul(s)).Sub(b), s, nil
}

// viewDirection returns rot^T * K^-1 * [x y 1], the direction of the pixel's
// viewing ray in the frame rot maps from
func (c *Camera) viewDirection(pt r2.Point, rot *mat.Dense) r3.Vector {

	f := c.ptz.FocalLength
	pp := c.ext.PrincipalPoint

	return mulT(rot, r3.Vector{X: (pt.X - pp.X) / f, Y: (pt.Y - pp.Y) / f, Z: 1})
}

// mulT returns m^T * v for a 3x3 matrix
func mulT(m mat.Matrix, v r3.Vector) r3.Vector {

	var out mat.VecDense
	out.MulVec(m.T(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))

	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
