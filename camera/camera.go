package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"math"
)

var (
	// ErrPointOnFocalPlane is returned when a world point projects with a
	// homogeneous weight of zero, ie: it lies on the camera's focal plane
	ErrPointOnFocalPlane = errors.New("point lies on the camera focal plane")
	// ErrRayParallelToPlane is returned when back projecting a pixel whose
	// viewing ray never meets the requested world plane
	ErrRayParallelToPlane = errors.New("viewing ray is parallel to the world plane")
	// ErrInvalidRotation is returned when the base rotation is not a 3x3
	// orthonormal matrix
	ErrInvalidRotation = errors.New("base rotation must be a 3x3 orthonormal matrix")
	// ErrInvalidFocalLength is returned for a non positive focal length
	ErrInvalidFocalLength = errors.New("focal length must be positive")
)

// orthoTolerance is the maximum deviation of R*R^T from identity accepted
// for a base rotation
const orthoTolerance = 1e-6

// PTZ is the mutable state of a pan-tilt-zoom camera
type PTZ struct {
	// Pan angle in degrees about the vertical axis
	Pan float64
	// Tilt angle in degrees about the lateral axis
	Tilt float64
	// FocalLength in pixels
	FocalLength float64
}

// Extrinsics holds the fixed geometry of a physical camera which does not
// change during a tracking session
type Extrinsics struct {
	// PrincipalPoint is the image projection of the optical axis (u,v)
	PrincipalPoint r2.Point
	// Center is the world position of the fixed optical center
	Center r3.Vector
	// BaseRotation is the world to camera orientation at pan = tilt = 0
	BaseRotation *mat.Dense
	// Displacement are the six coefficients correcting for the offset between
	// the mechanical rotation center and the projection center.  The first
	// three are constant, the last three are scaled by focal length
	Displacement [6]float64
}

// NewExtrinsics returns Extrinsics with an identity base rotation and no
// displacement
func NewExtrinsics(pp r2.Point, center r3.Vector) Extrinsics {
	return Extrinsics{
		PrincipalPoint: pp,
		Center:         center,
		BaseRotation:   identity3(),
	}
}

// Validate checks the base rotation is a 3x3 orthonormal matrix
func (e Extrinsics) Validate() error {

	if e.BaseRotation == nil {
		return errors.Wrap(ErrInvalidRotation, "nil matrix")
	}

	r, c := e.BaseRotation.Dims()

	if r != 3 || c != 3 {
		return errors.Wrapf(ErrInvalidRotation, "got %dx%d", r, c)
	}

	var rrt mat.Dense
	rrt.Mul(e.BaseRotation, e.BaseRotation.T())

	if !mat.EqualApprox(&rrt, identity3(), orthoTolerance) {
		return errors.Wrap(ErrInvalidRotation, "R*R^T is not identity")
	}

	return nil
}

// displacement returns the translation between rotation and projection
// centers for the given focal length
func (e Extrinsics) displacement(focal float64) r3.Vector {
	d := e.Displacement
	return r3.Vector{
		X: d[0] + d[3]*focal,
		Y: d[1] + d[4]*focal,
		Z: d[2] + d[5]*focal,
	}
}

// Camera is a pan-tilt-zoom camera model.  The projection matrix is derived
// from the Extrinsics and PTZ state and is recomputed on every state change.
type Camera struct {
	ext        Extrinsics
	ptz        PTZ
	projection *mat.Dense
}

// New returns a Camera with the given fixed geometry and initial state
func New(ext Extrinsics, ptz PTZ) (*Camera, error) {

	if err := ext.Validate(); err != nil {
		return nil, err
	}

	if ptz.FocalLength <= 0 {
		return nil, errors.Wrapf(ErrInvalidFocalLength, "got %g", ptz.FocalLength)
	}

	// keep our own copy of the rotation so callers can not mutate it
	ext.BaseRotation = mat.DenseCopyOf(ext.BaseRotation)

	c := &Camera{ext: ext}
	c.SetPTZ(ptz)

	return c, nil
}

// SetPTZ replaces the pan, tilt and focal length and recomputes the
// projection matrix
func (c *Camera) SetPTZ(ptz PTZ) {
	c.ptz = ptz
	c.projection = ComputeProjectionMatrix(c.ext, ptz)
}

// PTZ returns the state exactly as last set
func (c *Camera) PTZ() PTZ {
	return c.ptz
}

// WithPTZ returns an independent copy of the camera with a new state
func (c *Camera) WithPTZ(ptz PTZ) *Camera {
	n := &Camera{ext: c.ext}
	n.SetPTZ(ptz)
	return n
}

// Extrinsics returns the fixed camera geometry
func (c *Camera) Extrinsics() Extrinsics {
	ext := c.ext
	ext.BaseRotation = mat.DenseCopyOf(c.ext.BaseRotation)
	return ext
}

// ProjectionMatrix returns a copy of the current 3x4 projection matrix
func (c *Camera) ProjectionMatrix() *mat.Dense {
	return mat.DenseCopyOf(c.projection)
}

// ComputeProjectionMatrix builds the 3x4 projection matrix
//
//	P = K * [I | d] * [R 0; 0 1] * [I -C; 0 1]
//
// where R = tilt * pan * base and d is the focal length dependent
// displacement.
func ComputeProjectionMatrix(ext Extrinsics, ptz PTZ) *mat.Dense {

	k := intrinsic(ptz.FocalLength, ext.PrincipalPoint)
	rot := rotation(ptz, ext.BaseRotation)
	disp := ext.displacement(ptz.FocalLength)

	// [I | d]
	id := mat.NewDense(3, 4, []float64{
		1, 0, 0, disp.X,
		0, 1, 0, disp.Y,
		0, 0, 1, disp.Z,
	})

	// [R 0; 0 1]
	r4 := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r4.Set(i, j, rot.At(i, j))
		}
	}
	r4.Set(3, 3, 1)

	// [I -C; 0 1]
	cc := mat.NewDense(4, 4, []float64{
		1, 0, 0, -ext.Center.X,
		0, 1, 0, -ext.Center.Y,
		0, 0, 1, -ext.Center.Z,
		0, 0, 0, 1,
	})

	var kd, rc, p mat.Dense
	kd.Mul(k, id)
	rc.Mul(r4, cc)
	p.Mul(&kd, &rc)

	return &p
}

// intrinsic returns the 3x3 camera calibration matrix K
func intrinsic(focal float64, pp r2.Point) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		focal, 0, pp.X,
		0, focal, pp.Y,
		0, 0, 1,
	})
}

// panTilt returns tilt * pan, the rotation of the camera head relative to
// its tripod
func panTilt(ptz PTZ) *mat.Dense {

	pan := ptz.Pan * math.Pi / 180
	tilt := ptz.Tilt * math.Pi / 180

	// rotation about the lateral (x) axis
	tiltRot := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(tilt), math.Sin(tilt),
		0, -math.Sin(tilt), math.Cos(tilt),
	})

	// rotation about the vertical (y) axis
	panRot := mat.NewDense(3, 3, []float64{
		math.Cos(pan), 0, -math.Sin(pan),
		0, 1, 0,
		math.Sin(pan), 0, math.Cos(pan),
	})

	var rot mat.Dense
	rot.Mul(tiltRot, panRot)

	return &rot
}

// rotation returns tilt * pan * base.  The order matters, swapping it
// changes the meaning of pan and tilt for a non identity base rotation.
func rotation(ptz PTZ, base mat.Matrix) *mat.Dense {
	var rot mat.Dense
	rot.Mul(panTilt(ptz), base)
	return &rot
}

// identity3 returns a new 3x3 identity matrix
func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
