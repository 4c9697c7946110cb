package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"math"
	"testing"
)

// groundFacing is a base rotation for a world with z up where the camera at
// pan = tilt = 0 looks along world +Y
func groundFacing() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 0, -1,
		0, 1, 0,
	})
}

// newTestCamera returns an identity camera at the origin with a 1920x1080
// principal point
func newTestCamera(t *testing.T, ptz PTZ) *Camera {
	t.Helper()

	cam, err := New(NewExtrinsics(r2.Point{X: 960, Y: 540}, r3.Vector{}), ptz)
	require.NoError(t, err)

	return cam
}

// newGroundCamera returns a camera 10 units above the ground looking along +Y
// with a non zero displacement
func newGroundCamera(t *testing.T, ptz PTZ, disp [6]float64) *Camera {
	t.Helper()

	ext := Extrinsics{
		PrincipalPoint: r2.Point{X: 960, Y: 540},
		Center:         r3.Vector{X: 0, Y: -30, Z: 10},
		BaseRotation:   groundFacing(),
		Displacement:   disp,
	}

	cam, err := New(ext, ptz)
	require.NoError(t, err)

	return cam
}

func TestProjectPointOnAxis(t *testing.T) {

	cam := newTestCamera(t, PTZ{Pan: 0, Tilt: 0, FocalLength: 1000})

	pt, err := cam.ProjectPoint(r3.Vector{X: 0, Y: 0, Z: 1000})
	require.NoError(t, err)

	assert.InDelta(t, 960, pt.X, 1e-6)
	assert.InDelta(t, 540, pt.Y, 1e-6)
}

func TestProjectPointOnAxisBroadcast(t *testing.T) {

	cam := newTestCamera(t, PTZ{Pan: 0, Tilt: 0, FocalLength: 2000})

	pt, err := cam.ProjectPoint(r3.Vector{X: 0, Y: 0, Z: 1000})
	require.NoError(t, err)

	assert.InDelta(t, 960, pt.X, 1e-6)
	assert.InDelta(t, 540, pt.Y, 1e-6)
}

func TestProjectPointFollowsPan(t *testing.T) {

	cam := newTestCamera(t, PTZ{Pan: 0, Tilt: 0, FocalLength: 2000})
	p := r3.Vector{X: 0, Y: 0, Z: 1000}

	before, err := cam.ProjectPoint(p)
	require.NoError(t, err)

	cam.SetPTZ(PTZ{Pan: 5, Tilt: 0, FocalLength: 2000})

	after, err := cam.ProjectPoint(p)
	require.NoError(t, err)

	// a fresh camera in the new state agrees with the updated one
	fresh, err := newTestCamera(t, PTZ{Pan: 5, Tilt: 0, FocalLength: 2000}).ProjectPoint(p)
	require.NoError(t, err)

	assert.InDelta(t, fresh.X, after.X, 1e-9)
	assert.InDelta(t, fresh.Y, after.Y, 1e-9)

	// panning moves the point horizontally by f*tan(5 degrees)
	assert.InDelta(t, 2000*math.Tan(5*math.Pi/180), math.Abs(after.X-before.X), 1e-6)
	assert.InDelta(t, before.Y, after.Y, 1e-9)
}

func TestDepth(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	assert.InDelta(t, 1000, cam.Depth(r3.Vector{X: 3, Y: 4, Z: 1000}), 1e-9)
	assert.Less(t, cam.Depth(r3.Vector{X: 0, Y: 0, Z: -5}), 0.0)
}

func TestProjectPointOnFocalPlane(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	_, err := cam.ProjectPoint(r3.Vector{X: 1, Y: 0, Z: 0})
	assert.ErrorIs(t, err, ErrPointOnFocalPlane)

	_, _, err = cam.ProjectPoints([]r3.Vector{{X: 0, Y: 0, Z: 10}, {X: 1, Y: 2, Z: 0}}, ImageSize{})
	assert.ErrorIs(t, err, ErrPointOnFocalPlane)
}

func TestNewValidation(t *testing.T) {

	ext := NewExtrinsics(r2.Point{X: 960, Y: 540}, r3.Vector{})

	_, err := New(ext, PTZ{FocalLength: 0})
	assert.ErrorIs(t, err, ErrInvalidFocalLength)

	ext.BaseRotation = mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	_, err = New(ext, PTZ{FocalLength: 1000})
	assert.ErrorIs(t, err, ErrInvalidRotation)

	ext.BaseRotation = mat.NewDense(2, 2, nil)
	_, err = New(ext, PTZ{FocalLength: 1000})
	assert.ErrorIs(t, err, ErrInvalidRotation)

	ext.BaseRotation = nil
	_, err = New(ext, PTZ{FocalLength: 1000})
	assert.ErrorIs(t, err, ErrInvalidRotation)
}

func TestSetPTZ(t *testing.T) {

	cam := newGroundCamera(t, PTZ{FocalLength: 1000}, [6]float64{0.1, 0, 0, 1e-4, 0, 0})

	ptz := PTZ{Pan: 12.5, Tilt: -7.25, FocalLength: 2345.5}

	cam.SetPTZ(ptz)
	first := cam.ProjectionMatrix()

	// state reads back exactly as set
	assert.Equal(t, ptz, cam.PTZ())

	// the cached projection always matches a fresh computation
	assert.True(t, mat.Equal(first, ComputeProjectionMatrix(cam.Extrinsics(), ptz)))

	// setting the same state again changes nothing
	cam.SetPTZ(ptz)
	assert.True(t, mat.Equal(first, cam.ProjectionMatrix()))
	assert.Equal(t, ptz, cam.PTZ())

	cam.SetPTZ(PTZ{Pan: -3, Tilt: 4, FocalLength: 800})
	assert.True(t, mat.Equal(cam.ProjectionMatrix(),
		ComputeProjectionMatrix(cam.Extrinsics(), PTZ{Pan: -3, Tilt: 4, FocalLength: 800})))
	assert.False(t, mat.Equal(first, cam.ProjectionMatrix()))
}

func TestWithPTZ(t *testing.T) {

	cam := newTestCamera(t, PTZ{Pan: 1, Tilt: 2, FocalLength: 1000})
	before := cam.ProjectionMatrix()

	other := cam.WithPTZ(PTZ{Pan: 10, Tilt: 20, FocalLength: 3000})

	assert.Equal(t, PTZ{Pan: 1, Tilt: 2, FocalLength: 1000}, cam.PTZ())
	assert.True(t, mat.Equal(before, cam.ProjectionMatrix()))
	assert.Equal(t, PTZ{Pan: 10, Tilt: 20, FocalLength: 3000}, other.PTZ())
	assert.False(t, mat.Equal(before, other.ProjectionMatrix()))
}

func TestProjectionMatrixIsCopy(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	p := cam.ProjectionMatrix()
	p.Set(0, 0, 0)

	pt, err := cam.ProjectPoint(r3.Vector{X: 1, Y: 0, Z: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1960, pt.X, 1e-9)

	ext := cam.Extrinsics()
	ext.BaseRotation.Set(0, 0, 5)
	assert.Equal(t, 1.0, cam.Extrinsics().BaseRotation.At(0, 0))
}

func TestRayRoundTripAtRest(t *testing.T) {

	cam := newTestCamera(t, PTZ{Pan: 0, Tilt: 0, FocalLength: 1000})

	for theta := -79.0; theta <= 79; theta += 7.9 {
		for phi := -79.0; phi <= 79; phi += 7.9 {
			ray := Ray{Theta: theta, Phi: phi}
			got := cam.BackProjectToRay(cam.ProjectRay(ray))

			assert.InDelta(t, ray.Theta, got.Theta, 1e-6, "ray %v", ray)
			assert.InDelta(t, ray.Phi, got.Phi, 1e-6, "ray %v", ray)
		}
	}
}

func TestRayRoundTripMoved(t *testing.T) {

	// the base rotation and displacement must not affect rays
	cam := newGroundCamera(t, PTZ{Pan: 10, Tilt: 5, FocalLength: 1800},
		[6]float64{0.2, -0.1, 0.3, 1e-4, 1e-4, 1e-4})

	for theta := -40.0; theta <= 40; theta += 5 {
		for phi := -40.0; phi <= 40; phi += 5 {
			ray := Ray{Theta: theta, Phi: phi}
			got := cam.BackProjectToRay(cam.ProjectRay(ray))

			assert.InDelta(t, ray.Theta, got.Theta, 1e-6, "ray %v", ray)
			assert.InDelta(t, ray.Phi, got.Phi, 1e-6, "ray %v", ray)
		}
	}

	pixels := []r2.Point{{X: 100, Y: 200}, {X: 960, Y: 540}, {X: 1800, Y: 1000}}
	rays := cam.BackProjectToRays(pixels)
	require.Len(t, rays, len(pixels))

	got, index := cam.ProjectRays(rays, ImageSize{})
	assert.Equal(t, []int{0, 1, 2}, index)

	for i := range pixels {
		assert.InDelta(t, pixels[i].X, got[i].X, 1e-6)
		assert.InDelta(t, pixels[i].Y, got[i].Y, 1e-6)
	}
}

func TestRayOrientation(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	center := cam.ProjectRay(Ray{})
	assert.InDelta(t, 960, center.X, 1e-9)
	assert.InDelta(t, 540, center.Y, 1e-9)

	// positive phi looks up, positive theta looks right
	assert.Less(t, cam.ProjectRay(Ray{Phi: 10}).Y, 540.0)
	assert.Greater(t, cam.ProjectRay(Ray{Theta: 10}).X, 960.0)
}

func TestProjectPointsFiltering(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	points := []r3.Vector{
		{X: 0, Y: 0, Z: 1000},
		{X: 5000, Y: 0, Z: 1000},
		{X: -960, Y: 0, Z: 1000},
		{X: 100, Y: 100, Z: 1000},
	}

	got, index, err := cam.ProjectPoints(points, ImageSize{Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, index)
	require.Len(t, got, 2)
	assert.InDelta(t, 1060, got[1].X, 1e-9)
	assert.InDelta(t, 640, got[1].Y, 1e-9)

	// no size returns everything
	got, index, err = cam.ProjectPoints(points, ImageSize{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, index)
	assert.Len(t, got, 4)

	got, index, err = cam.ProjectPoints(nil, ImageSize{Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, index)
}

func TestProjectRaysFiltering(t *testing.T) {

	cam := newTestCamera(t, PTZ{FocalLength: 1000})

	rays := []Ray{{Theta: 80}, {Theta: 0, Phi: 0}, {Theta: 10, Phi: 5}, {Phi: -60}}

	got, index := cam.ProjectRays(rays, ImageSize{Width: 1920, Height: 1080})
	assert.Equal(t, []int{1, 2}, index)
	assert.Len(t, got, 2)

	_, index = cam.ProjectRays(rays, ImageSize{})
	assert.Equal(t, []int{0, 1, 2, 3}, index)
}

func TestBackProjectToPointRoundTrip(t *testing.T) {

	disp := [6]float64{0.1, -0.2, 0.05, 1e-4, 2e-4, -1e-4}
	cam := newGroundCamera(t, PTZ{Pan: 12, Tilt: -20, FocalLength: 1500}, disp)

	// pixel to plane to pixel
	for x := 50.0; x < 1920; x += 310 {
		for y := 300.0; y < 1080; y += 170 {
			pixel := r2.Point{X: x, Y: y}

			world, err := cam.BackProjectToPoint(pixel, 0)
			require.NoError(t, err)
			assert.InDelta(t, 0, world.Z, 1e-9)

			back, err := cam.ProjectPoint(world)
			require.NoError(t, err)
			assert.InDelta(t, pixel.X, back.X, 1e-6, "pixel %v", pixel)
			assert.InDelta(t, pixel.Y, back.Y, 1e-6, "pixel %v", pixel)
		}
	}

	// plane to pixel to plane, on a raised plane
	world := []r3.Vector{{X: 0, Y: 5, Z: 1}, {X: -8, Y: 12, Z: 1}, {X: 6, Y: 20, Z: 1}}

	pixels, index, err := cam.ProjectPoints(world, ImageSize{})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, index)

	back, err := cam.BackProjectToPoints(pixels, 1)
	require.NoError(t, err)

	for i := range world {
		assert.InDelta(t, world[i].X, back[i].X, 1e-6)
		assert.InDelta(t, world[i].Y, back[i].Y, 1e-6)
		assert.InDelta(t, world[i].Z, back[i].Z, 1e-9)
	}
}

func TestBackProjectToPointParallel(t *testing.T) {

	cam := newGroundCamera(t, PTZ{FocalLength: 1000}, [6]float64{})

	// the middle row looks exactly at the horizon
	_, err := cam.BackProjectToPoint(r2.Point{X: 100, Y: 540}, 0)
	assert.ErrorIs(t, err, ErrRayParallelToPlane)

	_, err = cam.BackProjectToPoints([]r2.Point{{X: 100, Y: 900}, {X: 100, Y: 540}}, 0)
	assert.ErrorIs(t, err, ErrRayParallelToPlane)
}

func TestFootprint(t *testing.T) {

	cam := newGroundCamera(t, PTZ{Tilt: -25, FocalLength: 1500}, [6]float64{})
	size := ImageSize{Width: 1920, Height: 1080}

	quad, err := cam.Footprint(size, 0)
	require.NoError(t, err)
	require.Len(t, quad, 4)

	for _, p := range quad {
		assert.InDelta(t, 0, p.Z, 1e-9)
	}

	// top of the image reaches further than the bottom
	assert.Greater(t, quad[0].Y, quad[3].Y)
	assert.Greater(t, quad[1].Y, quad[2].Y)

	// left is left
	assert.Less(t, quad[0].X, quad[1].X)
	assert.Less(t, quad[3].X, quad[2].X)

	// looking nearly level the top corners see the sky
	cam.SetPTZ(PTZ{Tilt: -10, FocalLength: 1500})
	_, err = cam.Footprint(size, 0)
	assert.ErrorIs(t, err, ErrHorizonVisible)
}
