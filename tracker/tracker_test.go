package tracker

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-ptztrack/camera"
	"github.com/swdee/go-ptztrack/config"
	"github.com/swdee/go-ptztrack/features"
	"gocv.io/x/gocv"
	"image"
	"math"
	"testing"
)

// scene is a synthetic world of far away features seen by a rotating and
// zooming camera.  It implements the tracker collaborators so that every
// feature is found exactly where the true camera state projects it.
type scene struct {
	pp         r2.Point
	size       camera.ImageSize
	prev, curr camera.PTZ
	keyRays    []camera.Ray
	cornerRays []camera.Ray
	// hide makes the extractor and corner detector find nothing
	hide bool
	// loseFlow makes every flow point fail
	loseFlow bool
	// driftIndex is the flow input offset by driftOffset, -1 for none
	driftIndex  int
	driftOffset r2.Point
}

func newScene() *scene {

	s := &scene{
		pp:         r2.Point{X: 960, Y: 540},
		size:       camera.ImageSize{Width: 1920, Height: 1080},
		driftIndex: -1,
	}

	for theta := -40.0; theta <= 40; theta += 4 {
		for phi := -20.0; phi <= 20; phi += 4 {
			s.keyRays = append(s.keyRays, camera.Ray{Theta: theta, Phi: phi})
			s.cornerRays = append(s.cornerRays, camera.Ray{Theta: theta + 2, Phi: phi + 2})
		}
	}

	return s
}

// camera returns a camera in the given state
func (s *scene) camera(ptz camera.PTZ) *camera.Camera {

	cam, err := camera.New(camera.NewExtrinsics(s.pp, r3.Vector{}), ptz)

	if err != nil {
		panic(err)
	}

	return cam
}

// descriptor returns a unique descriptor for a scene feature
func descriptor(id int) features.Descriptor {

	d := make(features.Descriptor, 8)

	for j := range d {
		d[j] = float32(math.Sin(float64(id*8+j) * 1.7))
	}

	return d
}

func (s *scene) Detect(img gocv.Mat, maxCount int) ([]features.Keypoint, error) {

	kps, err := s.DetectAndCompute(img, maxCount)

	for i := range kps {
		kps[i].Descriptor = nil
	}

	return kps, err
}

func (s *scene) DetectAndCompute(img gocv.Mat, maxCount int) ([]features.Keypoint, error) {

	if s.hide {
		return nil, nil
	}

	pts, idx := s.camera(s.curr).ProjectRays(s.keyRays, s.size)

	out := make([]features.Keypoint, 0, len(pts))

	for i, pt := range pts {
		if maxCount > 0 && len(out) == maxCount {
			break
		}

		out = append(out, features.Keypoint{Point: pt, Descriptor: descriptor(idx[i]), Index: len(out)})
	}

	return out, nil
}

func (s *scene) Corners(img gocv.Mat, maxCount int, quality, minDistance float64,
	region image.Rectangle) ([]r2.Point, error) {

	if s.hide {
		return nil, nil
	}

	pts, _ := s.camera(s.curr).ProjectRays(s.cornerRays, s.size)

	var out []r2.Point

	for _, pt := range pts {
		if pt.X >= float64(region.Min.X) && pt.X < float64(region.Max.X) &&
			pt.Y >= float64(region.Min.Y) && pt.Y < float64(region.Max.Y) {
			out = append(out, pt)
		}

		if len(out) == maxCount {
			break
		}
	}

	return out, nil
}

func (s *scene) Flow(prev, next gocv.Mat, points []r2.Point,
	window image.Point) ([]r2.Point, []float64, error) {

	from := s.camera(s.prev)
	to := s.camera(s.curr)

	out := make([]r2.Point, len(points))
	errs := make([]float64, len(points))

	for i, p := range points {
		out[i] = to.ProjectRay(from.BackProjectToRay(p))
		errs[i] = 1

		if i == s.driftIndex {
			out[i] = out[i].Add(s.driftOffset)
		}

		if s.loseFlow {
			errs[i] = math.Inf(1)
		}
	}

	return out, errs, nil
}

// step moves the scene to a new true camera state
func (s *scene) step(ptz camera.PTZ) {
	s.prev = s.curr
	s.curr = ptz
}

// truth returns the true camera state of frame k
func truth(k int) camera.PTZ {
	return camera.PTZ{
		Pan:         0.4 * float64(k),
		Tilt:        -0.15 * float64(k),
		FocalLength: 2000 * (1 + 0.005*float64(k)),
	}
}

func testConfig() config.Config {

	cfg := config.Default()
	cfg.Grid.Rows = 3
	cfg.Grid.Cols = 3
	cfg.Features.MaxFeatures = 500
	cfg.Tracking.VerifyInterval = 3
	cfg.Tracking.MinFlowPoints = 10

	return cfg
}

func newTestTracker(t *testing.T, s *scene, cfg config.Config) *Tracker {
	t.Helper()

	deps := Deps{
		Extractor:   s,
		Descriptors: features.NewBruteForceMatcher(),
		Homography:  features.NewRANSACHomography(1),
		Flow:        s,
		Corners:     s,
	}

	tr, err := New(s.camera(s.curr), deps, cfg, nil)
	require.NoError(t, err)

	return tr
}

func assertPTZ(t *testing.T, want, got camera.PTZ, msg string) {
	t.Helper()

	assert.InDelta(t, want.Pan, got.Pan, 1e-3, msg)
	assert.InDelta(t, want.Tilt, got.Tilt, 1e-3, msg)
	assert.InDelta(t, want.FocalLength, got.FocalLength, 0.5, msg)
}

func TestTrackerFollowsCamera(t *testing.T) {

	s := newScene()
	s.curr = truth(0)

	tr := newTestTracker(t, s, testConfig())
	defer tr.Close()

	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8U)
	defer frame.Close()

	res, err := tr.Process(frame)
	require.NoError(t, err)

	assert.True(t, res.Keyframe)
	assert.False(t, res.Lost)
	assert.Greater(t, res.Tracked, 50)
	assert.Equal(t, truth(0), res.PTZ)

	for k := 1; k < 12; k++ {
		s.step(truth(k))

		res, err = tr.Process(frame)
		require.NoError(t, err)

		assert.Equal(t, k, res.Index)
		assert.False(t, res.Lost, "frame %d", k)
		assertPTZ(t, truth(k), res.PTZ, "frame")
		assert.Equal(t, res.PTZ, tr.Camera().PTZ())
		assert.Len(t, res.Points, len(res.IDs))

		if k%3 == 0 && !res.Keyframe {
			assert.True(t, res.Verified, "frame %d", k)
			assert.Greater(t, res.Matched, 0, "frame %d", k)
		}
	}

	// live landmarks have a trail
	ids := tr.Trail().IDs()
	require.NotEmpty(t, ids)
	assert.NotEmpty(t, tr.Trail().GetPoints(ids[0]))
}

func TestTrackerCorrectsDrift(t *testing.T) {

	s := newScene()
	s.curr = truth(0)

	tr := newTestTracker(t, s, testConfig())
	defer tr.Close()

	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8U)
	defer frame.Close()

	res, err := tr.Process(frame)
	require.NoError(t, err)

	// knock a keypoint landmark off course on frame 2, frame 3 is verified
	mid := res.Tracked / 4

	s.step(truth(1))
	_, err = tr.Process(frame)
	require.NoError(t, err)

	s.step(truth(2))
	s.driftIndex = mid
	s.driftOffset = r2.Point{X: 15, Y: 0}

	res, err = tr.Process(frame)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assertPTZ(t, truth(2), res.PTZ, "drifted frame")

	s.step(truth(3))
	s.driftIndex = -1

	res, err = tr.Process(frame)
	require.NoError(t, err)

	require.True(t, res.Verified)
	assert.Equal(t, 1, res.Drifted)
	assertPTZ(t, truth(3), res.PTZ, "verified frame")
}

func TestTrackerRecoversFromLoss(t *testing.T) {

	s := newScene()
	s.curr = truth(0)

	tr := newTestTracker(t, s, testConfig())
	defer tr.Close()

	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8U)
	defer frame.Close()

	_, err := tr.Process(frame)
	require.NoError(t, err)

	s.step(truth(1))
	_, err = tr.Process(frame)
	require.NoError(t, err)

	// everything fails on frame 2
	s.step(truth(2))
	s.hide = true
	s.loseFlow = true

	res, err := tr.Process(frame)
	require.NoError(t, err)

	assert.True(t, res.Lost)
	assert.Equal(t, 0, res.Tracked)
	assertPTZ(t, truth(1), res.PTZ, "lost frame keeps its state")

	// frame 3 relocalises against the keyframe
	s.step(truth(3))
	s.hide = false
	s.loseFlow = false

	res, err = tr.Process(frame)
	require.NoError(t, err)

	assert.False(t, res.Lost)
	assert.True(t, res.Verified)
	assert.Greater(t, res.Matched, 0)
	assertPTZ(t, truth(3), res.PTZ, "relocalised frame")
}

func TestTrackerEmptyFirstFrame(t *testing.T) {

	s := newScene()
	s.curr = truth(0)
	s.hide = true

	tr := newTestTracker(t, s, testConfig())
	defer tr.Close()

	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8U)
	defer frame.Close()

	res, err := tr.Process(frame)
	require.NoError(t, err)
	assert.True(t, res.Lost)
	assert.False(t, res.Keyframe)

	s.hide = false

	res, err = tr.Process(frame)
	require.NoError(t, err)
	assert.False(t, res.Lost)
	assert.True(t, res.Keyframe)
	assert.Equal(t, 1, res.Index)
}

func TestTrackerSmoothingStationary(t *testing.T) {

	s := newScene()
	s.curr = camera.PTZ{Pan: 3, Tilt: -2, FocalLength: 2500}

	cfg := testConfig()
	cfg.Smoothing.Enabled = true

	tr := newTestTracker(t, s, cfg)
	defer tr.Close()

	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8U)
	defer frame.Close()

	for k := 0; k < 5; k++ {
		s.step(s.curr)

		res, err := tr.Process(frame)
		require.NoError(t, err)
		assert.False(t, res.Lost)
		assertPTZ(t, s.curr, res.PTZ, "stationary")
	}
}

func TestNewValidation(t *testing.T) {

	s := newScene()
	s.curr = truth(0)

	_, err := New(s.camera(s.curr), Deps{}, testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Grid.Rows = 0

	_, err = New(s.camera(s.curr), Deps{Extractor: s, Descriptors: features.NewBruteForceMatcher(),
		Homography: features.NewRANSACHomography(1), Flow: s, Corners: s}, cfg, nil)
	assert.Error(t, err)
}

func TestUnionSorted(t *testing.T) {

	a := []int{1, 4, 6}
	ap := []r2.Point{{X: 1}, {X: 4}, {X: 6}}
	b := []int{0, 4, 7}
	bp := []r2.Point{{X: 100}, {X: 400}, {X: 700}}

	ids, pts := unionSorted(a, ap, b, bp)

	assert.Equal(t, []int{0, 1, 4, 6, 7}, ids)
	assert.Equal(t, []r2.Point{{X: 100}, {X: 1}, {X: 4}, {X: 6}, {X: 700}}, pts)

	ids, pts = unionSorted(nil, nil, b, bp)
	assert.Equal(t, b, ids)
	assert.Equal(t, bp, pts)
}
