package tracker

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack/camera"
	"github.com/swdee/go-ptztrack/config"
	"github.com/swdee/go-ptztrack/cv"
	"github.com/swdee/go-ptztrack/features"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"image"
)

// Deps are the numerical collaborators used by the Tracker
type Deps struct {
	Extractor   features.Extractor
	Descriptors features.DescriptorMatcher
	Homography  features.HomographySolver
	Flow        features.FlowSolver
	Corners     features.CornerDetector
}

// validate checks every collaborator is set
func (d Deps) validate() error {

	if d.Extractor == nil || d.Descriptors == nil || d.Homography == nil ||
		d.Flow == nil || d.Corners == nil {
		return errors.New("all tracker dependencies must be set")
	}

	return nil
}

// FrameResult is the outcome of processing one frame
type FrameResult struct {
	// Index is the zero based frame number
	Index int
	// PTZ is the camera state after this frame
	PTZ camera.PTZ
	// Tracked is the number of live landmarks
	Tracked int
	// Matched is the number of keyframe correspondences found, zero when the
	// frame was not checked against the keyframe
	Matched int
	// Verified is set when the frame was matched against the keyframe
	Verified bool
	// Matches are the keyframe correspondences of a verified frame, nil
	// otherwise
	Matches *features.Correspondences
	// Drifted is the number of flow tracked landmarks corrected by matching
	Drifted int
	// RMS is the pixel residual of the PTZ estimate
	RMS float64
	// Lost is set when the camera state could not be estimated
	Lost bool
	// Keyframe is set when a new keyframe was taken from this frame
	Keyframe bool
	// Points are the live landmark pixels, aligned with IDs
	Points []r2.Point
	// IDs are the ascending live landmark ids
	IDs []int
}

// landmark is a keyframe feature, a SIFT keypoint or a grid corner
type landmark struct {
	pixel r2.Point
	ray   camera.Ray
}

// keyframe holds the reference features all later frames are matched to
type keyframe struct {
	// keypoints are the SIFT keypoints, their Index is the landmark id
	keypoints []features.Keypoint
	landmarks []landmark
	// index is the frame the keyframe was taken from
	index int
}

// Tracker estimates the PTZ state of a camera over a sequence of frames
type Tracker struct {
	cam       *camera.Camera
	cfg       config.Config
	deps      Deps
	logger    *zap.Logger
	grid      *features.GridDetector
	matcher   *features.Matcher
	flow      *features.FlowTracker
	estimator *camera.Estimator
	// kf is nil when smoothing is disabled
	kf   *camera.KalmanFilter
	mean camera.StateMean
	cov  *camera.StateCov
	key  *keyframe
	// liveIDs are ascending landmark ids currently tracked, livePts their
	// pixels in the previous frame
	liveIDs []int
	livePts []r2.Point
	// prev and curr are grayscale copies of the last two frames
	prev      gocv.Mat
	curr      gocv.Mat
	hasPrev   bool
	lost      bool
	index     int
	sinceLast int
	trail     *Trail
}

// New returns a Tracker driving cam.  A nil logger disables logging.
func New(cam *camera.Camera, deps Deps, cfg config.Config, logger *zap.Logger) (*Tracker, error) {

	if cam == nil {
		return nil, errors.New("camera is nil")
	}

	if err := deps.validate(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	grid := features.NewGridDetector(deps.Corners, cfg.Grid.Rows, cfg.Grid.Cols)
	grid.PerCell = cfg.Grid.PerCell
	grid.Quality = cfg.Grid.Quality
	grid.MinDistance = cfg.Grid.MinDistance

	flow := features.NewFlowTracker(deps.Flow)
	flow.Window = image.Pt(cfg.Flow.Window, cfg.Flow.Window)

	t := &Tracker{
		cam:       cam,
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		grid:      grid,
		matcher:   features.NewMatcher(deps.Descriptors, deps.Homography),
		flow:      flow,
		estimator: camera.NewEstimator(cfg.Tracking.MinEstimatePoints, cfg.Tracking.OutlierPixels),
		prev:      gocv.NewMat(),
		curr:      gocv.NewMat(),
		trail:     NewTrail(cfg.Tracking.TrailLength),
	}

	if cfg.Smoothing.Enabled {
		t.kf = camera.NewKalmanFilter(cfg.Smoothing.StdPan, cfg.Smoothing.StdTilt, cfg.Smoothing.StdFocal)
	}

	return t, nil
}

// Close releases the retained frames
func (t *Tracker) Close() error {
	return multierr.Combine(t.prev.Close(), t.curr.Close())
}

// Camera returns the camera being tracked
func (t *Tracker) Camera() *camera.Camera {
	return t.cam
}

// Trail returns the landmark pixel history
func (t *Tracker) Trail() *Trail {
	return t.trail
}

// Process tracks one frame and updates the camera PTZ state.  Losing track is
// reported through FrameResult.Lost, errors are only returned for failures of
// the collaborators.
func (t *Tracker) Process(frame gocv.Mat) (*FrameResult, error) {

	if frame.Empty() {
		return nil, errors.Errorf("frame %d is empty", t.index)
	}

	cv.ToGray(frame, &t.curr)

	res := &FrameResult{Index: t.index}

	var err error

	if t.key == nil {
		err = t.startKeyframe(res)
	} else {
		err = t.track(res)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", t.index)
	}

	res.PTZ = t.cam.PTZ()
	res.Tracked = len(t.liveIDs)
	res.IDs = append([]int(nil), t.liveIDs...)
	res.Points = append([]r2.Point(nil), t.livePts...)

	t.trail.Add(t.liveIDs, t.livePts)

	// keep this frame as the flow reference
	t.prev, t.curr = t.curr, t.prev
	t.hasPrev = true
	t.index++

	t.logger.Debug("processed frame",
		zap.Int("frame", res.Index),
		zap.Int("tracked", res.Tracked),
		zap.Int("matched", res.Matched),
		zap.Int("drifted", res.Drifted),
		zap.Bool("verified", res.Verified),
		zap.Float64("pan", res.PTZ.Pan),
		zap.Float64("tilt", res.PTZ.Tilt),
		zap.Float64("focal", res.PTZ.FocalLength),
		zap.Float64("rms", res.RMS),
	)

	return res, nil
}

// startKeyframe initialises tracking on the current frame
func (t *Tracker) startKeyframe(res *FrameResult) error {

	if err := t.newKeyframe(); err != nil {
		return err
	}

	if len(t.liveIDs) == 0 {
		// nothing to track, try again on the next frame
		t.key = nil
		t.markLost(res)
		return nil
	}

	res.Keyframe = true
	t.lost = false

	return nil
}

// track runs flow and, when due, keyframe matching then estimates PTZ
func (t *Tracker) track(res *FrameResult) error {

	// propagate live landmarks
	if !t.lost && t.hasPrev && len(t.liveIDs) > 0 {
		idx, pts, err := t.flow.Track(t.prev, t.curr, t.livePts, t.cfg.Flow.ErrorThreshold)

		if err != nil {
			return err
		}

		ids := make([]int, len(idx))

		for i, k := range idx {
			ids[i] = t.liveIDs[k]
		}

		t.liveIDs, t.livePts = ids, pts
	} else {
		t.liveIDs, t.livePts = nil, nil
	}

	t.sinceLast++

	verify := t.lost || len(t.liveIDs) < t.cfg.Tracking.MinFlowPoints ||
		(t.cfg.Tracking.VerifyInterval > 0 && t.sinceLast >= t.cfg.Tracking.VerifyInterval)

	if verify {
		if err := t.verify(res); err != nil {
			return err
		}
	}

	if len(t.liveIDs) == 0 {
		t.markLost(res)
		return nil
	}

	rays := make([]camera.Ray, len(t.liveIDs))

	for i, id := range t.liveIDs {
		rays[i] = t.key.landmarks[id].ray
	}

	est, err := t.estimator.Estimate(t.cam.Extrinsics(), t.cam.PTZ(), rays, t.livePts)

	if err != nil {
		t.logger.Warn("PTZ estimate failed", zap.Int("frame", t.index), zap.Error(err))
		t.markLost(res)
		return nil
	}

	res.RMS = est.RMS
	t.lost = false
	t.cam.SetPTZ(t.smooth(est.PTZ))

	// refresh the keyframe once too few of its landmarks remain
	if float64(len(t.liveIDs)) < t.cfg.Tracking.KeyframeRefresh*float64(len(t.key.landmarks)) {
		if err := t.newKeyframe(); err != nil {
			return err
		}

		res.Keyframe = len(t.liveIDs) > 0

		if !res.Keyframe {
			t.markLost(res)
		}
	}

	return nil
}

// verify matches the keyframe against the current frame and reconciles the
// matches with the flow tracked landmarks
func (t *Tracker) verify(res *FrameResult) error {

	t.sinceLast = 0
	res.Verified = true

	kps, err := t.deps.Extractor.DetectAndCompute(t.curr, t.cfg.Features.MaxFeatures)

	if err != nil {
		return errors.Wrap(err, "feature extraction failed")
	}

	corr, err := t.matcher.Match(t.key.keypoints, kps, t.cfg.Matcher.Ratio, t.cfg.Matcher.ReprojThreshold)

	if err != nil {
		return errors.Wrap(err, "keyframe matching failed")
	}

	res.Matched = corr.Len()
	res.Matches = corr

	if corr.Len() == 0 {
		return nil
	}

	// keyframe keypoint indices are the landmark ids
	posLive, posMatched, err := features.MergeCommon(t.liveIDs, corr.IndexA)

	if err != nil {
		return err
	}

	for i, pl := range posLive {
		matched := corr.PointsB[posMatched[i]]

		if t.livePts[pl].Sub(matched).Norm() > t.cfg.Tracking.DriftTolerance {
			t.livePts[pl] = matched
			res.Drifted++
		}
	}

	t.liveIDs, t.livePts = unionSorted(t.liveIDs, t.livePts, corr.IndexA, corr.PointsB)

	return nil
}

// newKeyframe takes the current frame as keyframe.  Landmarks are the SIFT
// keypoints followed by the grid corners, each with the ray it is seen along
// at the current PTZ.
func (t *Tracker) newKeyframe() error {

	kps, err := t.deps.Extractor.DetectAndCompute(t.curr, t.cfg.Features.MaxFeatures)

	if err != nil {
		return errors.Wrap(err, "feature extraction failed")
	}

	corners, err := t.grid.Detect(t.curr)

	if err != nil {
		return errors.Wrap(err, "grid corner detection failed")
	}

	key := &keyframe{
		keypoints: make([]features.Keypoint, len(kps)),
		landmarks: make([]landmark, 0, len(kps)+len(corners)),
		index:     t.index,
	}

	for i, kp := range kps {
		kp.Index = i
		key.keypoints[i] = kp
		key.landmarks = append(key.landmarks, landmark{pixel: kp.Point})
	}

	for _, c := range corners {
		key.landmarks = append(key.landmarks, landmark{pixel: c})
	}

	t.liveIDs = make([]int, len(key.landmarks))
	t.livePts = make([]r2.Point, len(key.landmarks))

	for i := range key.landmarks {
		key.landmarks[i].ray = t.cam.BackProjectToRay(key.landmarks[i].pixel)
		t.liveIDs[i] = i
		t.livePts[i] = key.landmarks[i].pixel
	}

	t.key = key
	t.sinceLast = 0

	// landmark ids restart so old trails no longer apply
	t.trail.Reset()

	t.logger.Info("new keyframe",
		zap.Int("frame", t.index),
		zap.Int("keypoints", len(kps)),
		zap.Int("corners", len(corners)),
	)

	return nil
}

// markLost flags tracking loss.  With smoothing the camera coasts on the
// filter prediction, otherwise it keeps its last state.
func (t *Tracker) markLost(res *FrameResult) {

	if !t.lost {
		t.logger.Warn("tracking lost", zap.Int("frame", t.index))
	}

	t.lost = true
	t.liveIDs, t.livePts = nil, nil
	res.Lost = true

	if t.kf != nil && t.mean != nil {
		t.kf.Predict(t.mean, t.cov)
		t.cam.SetPTZ(t.mean.PTZ())
	}
}

// smooth passes an estimate through the Kalman filter when enabled
func (t *Tracker) smooth(ptz camera.PTZ) camera.PTZ {

	if t.kf == nil {
		return ptz
	}

	if t.mean == nil {
		t.mean, t.cov = t.kf.Initiate(ptz)
		return ptz
	}

	t.kf.Predict(t.mean, t.cov)

	if err := t.kf.Update(t.mean, t.cov, ptz); err != nil {
		// a degenerate covariance restarts the filter on the raw estimate
		t.logger.Warn("kalman update failed", zap.Error(err))
		t.mean, t.cov = t.kf.Initiate(ptz)
		return ptz
	}

	return t.mean.PTZ()
}

// unionSorted merges two ascending id lists with their points.  Ids present
// in both keep the point from the first list.
func unionSorted(aIDs []int, aPts []r2.Point, bIDs []int, bPts []r2.Point) ([]int, []r2.Point) {

	ids := make([]int, 0, len(aIDs)+len(bIDs))
	pts := make([]r2.Point, 0, len(aIDs)+len(bIDs))

	i, j := 0, 0

	for i < len(aIDs) || j < len(bIDs) {
		switch {
		case j >= len(bIDs) || (i < len(aIDs) && aIDs[i] < bIDs[j]):
			ids = append(ids, aIDs[i])
			pts = append(pts, aPts[i])
			i++
		case i >= len(aIDs) || bIDs[j] < aIDs[i]:
			ids = append(ids, bIDs[j])
			pts = append(pts, bPts[j])
			j++
		default:
			ids = append(ids, aIDs[i])
			pts = append(pts, aPts[i])
			i++
			j++
		}
	}

	return ids, pts
}
