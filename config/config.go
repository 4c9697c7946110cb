package config

import (
	"encoding/json"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack/camera"
	"gonum.org/v1/gonum/mat"
	"os"
	"path/filepath"
)

// maxFileSize caps the size of a configuration file
const maxFileSize = 1 * 1024 * 1024

// Config holds every tuning value of a tracking session
type Config struct {
	Camera    CameraConfig    `json:"camera"`
	Grid      GridConfig      `json:"grid"`
	Features  FeaturesConfig  `json:"features"`
	Matcher   MatcherConfig   `json:"matcher"`
	Flow      FlowConfig      `json:"flow"`
	Tracking  TrackingConfig  `json:"tracking"`
	Smoothing SmoothingConfig `json:"smoothing"`
	// PlaneZ is the height of the ground plane used for back projection
	PlaneZ float64 `json:"plane_z"`
}

// CameraConfig is the fixed camera geometry and the starting PTZ state
type CameraConfig struct {
	// PrincipalPoint is (u, v) in pixels
	PrincipalPoint [2]float64 `json:"principal_point"`
	// Center is the world position of the optical center
	Center [3]float64 `json:"center"`
	// BaseRotation is the 3x3 world to camera rotation in row major order
	BaseRotation [9]float64 `json:"base_rotation"`
	// Displacement are the six rotation center offset coefficients
	Displacement [6]float64 `json:"displacement"`
	Initial      PTZConfig  `json:"initial"`
}

// PTZConfig is a pan, tilt and focal length triple
type PTZConfig struct {
	Pan         float64 `json:"pan"`
	Tilt        float64 `json:"tilt"`
	FocalLength float64 `json:"focal_length"`
}

// GridConfig configures grid corner detection
type GridConfig struct {
	Rows        int     `json:"rows"`
	Cols        int     `json:"cols"`
	PerCell     int     `json:"per_cell"`
	Quality     float64 `json:"quality"`
	MinDistance float64 `json:"min_distance"`
}

// FeaturesConfig configures keypoint extraction
type FeaturesConfig struct {
	// MaxFeatures caps the SIFT keypoints per frame
	MaxFeatures int `json:"max_features"`
}

// MatcherConfig configures correspondence matching
type MatcherConfig struct {
	Ratio           float64 `json:"ratio"`
	ReprojThreshold float64 `json:"reproj_threshold"`
}

// FlowConfig configures optical flow tracking
type FlowConfig struct {
	ErrorThreshold float64 `json:"error_threshold"`
	// Window is the square search window size in pixels
	Window   int `json:"window"`
	MaxLevel int `json:"max_level"`
}

// TrackingConfig configures the tracking session control flow
type TrackingConfig struct {
	// MinFlowPoints forces keyframe matching when fewer landmarks are live
	MinFlowPoints int `json:"min_flow_points"`
	// VerifyInterval is the number of frames between keyframe checks
	VerifyInterval int `json:"verify_interval"`
	// DriftTolerance is the pixel disagreement between flow and matching
	// above which the matched location wins
	DriftTolerance float64 `json:"drift_tolerance"`
	// KeyframeRefresh is the live fraction of the initial landmarks below
	// which a new keyframe is taken
	KeyframeRefresh   float64 `json:"keyframe_refresh"`
	MinEstimatePoints int     `json:"min_estimate_points"`
	OutlierPixels     float64 `json:"outlier_pixels"`
	// TrailLength is the number of past positions kept per landmark
	TrailLength int `json:"trail_length"`
}

// SmoothingConfig configures the PTZ Kalman filter
type SmoothingConfig struct {
	Enabled  bool    `json:"enabled"`
	StdPan   float64 `json:"std_pan"`
	StdTilt  float64 `json:"std_tilt"`
	StdFocal float64 `json:"std_focal"`
}

// Default returns the configuration for a 1920x1080 broadcast camera
func Default() Config {
	return Config{
		Camera: CameraConfig{
			PrincipalPoint: [2]float64{960, 540},
			BaseRotation:   [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Initial:        PTZConfig{Pan: 0, Tilt: 0, FocalLength: 2000},
		},
		Grid: GridConfig{
			Rows:        5,
			Cols:        5,
			PerCell:     5,
			Quality:     0.2,
			MinDistance: 10,
		},
		Features: FeaturesConfig{
			MaxFeatures: 50,
		},
		Matcher: MatcherConfig{
			Ratio:           0.7,
			ReprojThreshold: 1.0,
		},
		Flow: FlowConfig{
			ErrorThreshold: 20,
			Window:         31,
			MaxLevel:       3,
		},
		Tracking: TrackingConfig{
			MinFlowPoints:     30,
			VerifyInterval:    10,
			DriftTolerance:    3,
			KeyframeRefresh:   0.5,
			MinEstimatePoints: 6,
			OutlierPixels:     5,
			TrailLength:       30,
		},
		Smoothing: SmoothingConfig{
			Enabled:  false,
			StdPan:   0.05,
			StdTilt:  0.05,
			StdFocal: 5,
		},
	}
}

// Load reads a JSON configuration file.  The file must have a .json
// extension and be no larger than 1 MiB.  Keys missing from the file keep
// their Default value.
func Load(path string) (Config, error) {

	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)

	if err != nil {
		return Config{}, errors.Wrap(err, "failed to stat config file")
	}

	if info.Size() > maxFileSize {
		return Config{}, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse decodes JSON over the defaults and validates the result
func Parse(data []byte) (Config, error) {

	cfg := Default()

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config JSON")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// Validate checks the configuration values are usable
func (c Config) Validate() error {

	if c.Camera.Initial.FocalLength <= 0 {
		return errors.Errorf("camera.initial.focal_length must be positive, got %g", c.Camera.Initial.FocalLength)
	}

	if err := c.Camera.Extrinsics().Validate(); err != nil {
		return errors.Wrap(err, "camera.base_rotation")
	}

	if c.Grid.Rows <= 0 || c.Grid.Cols <= 0 {
		return errors.Errorf("grid must have positive rows and cols, got %dx%d", c.Grid.Rows, c.Grid.Cols)
	}

	if c.Grid.PerCell <= 0 {
		return errors.Errorf("grid.per_cell must be positive, got %d", c.Grid.PerCell)
	}

	if c.Grid.Quality <= 0 || c.Grid.Quality > 1 {
		return errors.Errorf("grid.quality must be in (0, 1], got %g", c.Grid.Quality)
	}

	if c.Grid.MinDistance < 0 {
		return errors.Errorf("grid.min_distance must be non-negative, got %g", c.Grid.MinDistance)
	}

	if c.Features.MaxFeatures < 0 {
		return errors.Errorf("features.max_features must be non-negative, got %d", c.Features.MaxFeatures)
	}

	if c.Matcher.Ratio <= 0 || c.Matcher.Ratio > 1 {
		return errors.Errorf("matcher.ratio must be in (0, 1], got %g", c.Matcher.Ratio)
	}

	if c.Matcher.ReprojThreshold <= 0 {
		return errors.Errorf("matcher.reproj_threshold must be positive, got %g", c.Matcher.ReprojThreshold)
	}

	if c.Flow.ErrorThreshold <= 0 {
		return errors.Errorf("flow.error_threshold must be positive, got %g", c.Flow.ErrorThreshold)
	}

	if c.Flow.Window < 3 || c.Flow.Window%2 == 0 {
		return errors.Errorf("flow.window must be odd and at least 3, got %d", c.Flow.Window)
	}

	if c.Flow.MaxLevel < 0 {
		return errors.Errorf("flow.max_level must be non-negative, got %d", c.Flow.MaxLevel)
	}

	t := c.Tracking

	if t.MinFlowPoints < 0 {
		return errors.Errorf("tracking.min_flow_points must be non-negative, got %d", t.MinFlowPoints)
	}

	if t.VerifyInterval < 0 {
		return errors.Errorf("tracking.verify_interval must be non-negative, got %d", t.VerifyInterval)
	}

	if t.DriftTolerance <= 0 {
		return errors.Errorf("tracking.drift_tolerance must be positive, got %g", t.DriftTolerance)
	}

	if t.KeyframeRefresh < 0 || t.KeyframeRefresh > 1 {
		return errors.Errorf("tracking.keyframe_refresh must be in [0, 1], got %g", t.KeyframeRefresh)
	}

	if t.MinEstimatePoints < 3 {
		return errors.Errorf("tracking.min_estimate_points must be at least 3, got %d", t.MinEstimatePoints)
	}

	if t.OutlierPixels < 0 {
		return errors.Errorf("tracking.outlier_pixels must be non-negative, got %g", t.OutlierPixels)
	}

	if t.TrailLength < 0 {
		return errors.Errorf("tracking.trail_length must be non-negative, got %d", t.TrailLength)
	}

	if s := c.Smoothing; s.Enabled && (s.StdPan <= 0 || s.StdTilt <= 0 || s.StdFocal <= 0) {
		return errors.New("smoothing standard deviations must be positive")
	}

	return nil
}

// Extrinsics returns the camera geometry
func (c CameraConfig) Extrinsics() camera.Extrinsics {
	return camera.Extrinsics{
		PrincipalPoint: r2.Point{X: c.PrincipalPoint[0], Y: c.PrincipalPoint[1]},
		Center:         r3.Vector{X: c.Center[0], Y: c.Center[1], Z: c.Center[2]},
		BaseRotation:   mat.NewDense(3, 3, append([]float64(nil), c.BaseRotation[:]...)),
		Displacement:   c.Displacement,
	}
}

// PTZ returns the initial camera state
func (c CameraConfig) PTZ() camera.PTZ {
	return camera.PTZ{
		Pan:         c.Initial.Pan,
		Tilt:        c.Initial.Tilt,
		FocalLength: c.Initial.FocalLength,
	}
}
