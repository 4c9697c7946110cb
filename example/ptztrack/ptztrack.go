package main

import (
	"encoding/csv"
	"fmt"
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack"
	"github.com/swdee/go-ptztrack/camera"
	"github.com/swdee/go-ptztrack/config"
	"github.com/swdee/go-ptztrack/cv"
	"github.com/swdee/go-ptztrack/features"
	"github.com/swdee/go-ptztrack/field"
	"github.com/swdee/go-ptztrack/render"
	"github.com/swdee/go-ptztrack/tracker"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"os"
	"strconv"
	"time"
)

// defaultFPS is used for the overlay video when the source has no frame rate
const defaultFPS = 25.0

// Demo runs the PTZ tracker over a frame source
type Demo struct {
	logger *zap.Logger
	cfg    config.Config
	src    ptztrack.FrameSource
	track  *tracker.Tracker
	// closers release the OpenCV backed collaborators
	closers []func() error
	// overlay is the output video path, empty for none
	overlay string
	writer  *gocv.VideoWriter
	// court is set when coverage of a known court is reported
	court *field.Court
	// csv receives one line per frame when set
	csv     *csv.Writer
	csvFile *os.File
}

func main() {

	app := &cli.App{
		Name:  "ptztrack",
		Usage: "estimate the pan, tilt and focal length of a PTZ camera from its video",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "video", Usage: "video file to track"},
			&cli.StringSliceFlag{Name: "frames", Usage: "image files to track, in order"},
			&cli.StringFlag{Name: "list", Usage: "text file listing the image files to track"},
			&cli.StringFlag{Name: "config", Usage: "JSON tuning configuration file"},
			&cli.Float64Flag{Name: "pan", Usage: "initial pan in degrees"},
			&cli.Float64Flag{Name: "tilt", Usage: "initial tilt in degrees"},
			&cli.Float64Flag{Name: "focal", Usage: "initial focal length in pixels"},
			&cli.StringFlag{Name: "overlay", Usage: "write an overlay video to this file, eg: out.avi"},
			&cli.StringFlag{Name: "output", Usage: "write per frame PTZ estimates to this CSV file"},
			&cli.StringFlag{Name: "court", Usage: "report visible coverage of a court: nba or fiba"},
			&cli.BoolFlag{Name: "pure", Usage: "use the pure Go matcher and RANSAC instead of OpenCV"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run is the CLI action
func run(c *cli.Context) error {

	logger, err := newLogger(c.Bool("debug"))

	if err != nil {
		return errors.Wrap(err, "error creating logger")
	}

	defer logger.Sync()

	d, err := NewDemo(c, logger)

	if err != nil {
		return err
	}

	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("error closing", zap.Error(err))
		}
	}()

	return d.Run()
}

// newLogger returns a development logger with debug output or a production
// logger
func newLogger(debug bool) (*zap.Logger, error) {

	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

// NewDemo builds the frame source, collaborators and tracker from the CLI
// flags
func NewDemo(c *cli.Context, logger *zap.Logger) (*Demo, error) {

	d := &Demo{
		logger:  logger,
		overlay: c.String("overlay"),
	}

	var err error

	d.cfg, err = loadConfig(c)

	if err != nil {
		return nil, err
	}

	if name := c.String("court"); name != "" {
		court, err := field.CourtByName(name)

		if err != nil {
			return nil, err
		}

		d.court = &court
	}

	d.src, err = openSource(c)

	if err != nil {
		return nil, err
	}

	cam, err := camera.New(d.cfg.Camera.Extrinsics(), d.cfg.Camera.PTZ())

	if err != nil {
		d.Close()
		return nil, errors.Wrap(err, "error creating camera")
	}

	deps := d.newDeps(c.Bool("pure"))

	d.track, err = tracker.New(cam, deps, d.cfg, logger)

	if err != nil {
		d.Close()
		return nil, errors.Wrap(err, "error creating tracker")
	}

	if path := c.String("output"); path != "" {
		d.csvFile, err = os.Create(path)

		if err != nil {
			d.Close()
			return nil, errors.Wrap(err, "error creating output file")
		}

		d.csv = csv.NewWriter(d.csvFile)
		d.csv.Write([]string{"frame", "pan", "tilt", "focal_length", "tracked", "rms", "lost"})
	}

	return d, nil
}

// loadConfig reads the configuration file, if given, and applies the initial
// PTZ flags over it
func loadConfig(c *cli.Context) (config.Config, error) {

	cfg := config.Default()

	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)

		if err != nil {
			return config.Config{}, err
		}
	}

	if c.IsSet("pan") {
		cfg.Camera.Initial.Pan = c.Float64("pan")
	}

	if c.IsSet("tilt") {
		cfg.Camera.Initial.Tilt = c.Float64("tilt")
	}

	if c.IsSet("focal") {
		cfg.Camera.Initial.FocalLength = c.Float64("focal")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// openSource returns the frame source selected by the flags.  Exactly one of
// --video, --frames and --list must be given.
func openSource(c *cli.Context) (ptztrack.FrameSource, error) {

	set := 0

	for _, name := range []string{"video", "frames", "list"} {
		if c.IsSet(name) {
			set++
		}
	}

	if set != 1 {
		return nil, errors.New("exactly one of --video, --frames or --list is required")
	}

	switch {
	case c.IsSet("video"):
		return ptztrack.OpenVideo(c.String("video"))

	case c.IsSet("frames"):
		return ptztrack.OpenImageSequence(c.StringSlice("frames"))

	default:
		paths, err := ptztrack.LoadFrameList(c.String("list"))

		if err != nil {
			return nil, err
		}

		return ptztrack.OpenImageSequence(paths)
	}
}

// newDeps returns the tracker collaborators.  The OpenCV SIFT, optical flow
// and corner detector are always used, matching and RANSAC can run in pure
// Go.
func (d *Demo) newDeps(pure bool) tracker.Deps {

	sift := cv.NewSIFTExtractor()
	lk := cv.NewLucasKanade(d.cfg.Flow.MaxLevel)
	d.closers = append(d.closers, sift.Close, lk.Close)

	deps := tracker.Deps{
		Extractor: sift,
		Flow:      lk,
		Corners:   cv.NewShiTomasi(),
	}

	if pure {
		deps.Descriptors = features.NewBruteForceMatcher()
		deps.Homography = features.NewRANSACHomography(time.Now().UnixNano())
		return deps
	}

	bf := cv.NewBFMatcher()
	d.closers = append(d.closers, bf.Close)

	deps.Descriptors = bf
	deps.Homography = cv.NewHomography()

	return deps
}

// Run tracks every frame of the source
func (d *Demo) Run() error {

	frame := gocv.NewMat()
	defer frame.Close()

	start := time.Now()
	frames, lost := 0, 0
	coverage := 0.0

	for {
		ok, err := d.src.Next(&frame)

		if err != nil {
			return errors.Wrapf(err, "error reading frame %d", frames)
		}

		if !ok {
			break
		}

		res, err := d.track.Process(frame)

		if err != nil {
			return err
		}

		frames++

		if res.Lost {
			lost++
		}

		var cov *field.Coverage

		if d.court != nil {
			cov = d.courtCoverage(frame, res)

			if cov != nil {
				coverage += cov.Fraction
			}
		}

		if err := d.writeOverlay(frame, res, cov); err != nil {
			return err
		}

		d.writeCSV(res)
	}

	if d.csv != nil {
		d.csv.Flush()

		if err := d.csv.Error(); err != nil {
			return errors.Wrap(err, "error writing output file")
		}
	}

	fields := []zap.Field{
		zap.Int("frames", frames),
		zap.Int("lost", lost),
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("ptz", d.track.Camera().PTZ()),
	}

	if d.court != nil && frames > 0 {
		fields = append(fields, zap.String("court", d.court.Name),
			zap.Float64("mean_coverage", coverage/float64(frames)))
	}

	d.logger.Info("tracking complete", fields...)

	return nil
}

// courtCoverage returns the part of the court inside the camera view, nil when
// the view has no bounded ground footprint
func (d *Demo) courtCoverage(frame gocv.Mat, res *tracker.FrameResult) *field.Coverage {

	size := camera.ImageSize{Width: frame.Cols(), Height: frame.Rows()}

	footprint, err := d.track.Camera().Footprint(size, d.cfg.PlaneZ)

	if err != nil {
		d.logger.Debug("no ground footprint", zap.Int("frame", res.Index), zap.Error(err))
		return nil
	}

	cov, err := field.CourtCoverage(footprint, *d.court)

	if err != nil {
		d.logger.Debug("court coverage failed", zap.Int("frame", res.Index), zap.Error(err))
		return nil
	}

	d.logger.Debug("court coverage",
		zap.Int("frame", res.Index),
		zap.Float64("area", cov.Area),
		zap.Float64("fraction", cov.Fraction),
	)

	return &cov
}

// writeOverlay draws the tracking state on the frame and appends it to the
// overlay video.  cov is the visible court, nil for none.
func (d *Demo) writeOverlay(frame gocv.Mat, res *tracker.FrameResult, cov *field.Coverage) error {

	if d.overlay == "" {
		return nil
	}

	img := gocv.NewMat()
	defer img.Close()

	gocv.CvtColor(frame, &img, gocv.ColorGrayToBGR)

	if d.writer == nil {
		fps := d.src.FPS()

		if fps <= 0 {
			fps = defaultFPS
		}

		var err error
		d.writer, err = gocv.VideoWriterFile(d.overlay, "MJPG", fps, img.Cols(), img.Rows(), true)

		if err != nil {
			return errors.Wrap(err, "error opening overlay video")
		}
	}

	cam := d.track.Camera()

	if d.court != nil {
		render.CourtLines(&img, cam, d.court.Lines(d.cfg.PlaneZ, 0.5), render.Green, 2)
	}

	if cov != nil {
		render.GroundPolygons(&img, cam, cov.Visible, d.cfg.PlaneZ, 0.5, render.Cyan, 1)
	}

	if res.Verified {
		render.Correspondences(&img, res.Matches, 1)
	}

	render.Trail(&img, d.track.Trail(), render.DefaultTrailStyle())
	render.Landmarks(&img, res.IDs, res.Points, 2)
	render.PTZInfo(&img, res, render.DefaultHUDStyle())

	return errors.Wrap(d.writer.Write(img), "error writing overlay frame")
}

// writeCSV records the frame estimate
func (d *Demo) writeCSV(res *tracker.FrameResult) {

	if d.csv == nil {
		return
	}

	d.csv.Write([]string{
		strconv.Itoa(res.Index),
		strconv.FormatFloat(res.PTZ.Pan, 'f', 6, 64),
		strconv.FormatFloat(res.PTZ.Tilt, 'f', 6, 64),
		strconv.FormatFloat(res.PTZ.FocalLength, 'f', 3, 64),
		strconv.Itoa(res.Tracked),
		strconv.FormatFloat(res.RMS, 'f', 3, 64),
		strconv.FormatBool(res.Lost),
	})
}

// Close releases the source, tracker, collaborators and writers
func (d *Demo) Close() error {

	var err error

	if d.src != nil {
		err = multierr.Append(err, d.src.Close())
	}

	if d.track != nil {
		err = multierr.Append(err, d.track.Close())
	}

	for _, closer := range d.closers {
		err = multierr.Append(err, closer())
	}

	if d.writer != nil {
		err = multierr.Append(err, d.writer.Close())
	}

	if d.csvFile != nil {
		err = multierr.Append(err, d.csvFile.Close())
	}

	return err
}
