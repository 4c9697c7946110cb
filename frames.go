package ptztrack

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-ptztrack/cv"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
	"image"
	"os"

	// image decoders
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/jpeg"
	_ "image/png"
)

// FrameSource yields grayscale frames one at a time
type FrameSource interface {
	// Next reads the next frame into dst.  It returns false once the source
	// is exhausted.
	Next(dst *gocv.Mat) (bool, error)
	// FPS is the frame rate of the source, zero when unknown
	FPS() float64
	Close() error
}

// Video is a FrameSource reading a video file through OpenCV
type Video struct {
	capture *gocv.VideoCapture
	// color is the decoded frame before gray conversion
	color gocv.Mat
	fps   float64
}

// OpenVideo opens a video file for reading
func OpenVideo(path string) (*Video, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "error opening video")
	}

	capture, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, errors.Wrapf(err, "error opening video %s", path)
	}

	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("video %s could not be decoded", path)
	}

	return &Video{
		capture: capture,
		color:   gocv.NewMat(),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Next reads the next video frame as grayscale into dst
func (v *Video) Next(dst *gocv.Mat) (bool, error) {

	if ok := v.capture.Read(&v.color); !ok || v.color.Empty() {
		return false, nil
	}

	cv.ToGray(v.color, dst)

	return true, nil
}

// FPS returns the frame rate reported by the container
func (v *Video) FPS() float64 {
	return v.fps
}

// Close releases the decoder
func (v *Video) Close() error {

	return errors.Wrap(multierr.Combine(v.capture.Close(), v.color.Close()), "error closing video")
}

// ImageSequence is a FrameSource reading a list of image files.  JPEG, PNG,
// BMP, TIFF and WebP files are supported.
type ImageSequence struct {
	paths []string
	next  int
}

// OpenImageSequence returns a source over the given image files, read in
// order
func OpenImageSequence(paths []string) (*ImageSequence, error) {

	if len(paths) == 0 {
		return nil, errors.New("image sequence has no frames")
	}

	return &ImageSequence{paths: append([]string(nil), paths...)}, nil
}

// Next decodes the next image as grayscale into dst
func (s *ImageSequence) Next(dst *gocv.Mat) (bool, error) {

	if s.next >= len(s.paths) {
		return false, nil
	}

	path := s.paths[s.next]
	s.next++

	gray, err := decodeGray(path)

	if err != nil {
		return false, err
	}

	mat, err := gocv.ImageGrayToMatGray(gray)

	if err != nil {
		return false, errors.Wrapf(err, "error converting %s", path)
	}

	defer mat.Close()
	mat.CopyTo(dst)

	return true, nil
}

// FPS is unknown for an image sequence
func (s *ImageSequence) FPS() float64 {
	return 0
}

// Close is a no-op, files are only open while decoding
func (s *ImageSequence) Close() error {
	return nil
}

// decodeGray reads an image file and converts it to 8 bit grayscale
func decodeGray(path string) (*image.Gray, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, errors.Wrap(err, "error opening frame")
	}

	defer f.Close()

	img, _, err := image.Decode(f)

	if err != nil {
		return nil, errors.Wrapf(err, "error decoding frame %s", path)
	}

	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}

	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	return gray, nil
}
