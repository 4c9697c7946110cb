package features

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"image"
)

const (
	// DefaultPerCell is the default number of corners kept per grid cell
	DefaultPerCell = 5
	// DefaultQuality is the default corner quality level relative to the
	// strongest corner in the cell
	DefaultQuality = 0.2
	// DefaultMinDistance is the default minimum pixel distance between corners
	DefaultMinDistance = 10
)

// GridDetector spreads corner detection evenly over the image by running the
// CornerDetector on each cell of a Rows x Cols grid
type GridDetector struct {
	// Rows is the number of grid rows
	Rows int
	// Cols is the number of grid columns
	Cols int
	// PerCell is the maximum number of corners kept per cell
	PerCell int
	// Quality is the corner quality level passed to the detector
	Quality float64
	// MinDistance is the minimum distance between corners of a cell
	MinDistance float64
	detector    CornerDetector
}

// NewGridDetector returns a GridDetector with default per cell settings
func NewGridDetector(detector CornerDetector, rows, cols int) *GridDetector {
	return &GridDetector{
		Rows:        rows,
		Cols:        cols,
		PerCell:     DefaultPerCell,
		Quality:     DefaultQuality,
		MinDistance: DefaultMinDistance,
		detector:    detector,
	}
}

// Cells returns the grid cell rectangles for an image of the given size, row
// by row.  Cell size is the integer division of the image size by the grid,
// the last row and column absorb the remainder pixels.
func (g *GridDetector) Cells(width, height int) []image.Rectangle {

	if g.Rows <= 0 || g.Cols <= 0 || width <= 0 || height <= 0 {
		return nil
	}

	cellH := height / g.Rows
	cellW := width / g.Cols

	cells := make([]image.Rectangle, 0, g.Rows*g.Cols)

	for r := 0; r < g.Rows; r++ {
		y0 := r * cellH
		y1 := y0 + cellH

		if r == g.Rows-1 {
			y1 = height
		}

		for c := 0; c < g.Cols; c++ {
			x0 := c * cellW
			x1 := x0 + cellW

			if c == g.Cols-1 {
				x1 = width
			}

			cells = append(cells, image.Rect(x0, y0, x1, y1))
		}
	}

	return cells
}

// Detect returns the corners of every cell as one flat list, at most
// Rows*Cols*PerCell points
func (g *GridDetector) Detect(img gocv.Mat) ([]r2.Point, error) {

	cells := g.Cells(img.Cols(), img.Rows())

	out := make([]r2.Point, 0, len(cells)*g.PerCell)

	for _, cell := range cells {
		// a grid finer than the image leaves zero area cells
		if cell.Empty() {
			continue
		}

		corners, err := g.detector.Corners(img, g.PerCell, g.Quality, g.MinDistance, cell)

		if err != nil {
			return nil, errors.Wrapf(err, "detecting corners in cell %v", cell)
		}

		if len(corners) > g.PerCell {
			corners = corners[:g.PerCell]
		}

		out = append(out, corners...)
	}

	return out, nil
}
