package render

import (
	"github.com/golang/geo/r2"
	"github.com/swdee/go-ptztrack/tracker"
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the landmark.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the current position circle should
	// be the same color as that of the landmark.  If set to false then use
	// the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the landmark trail lines on the source image
func Trail(img *gocv.Mat, trail *tracker.Trail, style TrailStyle) {

	for _, id := range trail.IDs() {

		// Get the color for this landmark
		objClr := landmarkColor(id)

		// determine style colors to use
		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		points := trail.GetPoints(id)

		if len(points) == 0 {
			continue
		}

		// draw trail line showing tracking history
		for i := 1; i < len(points); i++ {
			gocv.Line(img, toPt(points[i-1]), toPt(points[i]), lineClr, style.LineThickness)
		}

		// draw circle on current position
		gocv.Circle(img, toPt(points[len(points)-1]), style.CircleRadius, circleClr, -1)
	}
}

// toPt rounds a pixel to the nearest integer image point
func toPt(p r2.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
