package render

import (
	"fmt"
	"github.com/swdee/go-ptztrack/tracker"
	"gocv.io/x/gocv"
	"image"
)

// Placement is the horizontal position of the HUD panel
type Placement int

const (
	Left   Placement = 1
	Center Placement = 2
	Right  Placement = 3
)

// HUDStyle defines the text and panel settings of the PTZ HUD
type HUDStyle struct {
	Face      gocv.HersheyFont
	Scale     float64
	Thickness int
	LineType  gocv.LineType
	// Pad is the space in pixels around each line of text
	Pad int
	// Placement puts the panel at the top left, center or right of the image
	Placement Placement
}

// DefaultHUDStyle returns default HUD settings
func DefaultHUDStyle() HUDStyle {
	return HUDStyle{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       4,
		Placement: Left,
	}
}

// HUDLines returns the text lines describing a frame result
func HUDLines(res *tracker.FrameResult) []string {

	state := "tracking"

	switch {
	case res.Lost:
		state = "LOST"
	case res.Keyframe:
		state = "keyframe"
	case res.Verified:
		state = "verified"
	}

	return []string{
		fmt.Sprintf("frame %d %s", res.Index, state),
		fmt.Sprintf("pan %.3f tilt %.3f", res.PTZ.Pan, res.PTZ.Tilt),
		fmt.Sprintf("focal %.1f", res.PTZ.FocalLength),
		fmt.Sprintf("tracked %d matched %d drifted %d", res.Tracked, res.Matched, res.Drifted),
		fmt.Sprintf("rms %.2fpx", res.RMS),
	}
}

// PTZInfo renders the frame result as white text on a panel at the top of
// the image.  The panel is red while tracking is lost.  It returns the panel
// rectangle.
func PTZInfo(img *gocv.Mat, res *tracker.FrameResult, style HUDStyle) image.Rectangle {

	lines := HUDLines(res)

	// size the panel to the widest line
	width, lineHeight := 0, 0

	for _, text := range lines {
		size := gocv.GetTextSize(text, style.Face, style.Scale, style.Thickness)

		if size.X > width {
			width = size.X
		}

		if size.Y > lineHeight {
			lineHeight = size.Y
		}
	}

	step := lineHeight + 2*style.Pad
	panelW := width + 2*style.Pad
	panelH := step * len(lines)

	var left int

	switch style.Placement {
	case Center:
		left = (img.Cols() - panelW) / 2

	case Right:
		left = img.Cols() - panelW

	case Left:
		fallthrough
	default:
		left = 0
	}

	bgClr := Black

	if res.Lost {
		bgClr = Red
	}

	panel := image.Rect(left, 0, left+panelW, panelH)
	gocv.Rectangle(img, panel, bgClr, -1)

	for i, text := range lines {
		pos := image.Pt(left+style.Pad, i*step+style.Pad+lineHeight)

		gocv.PutTextWithParams(img, text, pos,
			style.Face, style.Scale, White, style.Thickness,
			style.LineType, false)
	}

	return panel
}
