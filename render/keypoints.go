package render

import (
	"github.com/golang/geo/r2"
	"github.com/swdee/go-ptztrack/features"
	"gocv.io/x/gocv"
)

// Landmarks draws the live landmarks of a frame, colored by id
func Landmarks(img *gocv.Mat, ids []int, points []r2.Point, radius int) {
	for i, p := range points {
		gocv.Circle(img, toPt(p), radius, landmarkColor(ids[i]), -1)
	}
}

// Correspondences draws a line from every keyframe pixel to its match in the
// current frame, ending in a circle at the current position
func Correspondences(img *gocv.Mat, corr *features.Correspondences, lineThickness int) {

	if corr == nil {
		return
	}

	for i := 0; i < corr.Len(); i++ {
		clr := landmarkColor(corr.IndexA[i])

		gocv.Line(img, toPt(corr.PointsA[i]), toPt(corr.PointsB[i]), clr, lineThickness)
		gocv.Circle(img, toPt(corr.PointsB[i]), 3, clr, -1)
	}
}
