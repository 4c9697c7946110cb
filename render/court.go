package render

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/swdee/go-ptztrack/camera"
	"gocv.io/x/gocv"
	"image/color"
)

// CourtLines projects world polylines through the camera and draws the
// segments whose two ends are in front of the camera and inside the image.
// It returns the number of segments drawn.
func CourtLines(img *gocv.Mat, cam *camera.Camera, lines [][]r3.Vector,
	clr color.RGBA, lineThickness int) int {

	size := camera.ImageSize{Width: img.Cols(), Height: img.Rows()}
	drawn := 0

	for _, line := range lines {

		// drop points behind the camera, they project mirrored
		front := make([]r3.Vector, 0, len(line))
		source := make([]int, 0, len(line))

		for i, p := range line {
			if cam.Depth(p) > 0 {
				front = append(front, p)
				source = append(source, i)
			}
		}

		pts, idx, err := cam.ProjectPoints(front, size)

		if err != nil {
			continue
		}

		for i := 1; i < len(pts); i++ {
			// only join points that are neighbours on the polyline
			if source[idx[i]]-source[idx[i-1]] != 1 {
				continue
			}

			gocv.Line(img, toPt(pts[i-1]), toPt(pts[i]), clr, lineThickness)
			drawn++
		}
	}

	return drawn
}

// GroundPolygons draws closed polygons lying on the plane z = planeZ, such
// as the visible part of a court.  Edges are sampled every spacing world
// units so they bend with the lens, and samples behind the camera or outside
// the image are skipped.  It returns the number of segments drawn.
func GroundPolygons(img *gocv.Mat, cam *camera.Camera, polys [][]r2.Point, planeZ, spacing float64,
	clr color.RGBA, lineThickness int) int {

	lines := make([][]r3.Vector, 0, len(polys))

	for _, poly := range polys {
		if len(poly) < 3 {
			continue
		}

		closed := append(append([]r2.Point(nil), poly...), poly[0])
		line := make([]r3.Vector, 0, len(closed))

		for i := 0; i < len(closed)-1; i++ {
			a, b := closed[i], closed[i+1]
			steps := 1

			if spacing > 0 {
				steps = int(b.Sub(a).Norm()/spacing) + 1
			}

			for s := 0; s < steps; s++ {
				p := a.Add(b.Sub(a).Mul(float64(s) / float64(steps)))
				line = append(line, r3.Vector{X: p.X, Y: p.Y, Z: planeZ})
			}
		}

		last := closed[len(closed)-1]
		lines = append(lines, append(line, r3.Vector{X: last.X, Y: last.Y, Z: planeZ}))
	}

	return CourtLines(img, cam, lines, clr, lineThickness)
}
