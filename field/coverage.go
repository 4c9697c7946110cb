package field

import (
	"github.com/ctessum/go.clipper"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"math"
)

// clipScale converts world units to the integer grid used for clipping,
// giving a resolution of one thousandth of a unit
const clipScale = 1000.0

// Coverage describes the part of a court inside a camera footprint
type Coverage struct {
	// Visible are the polygons of the court that are in view
	Visible [][]r2.Point
	// Area is the visible court area in world units squared
	Area float64
	// Fraction is Area divided by the court area
	Fraction float64
}

// CourtCoverage intersects a ground footprint, as returned by
// camera.Footprint, with the court outline
func CourtCoverage(footprint []r3.Vector, court Court) (Coverage, error) {

	if len(footprint) < 3 {
		return Coverage{}, errors.Errorf("footprint needs at least 3 corners, got %d", len(footprint))
	}

	flat := make([]r2.Point, len(footprint))

	for i, p := range footprint {
		flat[i] = r2.Point{X: p.X, Y: p.Y}
	}

	c := clipper.NewClipper(0)
	c.AddPath(toPath(flat), clipper.PtSubject, true)
	c.AddPath(toPath(court.Outline()), clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return Coverage{}, errors.New("court clipping failed")
	}

	cov := Coverage{Visible: make([][]r2.Point, 0, len(solution))}

	for _, path := range solution {
		poly := fromPath(path)
		cov.Visible = append(cov.Visible, poly)
		cov.Area += math.Abs(polygonArea(poly))
	}

	if a := court.Area(); a > 0 {
		cov.Fraction = cov.Area / a
	}

	return cov, nil
}

// toPath converts world points to a clipper path
func toPath(poly []r2.Point) clipper.Path {

	var path clipper.Path

	for _, pt := range poly {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(pt.X * clipScale)),
			Y: clipper.CInt(math.Round(pt.Y * clipScale)),
		})
	}

	return path
}

// fromPath converts a clipper path back to world points
func fromPath(path clipper.Path) []r2.Point {

	out := make([]r2.Point, len(path))

	for i, pt := range path {
		out[i] = r2.Point{X: float64(pt.X) / clipScale, Y: float64(pt.Y) / clipScale}
	}

	return out
}

// polygonArea returns the signed shoelace area, positive for counter
// clockwise polygons
func polygonArea(poly []r2.Point) float64 {

	var sum float64

	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}

	return sum / 2
}
