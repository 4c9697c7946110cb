package field

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"strings"
)

// ErrUnknownCourt is returned when a court name is not recognised
var ErrUnknownCourt = errors.New("unknown court")

// Court is a rectangular playing surface on the ground plane, centered on the
// world origin with its length along the X axis
type Court struct {
	// Name of the court standard
	Name string
	// Length along X in world units
	Length float64
	// Width along Y in world units
	Width float64
	// Units is the world unit the dimensions are given in
	Units string
}

var courts = map[string]Court{
	"nba":  {Name: "nba", Length: 94, Width: 50, Units: "ft"},
	"fiba": {Name: "fiba", Length: 28, Width: 15, Units: "m"},
}

// CourtByName returns a standard court, "nba" or "fiba"
func CourtByName(name string) (Court, error) {

	c, ok := courts[strings.ToLower(name)]

	if !ok {
		return Court{}, errors.Wrapf(ErrUnknownCourt, "%q", name)
	}

	return c, nil
}

// Area returns the court surface area
func (c Court) Area() float64 {
	return c.Length * c.Width
}

// Outline returns the court boundary corners counter clockwise
func (c Court) Outline() []r2.Point {

	hl, hw := c.Length/2, c.Width/2

	return []r2.Point{
		{X: -hl, Y: -hw},
		{X: hl, Y: -hw},
		{X: hl, Y: hw},
		{X: -hl, Y: hw},
	}
}

// Lines returns the boundary and halfway line as sampled world polylines on
// the plane z = planeZ, with at most spacing units between samples so
// they bend correctly once projected
func (c Court) Lines(planeZ, spacing float64) [][]r3.Vector {

	outline := c.Outline()
	boundary := append(outline, outline[0])

	halfway := []r2.Point{{X: 0, Y: -c.Width / 2}, {X: 0, Y: c.Width / 2}}

	return [][]r3.Vector{
		sample(boundary, planeZ, spacing),
		sample(halfway, planeZ, spacing),
	}
}

// sample subdivides a polyline so no segment is longer than spacing
func sample(poly []r2.Point, planeZ, spacing float64) []r3.Vector {

	out := make([]r3.Vector, 0, len(poly))

	if len(poly) == 0 {
		return out
	}

	for i := 0; i < len(poly)-1; i++ {
		a, b := poly[i], poly[i+1]
		steps := 1

		if spacing > 0 {
			steps = int(b.Sub(a).Norm()/spacing) + 1
		}

		for s := 0; s < steps; s++ {
			p := a.Add(b.Sub(a).Mul(float64(s) / float64(steps)))
			out = append(out, r3.Vector{X: p.X, Y: p.Y, Z: planeZ})
		}
	}

	last := poly[len(poly)-1]

	return append(out, r3.Vector{X: last.X, Y: last.Y, Z: planeZ})
}
