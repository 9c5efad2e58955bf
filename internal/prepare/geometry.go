package prepare

import (
	"github.com/golang/geo/r2"
	"github.com/valyala/bytebufferpool"

	"github.com/woozymasta/geoguard/internal/geo"
)

// Curve is the per-axis curvature of a connector; 0 draws a straight line.
type Curve [2]float64

// UniformCurve uses the same curvature on both axes.
func UniformCurve(v float64) Curve { return Curve{v, v} }

// ConnectorPath returns a quadratic curve from the label origin (0,0) back
// to the annotated point at (-dx,-dy).
func (pr Preparer) ConnectorPath(dx, dy float64, curve Curve) string {
	x0 := dx / 2 * curve[0]
	y0 := dy / 2 * curve[1]

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B, "M0,0 Q"...)
	buf.B = pr.appendPoint(buf.B, r2.Point{X: -dx/2 - x0, Y: -dy/2 + y0})
	buf.B = append(buf.B, ' ')
	buf.B = pr.appendPoint(buf.B, r2.Point{X: -dx, Y: -dy})

	return buf.String()
}

// ConnectorPath draws an annotation connector with Default.
func ConnectorPath(dx, dy float64, curve Curve) string {
	return Default.ConnectorPath(dx, dy, curve)
}

// CurveBetween returns a quadratic curve between two projected positions.
// The control point sits on the perpendicular bisector, offset by curve
// times half the chord length. It returns "" if either end is unprojectable.
func (pr Preparer) CurveBetween(from, to geo.Coordinates, curve float64, p Projection) string {
	a, okA := project(p, from)
	b, okB := project(p, to)
	if !okA || !okB {
		return ""
	}

	mid := a.Add(b).Mul(0.5)
	ctrl := mid.Add(b.Sub(a).Ortho().Mul(curve / 2))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B, 'M')
	buf.B = pr.appendPoint(buf.B, a)
	buf.B = append(buf.B, 'Q')
	buf.B = pr.appendPoint(buf.B, ctrl)
	buf.B = append(buf.B, ' ')
	buf.B = pr.appendPoint(buf.B, b)

	return buf.String()
}

// CubicBetween is CurveBetween with two control points at a third and two
// thirds of the chord, bent to the same side.
func (pr Preparer) CubicBetween(from, to geo.Coordinates, curve float64, p Projection) string {
	a, okA := project(p, from)
	b, okB := project(p, to)
	if !okA || !okB {
		return ""
	}

	chord := b.Sub(a)
	off := chord.Ortho().Mul(curve / 2)
	c1 := a.Add(chord.Mul(1.0 / 3)).Add(off)
	c2 := a.Add(chord.Mul(2.0 / 3)).Add(off)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B, 'M')
	buf.B = pr.appendPoint(buf.B, a)
	buf.B = append(buf.B, 'C')
	buf.B = pr.appendPoint(buf.B, c1)
	buf.B = append(buf.B, ' ')
	buf.B = pr.appendPoint(buf.B, c2)
	buf.B = append(buf.B, ' ')
	buf.B = pr.appendPoint(buf.B, b)

	return buf.String()
}

// Centroid is the mean of the shape's distinct ring vertices. Closing
// duplicates of polygon rings are not counted.
func Centroid(s geo.Shape) (geo.Coordinates, bool) {
	var sum r2.Point
	n := 0
	add := func(c geo.Coordinates) {
		sum = sum.Add(r2.Point{X: float64(c.Lon), Y: float64(c.Lat)})
		n++
	}

	for _, c := range s.Points {
		add(c)
	}
	for _, l := range s.Lines {
		for _, c := range l {
			add(c)
		}
	}
	for _, poly := range s.Polygons {
		for _, r := range poly {
			if len(r) > 1 && r[0] == r[len(r)-1] {
				r = r[:len(r)-1]
			}
			for _, c := range r {
				add(c)
			}
		}
	}

	if n == 0 {
		return geo.Coordinates{}, false
	}
	m := sum.Mul(1 / float64(n))

	return geo.Coordinates{Lon: geo.Longitude(m.X), Lat: geo.Latitude(m.Y)}, true
}

// Bounds returns the south-west and north-east corners of the shape.
func Bounds(s geo.Shape) ([2]geo.Coordinates, bool) {
	rect := r2.EmptyRect()
	s.Vertices(func(c geo.Coordinates) {
		rect = rect.AddPoint(r2.Point{X: float64(c.Lon), Y: float64(c.Lat)})
	})
	if rect.IsEmpty() {
		return [2]geo.Coordinates{}, false
	}

	lo, hi := rect.Lo(), rect.Hi()

	return [2]geo.Coordinates{
		{Lon: geo.Longitude(lo.X), Lat: geo.Latitude(lo.Y)},
		{Lon: geo.Longitude(hi.X), Lat: geo.Latitude(hi.Y)},
	}, true
}

// EventData is what an interactive renderer hands to feature event handlers.
type EventData struct {
	Feature  geo.Feature         `json:"feature"`
	Centroid *geo.Coordinates    `json:"centroid,omitempty"`
	Bounds   *[2]geo.Coordinates `json:"bounds,omitempty"`
}

// NewEventData fills the derived geometry of f.
func NewEventData(f geo.Feature) EventData {
	ev := EventData{Feature: f}
	if c, ok := Centroid(f.Shape); ok {
		ev.Centroid = &c
	}
	if b, ok := Bounds(f.Shape); ok {
		ev.Bounds = &b
	}

	return ev
}
