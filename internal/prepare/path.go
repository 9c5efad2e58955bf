package prepare

import (
	"math"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/valyala/bytebufferpool"

	"github.com/woozymasta/geoguard/internal/geo"
)

// Path returns the move/line/close command string of s under p.
// Polygon rings end with Z, lines stay open, points are drawn as circles.
func (pr Preparer) Path(s geo.Shape, p Projection) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, c := range s.Points {
		pt, ok := project(p, c)
		if !ok {
			continue
		}
		pr.circle(buf, pt)
	}
	for _, seg := range Segments(s, p) {
		pr.segment(buf, seg)
	}

	return buf.String()
}

// LinePath draws a polyline through coords; used for great-circle-free
// connection lines between markers.
func (pr Preparer) LinePath(coords []geo.Coordinates, p Projection) string {
	pts := projectRun(geo.Ring(coords), p, false)
	if pts == nil {
		return ""
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	pr.segment(buf, Segment{Points: pts})

	return buf.String()
}

// LinePath draws a polyline with Default.
func LinePath(coords []geo.Coordinates, p Projection) string {
	return Default.LinePath(coords, p)
}

func (pr Preparer) segment(buf *bytebufferpool.ByteBuffer, seg Segment) {
	for i, pt := range seg.Points {
		if i == 0 {
			buf.B = append(buf.B, 'M')
		} else {
			buf.B = append(buf.B, 'L')
		}
		buf.B = pr.appendPoint(buf.B, pt)
	}
	if seg.Closed {
		buf.B = append(buf.B, 'Z')
	}
}

func (pr Preparer) circle(buf *bytebufferpool.ByteBuffer, pt r2.Point) {
	r := pr.PointRadius
	buf.B = append(buf.B, 'M')
	buf.B = pr.appendPoint(buf.B, pt)
	buf.B = append(buf.B, "m0,"...)
	buf.B = pr.appendNum(buf.B, r)
	buf.B = pr.arc(buf.B, r, -2*r)
	buf.B = pr.arc(buf.B, r, 2*r)
	buf.B = append(buf.B, 'z')
}

func (pr Preparer) arc(b []byte, r, dy float64) []byte {
	b = append(b, 'a')
	b = pr.appendNum(b, r)
	b = append(b, ',')
	b = pr.appendNum(b, r)
	b = append(b, " 0 1,1 0,"...)
	return pr.appendNum(b, dy)
}

func (pr Preparer) appendPoint(b []byte, pt r2.Point) []byte {
	b = pr.appendNum(b, pt.X)
	b = append(b, ',')
	return pr.appendNum(b, pt.Y)
}

func (pr Preparer) appendNum(b []byte, v float64) []byte {
	return strconv.AppendFloat(b, round(v, pr.Precision), 'f', -1, 64)
}

func round(v float64, precision int) float64 {
	if precision >= 0 {
		k := math.Pow10(precision)
		v = math.Round(v*k) / k
	}
	if v == 0 {
		// drop the sign of negative zero
		v = 0
	}

	return v
}
