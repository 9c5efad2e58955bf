package topojson

import (
	"errors"

	json "github.com/goccy/go-json"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/geoerr"
)

// decoder holds the absolute arc coordinates of one topology for the
// duration of a conversion. Topologies themselves are never mutated.
type decoder struct {
	t    *Topology
	arcs [][]geo.Coordinates
}

func newDecoder(t *Topology) *decoder {
	d := &decoder{t: t, arcs: make([][]geo.Coordinates, len(t.Arcs))}
	for i, arc := range t.Arcs {
		out := make([]geo.Coordinates, 0, len(arc))
		var x, y float64
		for _, pos := range arc {
			if len(pos) < 2 {
				continue
			}
			if t.Transform != nil {
				x += pos[0]
				y += pos[1]
				out = append(out, dequantize(t.Transform, x, y))
				continue
			}
			out = append(out, geo.Coordinates{Lon: geo.Longitude(pos[0]), Lat: geo.Latitude(pos[1])})
		}
		d.arcs[i] = out
	}

	return d
}

// point dequantizes a Point/MultiPoint position (no delta encoding).
func (d *decoder) point(pos []float64) (geo.Coordinates, error) {
	if len(pos) < 2 {
		return geo.Coordinates{}, invalid("invalid_position", "position has %d values", len(pos))
	}
	if tr := d.t.Transform; tr != nil {
		return dequantize(tr, pos[0], pos[1]), nil
	}

	return geo.Coordinates{Lon: geo.Longitude(pos[0]), Lat: geo.Latitude(pos[1])}, nil
}

// snapEpsilon absorbs the rounding error of scale*x+translate, which puts
// edge vertices a few ulps past +-180 or +-90.
const snapEpsilon = 1e-9

func dequantize(tr *Transform, x, y float64) geo.Coordinates {
	return geo.Coordinates{
		Lon: geo.Longitude(snap(x*tr.Scale[0]+tr.Translate[0], 180)),
		Lat: geo.Latitude(snap(y*tr.Scale[1]+tr.Translate[1], 90)),
	}
}

func snap(v, limit float64) float64 {
	switch {
	case v > limit && v-limit <= snapEpsilon:
		return limit
	case v < -limit && -limit-v <= snapEpsilon:
		return -limit
	}

	return v
}

// arc returns the coordinates of arc i, reversed for negative indexes.
func (d *decoder) arc(i int) ([]geo.Coordinates, error) {
	j := i
	if i < 0 {
		j = ^i
	}
	if j >= len(d.arcs) {
		return nil, invalid("invalid_arc_index", "arc %d out of range (%d arcs)", i, len(d.arcs))
	}

	a := d.arcs[j]
	if i >= 0 {
		return a, nil
	}

	rev := make([]geo.Coordinates, len(a))
	for k, c := range a {
		rev[len(a)-1-k] = c
	}

	return rev, nil
}

// line stitches consecutive arcs, dropping the shared joint.
func (d *decoder) line(arcs []int) (geo.Ring, error) {
	var points geo.Ring
	for k, i := range arcs {
		a, err := d.arc(i)
		if err != nil {
			return nil, err
		}
		if k > 0 && len(points) > 0 {
			points = points[:len(points)-1]
		}
		points = append(points, a...)
	}
	if len(points) == 1 {
		points = append(points, points[0])
	}

	return points, nil
}

// ring is a line padded to the four positions a closed ring needs.
func (d *decoder) ring(arcs []int) (geo.Ring, error) {
	points, err := d.line(arcs)
	if err != nil {
		return nil, err
	}
	for len(points) > 0 && len(points) < 4 {
		points = append(points, points[0])
	}

	return points, nil
}

func (d *decoder) rings(arcs [][]int) ([]geo.Ring, error) {
	out := make([]geo.Ring, 0, len(arcs))
	for _, a := range arcs {
		r, err := d.ring(a)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

// shape converts a geometry object. A nil or untyped geometry yields an
// empty shape, matching a GeoJSON feature with null geometry.
func (d *decoder) shape(o *Geometry) (geo.Shape, error) {
	if o == nil || o.Type == "" {
		return geo.Shape{}, nil
	}

	out := geo.Shape{Type: geo.GeometryType(o.Type)}
	switch out.Type {
	case geo.TypeGeometryCollection:
		for _, child := range o.Geometries {
			s, err := d.shape(child)
			if err != nil {
				return geo.Shape{}, err
			}
			out.Points = append(out.Points, s.Points...)
			out.Lines = append(out.Lines, s.Lines...)
			out.Polygons = append(out.Polygons, s.Polygons...)
		}

	case geo.TypePoint:
		var pos []float64
		if err := unmarshal(o.Coordinates, &pos); err != nil {
			return geo.Shape{}, err
		}
		c, err := d.point(pos)
		if err != nil {
			return geo.Shape{}, err
		}
		out.Points = []geo.Coordinates{c}

	case geo.TypeMultiPoint:
		var positions [][]float64
		if err := unmarshal(o.Coordinates, &positions); err != nil {
			return geo.Shape{}, err
		}
		for _, pos := range positions {
			c, err := d.point(pos)
			if err != nil {
				return geo.Shape{}, err
			}
			out.Points = append(out.Points, c)
		}

	case geo.TypeLineString:
		var arcs []int
		if err := unmarshal(o.Arcs, &arcs); err != nil {
			return geo.Shape{}, err
		}
		l, err := d.line(arcs)
		if err != nil {
			return geo.Shape{}, err
		}
		out.Lines = []geo.Ring{l}

	case geo.TypeMultiLineString:
		var arcs [][]int
		if err := unmarshal(o.Arcs, &arcs); err != nil {
			return geo.Shape{}, err
		}
		for _, a := range arcs {
			l, err := d.line(a)
			if err != nil {
				return geo.Shape{}, err
			}
			out.Lines = append(out.Lines, l)
		}

	case geo.TypePolygon:
		var arcs [][]int
		if err := unmarshal(o.Arcs, &arcs); err != nil {
			return geo.Shape{}, err
		}
		rs, err := d.rings(arcs)
		if err != nil {
			return geo.Shape{}, err
		}
		out.Polygons = [][]geo.Ring{rs}

	case geo.TypeMultiPolygon:
		var arcs [][][]int
		if err := unmarshal(o.Arcs, &arcs); err != nil {
			return geo.Shape{}, err
		}
		for _, poly := range arcs {
			rs, err := d.rings(poly)
			if err != nil {
				return geo.Shape{}, err
			}
			out.Polygons = append(out.Polygons, rs)
		}

	default:
		return geo.Shape{}, invalid("unknown_geometry_type", "geometry type %q", o.Type)
	}

	return out, nil
}

// Features converts the named object (the first object when name is empty)
// into features. A GeometryCollection yields one feature per member.
func (t *Topology) Features(name string) ([]geo.Feature, error) {
	o, _, err := t.object(name)
	if err != nil {
		return nil, err
	}

	return newDecoder(t).features(o)
}

func (d *decoder) features(o *Geometry) ([]geo.Feature, error) {
	members := []*Geometry{o}
	if o.Type == string(geo.TypeGeometryCollection) {
		members = o.Geometries
	}

	out := make([]geo.Feature, 0, len(members))
	for i, m := range members {
		s, err := d.shape(m)
		if err != nil {
			var ge *geoerr.Error
			if errors.As(err, &ge) {
				geoerr.WithDetail("feature", i)(ge)
			}
			return nil, err
		}

		f := geo.Feature{Shape: s}
		if m != nil {
			f.ID = m.ID
			f.Properties = m.Properties
		}
		out = append(out, f)
	}
	geo.AssignKeys(out)

	return out, nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return invalid("missing_arcs", "geometry has no arcs or coordinates")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("invalid_structure"), geoerr.WithCause(err))
	}

	return nil
}

func invalid(reason, format string, args ...any) error {
	return geoerr.New(geoerr.KindValidation, "",
		geoerr.WithReason(reason), geoerr.WithMessage(format, args...))
}
