package topojson

import (
	"github.com/woozymasta/geoguard/internal/geo"
)

// Filter selects mesh arcs. a and b are the first and last geometries that
// reference an arc; they are the same geometry when only one does.
type Filter func(a, b *Geometry) bool

// Outline keeps arcs used by a single geometry: the exterior boundary.
func Outline(a, b *Geometry) bool { return a == b }

// Borders keeps arcs shared by two geometries: internal boundaries.
func Borders(a, b *Geometry) bool { return a != b }

type arcUse struct {
	geom *Geometry
	arc  int
}

// Mesh returns the arcs of the named object selected by filter as a
// MultiLineString, one line per arc in arc-index order. A nil filter keeps
// every arc once.
func (t *Topology) Mesh(name string, filter Filter) (geo.Shape, error) {
	o, _, err := t.object(name)
	if err != nil {
		return geo.Shape{}, err
	}

	d := newDecoder(t)
	byArc, err := d.uses(o)
	if err != nil {
		return geo.Shape{}, err
	}

	return d.mesh(byArc, filter)
}

// uses indexes, per arc, the geometries of o that reference it.
func (d *decoder) uses(o *Geometry) ([][]arcUse, error) {
	byArc := make([][]arcUse, len(d.arcs))

	var walk func(g *Geometry) error
	walk = func(g *Geometry) error {
		if g == nil {
			return nil
		}

		var idx []int
		switch geo.GeometryType(g.Type) {
		case geo.TypeGeometryCollection:
			for _, child := range g.Geometries {
				if err := walk(child); err != nil {
					return err
				}
			}
			return nil
		case geo.TypeLineString:
			var a []int
			if err := unmarshal(g.Arcs, &a); err != nil {
				return err
			}
			idx = a
		case geo.TypeMultiLineString, geo.TypePolygon:
			var a [][]int
			if err := unmarshal(g.Arcs, &a); err != nil {
				return err
			}
			for _, r := range a {
				idx = append(idx, r...)
			}
		case geo.TypeMultiPolygon:
			var a [][][]int
			if err := unmarshal(g.Arcs, &a); err != nil {
				return err
			}
			for _, p := range a {
				for _, r := range p {
					idx = append(idx, r...)
				}
			}
		default:
			return nil
		}

		for _, i := range idx {
			j := i
			if i < 0 {
				j = ^i
			}
			if j >= len(byArc) {
				return invalid("invalid_arc_index", "arc %d out of range (%d arcs)", i, len(byArc))
			}
			byArc[j] = append(byArc[j], arcUse{arc: i, geom: g})
		}

		return nil
	}
	if err := walk(o); err != nil {
		return nil, err
	}

	return byArc, nil
}

func (d *decoder) mesh(byArc [][]arcUse, filter Filter) (geo.Shape, error) {
	out := geo.Shape{Type: geo.TypeMultiLineString}
	for _, uses := range byArc {
		if len(uses) == 0 {
			continue
		}
		if filter != nil && !filter(uses[0].geom, uses[len(uses)-1].geom) {
			continue
		}
		l, err := d.line([]int{uses[0].arc})
		if err != nil {
			return geo.Shape{}, err
		}
		out.Lines = append(out.Lines, l)
	}

	return out, nil
}

// Normalize converts the named object into a Geography with features,
// outline and borders.
func (t *Topology) Normalize(name string) (*geo.Geography, error) {
	o, _, err := t.object(name)
	if err != nil {
		return nil, err
	}

	// one decoder: arcs are dequantized once per conversion
	d := newDecoder(t)
	features, err := d.features(o)
	if err != nil {
		return nil, err
	}
	byArc, err := d.uses(o)
	if err != nil {
		return nil, err
	}
	outline, err := d.mesh(byArc, Outline)
	if err != nil {
		return nil, err
	}
	borders, err := d.mesh(byArc, Borders)
	if err != nil {
		return nil, err
	}

	return &geo.Geography{
		Features: features,
		Outline:  outline,
		Borders:  borders,
	}, nil
}
