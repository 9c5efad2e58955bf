package geo

import (
	json "github.com/goccy/go-json"
)

// GeometryType names a GeoJSON geometry type.
type GeometryType string

// Geometry types understood by the pipeline.
const (
	TypePoint              GeometryType = "Point"
	TypeMultiPoint         GeometryType = "MultiPoint"
	TypeLineString         GeometryType = "LineString"
	TypeMultiLineString    GeometryType = "MultiLineString"
	TypePolygon            GeometryType = "Polygon"
	TypeMultiPolygon       GeometryType = "MultiPolygon"
	TypeGeometryCollection GeometryType = "GeometryCollection"
)

// Ring is an ordered run of positions: a polygon ring or a line.
type Ring []Coordinates

// Shape is a geometry in ring-of-coordinates form.
// Polygons hold one element per polygon: the exterior ring followed by holes.
// A GeometryCollection is flattened into the three slices.
type Shape struct {
	Type     GeometryType
	Points   []Coordinates
	Lines    []Ring
	Polygons [][]Ring
}

// Empty reports whether the shape carries no positions.
func (s Shape) Empty() bool {
	return len(s.Points) == 0 && len(s.Lines) == 0 && len(s.Polygons) == 0
}

// Vertices calls fn for every position of every ring, line and point.
func (s Shape) Vertices(fn func(Coordinates)) {
	for _, p := range s.Points {
		fn(p)
	}
	for _, l := range s.Lines {
		for _, c := range l {
			fn(c)
		}
	}
	for _, poly := range s.Polygons {
		for _, r := range poly {
			for _, c := range r {
				fn(c)
			}
		}
	}
}

// MarshalJSON encodes the shape back to a GeoJSON geometry.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s.Type == "" {
		return []byte("null"), nil
	}

	type wire struct {
		Type        GeometryType `json:"type"`
		Coordinates any          `json:"coordinates,omitempty"`
		Geometries  []Shape      `json:"geometries,omitempty"`
	}

	w := wire{Type: s.Type}
	switch s.Type {
	case TypePoint:
		if len(s.Points) > 0 {
			w.Coordinates = s.Points[0]
		}
	case TypeMultiPoint:
		w.Coordinates = s.Points
	case TypeLineString:
		if len(s.Lines) > 0 {
			w.Coordinates = s.Lines[0]
		}
	case TypeMultiLineString:
		w.Coordinates = s.Lines
	case TypePolygon:
		if len(s.Polygons) > 0 {
			w.Coordinates = s.Polygons[0]
		}
	case TypeMultiPolygon:
		w.Coordinates = s.Polygons
	case TypeGeometryCollection:
		if len(s.Points) > 0 {
			w.Geometries = append(w.Geometries, Shape{Type: TypeMultiPoint, Points: s.Points})
		}
		if len(s.Lines) > 0 {
			w.Geometries = append(w.Geometries, Shape{Type: TypeMultiLineString, Lines: s.Lines})
		}
		if len(s.Polygons) > 0 {
			w.Geometries = append(w.Geometries, Shape{Type: TypeMultiPolygon, Polygons: s.Polygons})
		}
	}

	return json.Marshal(w)
}

// Feature is a normalized geographic feature.
// Key is stable per position in the feature list and unique within a Geography.
type Feature struct {
	ID         any            `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Key        string         `json:"rsmKey"`
	Shape      Shape          `json:"geometry"`
}

// Geography is the normalized result of loading a reference.
// Outline holds the arcs used by a single geometry, Borders the arcs shared
// between two geometries; both are empty for GeoJSON sources.
type Geography struct {
	Source   string    `json:"source,omitempty"`
	Features []Feature `json:"features"`
	Outline  Shape     `json:"outline"`
	Borders  Shape     `json:"borders"`
}

// WithFeatures returns a copy of g carrying fs, re-keyed by position.
func (g *Geography) WithFeatures(fs []Feature) *Geography {
	out := &Geography{
		Source:   g.Source,
		Features: make([]Feature, len(fs)),
		Outline:  g.Outline,
		Borders:  g.Borders,
	}
	copy(out.Features, fs)
	AssignKeys(out.Features)

	return out
}

// AssignKeys sets Key to "geo-<index>" for every feature.
func AssignKeys(fs []Feature) {
	for i := range fs {
		fs[i].Key = featureKey(i)
	}
}
