// Package prepare turns normalized features into path strings through a
// caller-supplied projection, and computes derived geometry (meshes,
// connectors, centroids, bounds) for renderers.
package prepare

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/woozymasta/geoguard/internal/geo"
)

// Projection maps lon/lat to planar coordinates. ok is false for positions
// outside the projection's domain.
type Projection interface {
	Project(geo.Coordinates) (pt r2.Point, ok bool)
}

// ProjectionFunc adapts a function to Projection.
type ProjectionFunc func(geo.Coordinates) (r2.Point, bool)

// Project implements Projection.
func (f ProjectionFunc) Project(c geo.Coordinates) (r2.Point, bool) { return f(c) }

// PreparedFeature is a feature with its projected path.
type PreparedFeature struct {
	geo.Feature
	Path string `json:"svgPath"`
}

// Prepared is a PreparedFeature without its source geometry, for transport.
type Prepared struct {
	ID         any            `json:"id,omitempty" yaml:"id,omitempty"`
	Properties map[string]any `json:"properties" yaml:"properties"`
	Key        string         `json:"rsmKey" yaml:"rsmKey"`
	Path       string         `json:"svgPath" yaml:"svgPath"`
}

// Slim drops the geometry.
func (pf PreparedFeature) Slim() Prepared {
	return Prepared{ID: pf.ID, Properties: pf.Properties, Key: pf.Key, Path: pf.Path}
}

// Mesh holds the projected outline and borders of a geography.
type Mesh struct {
	Outline string `json:"outline"`
	Borders string `json:"borders"`
}

// Segment is one projected run of points. Closed runs come from polygon rings.
type Segment struct {
	Points []r2.Point
	Closed bool
}

// Preparer builds path strings.
type Preparer struct {
	// Precision is the number of decimals kept in path coordinates.
	Precision int
	// PointRadius is the radius of the circle drawn for point geometries.
	PointRadius float64
}

// Default is the preparer used by the package-level functions.
var Default = Preparer{Precision: 3, PointRadius: 4.5}

// Prepare projects every feature with Default.
func Prepare(features []geo.Feature, p Projection) []PreparedFeature {
	return Default.Prepare(features, p)
}

// PrepareMesh projects outline and borders with Default.
func PrepareMesh(g *geo.Geography, p Projection) Mesh {
	return Default.PrepareMesh(g, p)
}

// Path projects a single shape with Default.
func Path(s geo.Shape, p Projection) string {
	return Default.Path(s, p)
}

// Prepare returns one PreparedFeature per input feature, in order. The result
// depends only on the features and the projection; call it again whenever the
// projection changes.
func (pr Preparer) Prepare(features []geo.Feature, p Projection) []PreparedFeature {
	out := make([]PreparedFeature, len(features))
	for i, f := range features {
		out[i] = PreparedFeature{Feature: f, Path: pr.Path(f.Shape, p)}
	}

	return out
}

// PrepareMesh projects the outline and borders of g.
func (pr Preparer) PrepareMesh(g *geo.Geography, p Projection) Mesh {
	return Mesh{
		Outline: pr.Path(g.Outline, p),
		Borders: pr.Path(g.Borders, p),
	}
}

// Segments projects the lines and polygon rings of s. Each run is cut at
// its first unprojectable position; runs left too short to draw are dropped.
func Segments(s geo.Shape, p Projection) []Segment {
	var out []Segment
	for _, l := range s.Lines {
		if pts := projectRun(l, p, false); pts != nil {
			out = append(out, Segment{Points: pts})
		}
	}
	for _, poly := range s.Polygons {
		for _, r := range poly {
			if pts := projectRun(r, p, true); pts != nil {
				out = append(out, Segment{Points: pts, Closed: true})
			}
		}
	}

	return out
}

func projectRun(run geo.Ring, p Projection, closed bool) []r2.Point {
	if closed && len(run) > 1 && run[0] == run[len(run)-1] {
		run = run[:len(run)-1]
	}

	pts := make([]r2.Point, 0, len(run))
	for _, c := range run {
		pt, ok := project(p, c)
		if !ok {
			break
		}
		pts = append(pts, pt)
	}

	minLen := 2
	if closed {
		minLen = 3
	}
	if len(pts) < minLen {
		return nil
	}

	return pts
}

func project(p Projection, c geo.Coordinates) (r2.Point, bool) {
	pt, ok := p.Project(c)
	if !ok || !finite(pt.X) || !finite(pt.Y) {
		return r2.Point{}, false
	}

	return pt, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
