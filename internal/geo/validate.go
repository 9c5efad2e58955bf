package geo

import (
	"errors"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Format is the detected encoding of a geography payload.
type Format int

// Payload formats.
const (
	FormatUnknown Format = iota
	FormatTopology
	FormatFeatureCollection
)

func (f Format) String() string {
	switch f {
	case FormatTopology:
		return "topology"
	case FormatFeatureCollection:
		return "feature_collection"
	default:
		return "unknown"
	}
}

type probe struct {
	Type     string          `json:"type"`
	Objects  json.RawMessage `json:"objects"`
	Arcs     json.RawMessage `json:"arcs"`
	Features json.RawMessage `json:"features"`
	Geometry json.RawMessage `json:"geometry"`
}

func probeOf(raw []byte) (probe, error) {
	var p probe
	err := json.Unmarshal(raw, &p)
	return p, err
}

func present(r json.RawMessage) bool {
	return len(r) > 0 && string(r) != "null"
}

// DetectFormat classifies a payload. Malformed JSON and JSON that is neither a
// topology nor a feature collection are parse errors.
func DetectFormat(raw []byte) (Format, error) {
	p, err := probeOf(raw)
	if err != nil {
		return FormatUnknown, geoerr.New(geoerr.KindParse, "",
			geoerr.WithReason("malformed_json"), geoerr.WithCause(err))
	}

	switch {
	case p.Type == "Topology" || (present(p.Objects) && present(p.Arcs)):
		return FormatTopology, nil
	case p.Type == "FeatureCollection" || (p.Type == "" && present(p.Features)):
		return FormatFeatureCollection, nil
	}

	return FormatUnknown, geoerr.New(geoerr.KindParse, "",
		geoerr.WithReason("unrecognized_format"),
		geoerr.WithMessage("payload is neither a TopoJSON topology nor a GeoJSON FeatureCollection"))
}

// IsTopology reports whether raw is a TopoJSON topology.
func IsTopology(raw []byte) bool {
	f, err := DetectFormat(raw)
	return err == nil && f == FormatTopology
}

// IsFeatureCollection reports whether raw is a GeoJSON FeatureCollection.
func IsFeatureCollection(raw []byte) bool {
	f, err := DetectFormat(raw)
	return err == nil && f == FormatFeatureCollection
}

// IsFeature reports whether raw is a single GeoJSON Feature.
func IsFeature(raw []byte) bool {
	p, err := probeOf(raw)
	return err == nil && p.Type == "Feature"
}

// IsValidGeometryType reports whether t is a known geometry type.
func IsValidGeometryType(t GeometryType) bool {
	switch t {
	case TypePoint, TypeMultiPoint, TypeLineString, TypeMultiLineString,
		TypePolygon, TypeMultiPolygon, TypeGeometryCollection:
		return true
	}

	return false
}

// DecodeFeatureCollection parses and normalizes a GeoJSON FeatureCollection.
func DecodeFeatureCollection(raw []byte) ([]Feature, error) {
	var fc GeoJSONFeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, classifyDecodeError(err)
	}

	return FromCollection(fc)
}

// FromCollection normalizes an in-memory FeatureCollection.
func FromCollection(fc GeoJSONFeatureCollection) ([]Feature, error) {
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, validationError("invalid_collection_type", "type %q is not FeatureCollection", fc.Type)
	}

	out := make([]Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Type != "" && f.Type != "Feature" {
			return nil, validationError("invalid_feature_type", "feature %d has type %q", i, f.Type)
		}

		var shape Shape
		if f.Geometry != nil {
			s, err := DecodeGeometry(*f.Geometry)
			if err != nil {
				return nil, addDetail(err, "feature", i)
			}
			shape = s
		}

		out = append(out, Feature{
			Key:        featureKey(i),
			ID:         f.ID,
			Properties: f.Properties,
			Shape:      shape,
		})
	}

	return out, nil
}

// DecodeGeometry converts a GeoJSON geometry to a Shape.
func DecodeGeometry(g GeoJSONGeometry) (Shape, error) {
	t := GeometryType(g.Type)
	if !IsValidGeometryType(t) {
		return Shape{}, validationError("unknown_geometry_type", "geometry type %q", g.Type)
	}

	if t == TypeGeometryCollection {
		out := Shape{Type: t}
		for _, child := range g.Geometries {
			s, err := DecodeGeometry(child)
			if err != nil {
				return Shape{}, err
			}
			out.Points = append(out.Points, s.Points...)
			out.Lines = append(out.Lines, s.Lines...)
			out.Polygons = append(out.Polygons, s.Polygons...)
		}
		return out, nil
	}

	if !present(g.Coordinates) {
		return Shape{}, validationError("missing_coordinates", "%s geometry has no coordinates", g.Type)
	}

	out := Shape{Type: t}
	var err error
	switch t {
	case TypePoint:
		var c Coordinates
		err = json.Unmarshal(g.Coordinates, &c)
		out.Points = []Coordinates{c}
	case TypeMultiPoint:
		err = json.Unmarshal(g.Coordinates, &out.Points)
	case TypeLineString:
		var r Ring
		err = json.Unmarshal(g.Coordinates, &r)
		out.Lines = []Ring{r}
	case TypeMultiLineString:
		err = json.Unmarshal(g.Coordinates, &out.Lines)
	case TypePolygon:
		var rings []Ring
		err = json.Unmarshal(g.Coordinates, &rings)
		out.Polygons = [][]Ring{rings}
	case TypeMultiPolygon:
		err = json.Unmarshal(g.Coordinates, &out.Polygons)
	}
	if err != nil {
		return Shape{}, classifyDecodeError(err)
	}

	return out, checkStructure(out)
}

// checkStructure enforces minimum ring sizes.
func checkStructure(s Shape) error {
	for i, l := range s.Lines {
		if len(l) < 2 {
			return validationError("short_line", "line %d has %d positions, want at least 2", i, len(l))
		}
	}
	for i, poly := range s.Polygons {
		if len(poly) == 0 {
			return validationError("empty_polygon", "polygon %d has no rings", i)
		}
		for j, r := range poly {
			if len(r) < 4 {
				return validationError("short_ring", "polygon %d ring %d has %d positions, want at least 4", i, j, len(r))
			}
		}
	}

	return nil
}

// ValidateShape checks structure and that every position is a valid lon/lat.
func ValidateShape(s Shape) error {
	if err := checkStructure(s); err != nil {
		return err
	}

	var bad *Coordinates
	s.Vertices(func(c Coordinates) {
		if bad == nil && !c.Valid() {
			cc := c
			bad = &cc
		}
	})
	if bad != nil {
		return validationError("coordinates_out_of_range", "position %s outside lon/lat range", bad)
	}

	return nil
}

// ValidateFeatures runs ValidateShape over every feature.
func ValidateFeatures(fs []Feature) error {
	for i, f := range fs {
		if err := ValidateShape(f.Shape); err != nil {
			return addDetail(err, "feature", i)
		}
	}

	return nil
}

func classifyDecodeError(err error) error {
	var ge *geoerr.Error
	if errors.As(err, &ge) {
		return err
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("invalid_structure"), geoerr.WithCause(err))
	}

	return geoerr.New(geoerr.KindParse, "",
		geoerr.WithReason("malformed_json"), geoerr.WithCause(err))
}

func validationError(reason, format string, args ...any) error {
	return geoerr.New(geoerr.KindValidation, "",
		geoerr.WithReason(reason), geoerr.WithMessage(format, args...))
}

func addDetail(err error, key string, value any) error {
	var ge *geoerr.Error
	if errors.As(err, &ge) {
		geoerr.WithDetail(key, value)(ge)
	}

	return err
}

func featureKey(i int) string {
	return "geo-" + strconv.Itoa(i)
}
