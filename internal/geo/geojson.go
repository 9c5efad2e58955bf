package geo

import (
	json "github.com/goccy/go-json"
)

// GeoJSONFeatureCollection represents a collection of geographic features.
// It follows the standard GeoJSON structure.
type GeoJSONFeatureCollection struct {
	Type     string           `json:"type" yaml:"type"`
	Features []GeoJSONFeature `json:"features" yaml:"features"`
}

// GeoJSONFeature represents a single geographic feature with geometry and properties.
type GeoJSONFeature struct {
	ID         any              `json:"id,omitempty" yaml:"id,omitempty"`
	Properties map[string]any   `json:"properties" yaml:"properties"`
	Geometry   *GeoJSONGeometry `json:"geometry" yaml:"geometry"`
	Type       string           `json:"type" yaml:"type"`
}

// GeoJSONGeometry represents the geometry of a feature (Point, Polygon, etc.).
// Coordinates stay raw until the type is known.
type GeoJSONGeometry struct {
	Type        string            `json:"type" yaml:"type"`
	Coordinates json.RawMessage   `json:"coordinates,omitempty" yaml:"-"`
	Geometries  []GeoJSONGeometry `json:"geometries,omitempty" yaml:"geometries,omitempty"`
}
