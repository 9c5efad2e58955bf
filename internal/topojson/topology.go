// Package topojson decodes TopoJSON topologies into normalized features and
// boundary meshes.
package topojson

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Topology is a decoded TopoJSON document.
type Topology struct {
	Transform *Transform           `json:"transform,omitempty"`
	Objects   map[string]*Geometry `json:"objects"`
	Type      string               `json:"type"`
	BBox      []float64            `json:"bbox,omitempty"`
	Arcs      [][][]float64        `json:"arcs"`

	order []string
}

// Transform dequantizes delta-encoded arcs.
type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// Geometry is a topology object. Arcs holds arc indexes nested according to
// Type; a negative index ~i means arc i reversed.
type Geometry struct {
	ID          any             `json:"id,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	Type        string          `json:"type"`
	Arcs        json.RawMessage `json:"arcs,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []*Geometry     `json:"geometries,omitempty"`
}

// Decode parses a topology, remembering the document order of its objects.
func Decode(raw []byte) (*Topology, error) {
	var t Topology
	if err := json.Unmarshal(raw, &t); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, geoerr.New(geoerr.KindValidation, "",
				geoerr.WithReason("invalid_structure"), geoerr.WithCause(err))
		}
		return nil, geoerr.New(geoerr.KindParse, "",
			geoerr.WithReason("malformed_json"), geoerr.WithCause(err))
	}
	if t.Type != "Topology" && (t.Objects == nil || t.Arcs == nil) {
		return nil, geoerr.New(geoerr.KindParse, "",
			geoerr.WithReason("unrecognized_format"),
			geoerr.WithMessage("not a TopoJSON topology"))
	}
	t.order = objectOrder(raw)

	return &t, nil
}

// ObjectNames returns object names in document order when known, otherwise
// sorted.
func (t *Topology) ObjectNames() []string {
	if len(t.order) == len(t.Objects) {
		return append([]string(nil), t.order...)
	}

	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// object returns the named object, or the first one when name is empty.
func (t *Topology) object(name string) (*Geometry, string, error) {
	if name == "" {
		names := t.ObjectNames()
		if len(names) == 0 {
			return nil, "", geoerr.New(geoerr.KindValidation, "",
				geoerr.WithReason("no_objects"), geoerr.WithMessage("topology has no objects"))
		}
		name = names[0]
	}

	o, ok := t.Objects[name]
	if !ok || o == nil {
		return nil, name, geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("object_not_found"), geoerr.WithMessage("object %q", name))
	}

	return o, name, nil
}

// objectOrder walks the top-level "objects" member and returns its keys in
// document order. Errors yield nil and callers fall back to sorted names.
func objectOrder(raw []byte) []string {
	dec := stdjson.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != stdjson.Delim('{') {
		return nil
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		if key != "objects" {
			var skip stdjson.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}

		if tok, err := dec.Token(); err != nil || tok != stdjson.Delim('{') {
			return nil
		}
		var names []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil
			}
			name, _ := tok.(string)
			names = append(names, name)
			var skip stdjson.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}

		return names
	}

	return nil
}
