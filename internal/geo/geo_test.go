package geo

import (
	"math"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

func TestCoordinateRanges(t *testing.T) {
	assert.True(t, IsValidLongitude(-180))
	assert.True(t, IsValidLongitude(180))
	assert.False(t, IsValidLongitude(180.0001))
	assert.False(t, IsValidLongitude(math.NaN()))
	assert.True(t, IsValidLatitude(-90))
	assert.False(t, IsValidLatitude(90.5))
	assert.False(t, IsValidLatitude(math.Inf(1)))

	assert.True(t, IsValidCoordinates([]float64{10, 20}))
	assert.False(t, IsValidCoordinates([]float64{10}))
	assert.False(t, IsValidCoordinates([]float64{200, 20}))

	_, err := NewCoordinates(0, 91)
	require.Error(t, err)
	assert.Equal(t, geoerr.KindValidation, geoerr.KindOf(err))
	assert.Equal(t, "latitude_out_of_range", geoerr.ReasonOf(err))

	c, err := NewCoordinates(-73.5, 40.25)
	require.NoError(t, err)
	assert.Equal(t, "-73.5,40.25", c.String())
}

func TestMapDimensions(t *testing.T) {
	assert.True(t, IsValidMapDimensions(800, 600))
	assert.False(t, IsValidMapDimensions(0, 600))
	assert.False(t, IsValidMapDimensions(800, -1))
	assert.False(t, IsValidMapDimensions(math.Inf(1), 600))
}

func TestCoordinatesJSON(t *testing.T) {
	var c Coordinates
	require.NoError(t, json.Unmarshal([]byte(`[1.5, 2.5, 100]`), &c))
	assert.Equal(t, MustCoordinates(1.5, 2.5), c)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, 2.5]`, string(out))

	err = json.Unmarshal([]byte(`[1]`), &c)
	require.Error(t, err)

	// out-of-range positions decode but never validate
	require.NoError(t, json.Unmarshal([]byte(`[540, 12]`), &c))
	assert.False(t, c.Valid())
	err = ValidateShape(Shape{Type: TypePoint, Points: []Coordinates{c}})
	assert.Equal(t, "coordinates_out_of_range", geoerr.ReasonOf(err))
}

func TestDetectFormat(t *testing.T) {
	assert.True(t, IsTopology([]byte(`{"type":"Topology","objects":{},"arcs":[]}`)))
	assert.True(t, IsTopology([]byte(`{"objects":{},"arcs":[]}`)))
	assert.True(t, IsFeatureCollection([]byte(`{"type":"FeatureCollection","features":[]}`)))
	assert.True(t, IsFeatureCollection([]byte(`{"features":[]}`)))
	assert.True(t, IsFeature([]byte(`{"type":"Feature","geometry":null}`)))
	assert.False(t, IsTopology([]byte(`{"type":"FeatureCollection"}`)))

	_, err := DetectFormat([]byte(`{"type":`))
	assert.Equal(t, geoerr.KindParse, geoerr.KindOf(err))

	_, err = DetectFormat([]byte(`{"type":"Feature"}`))
	assert.Equal(t, "unrecognized_format", geoerr.ReasonOf(err))
}

func TestDecodeFeatureCollection(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","id":7,"properties":{"name":"x"},
	   "geometry":{"type":"MultiLineString","coordinates":[[[0,0],[1,1]],[[2,2],[3,3]]]}},
	  {"type":"Feature","properties":{},
	   "geometry":{"type":"GeometryCollection","geometries":[
	     {"type":"Point","coordinates":[5,5]},
	     {"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}]}}
	]}`

	fs, err := DecodeFeatureCollection([]byte(raw))
	require.NoError(t, err)
	require.Len(t, fs, 2)

	assert.Equal(t, "geo-0", fs[0].Key)
	assert.Equal(t, TypeMultiLineString, fs[0].Shape.Type)
	assert.Len(t, fs[0].Shape.Lines, 2)

	assert.Equal(t, "geo-1", fs[1].Key)
	assert.Equal(t, TypeGeometryCollection, fs[1].Shape.Type)
	assert.Len(t, fs[1].Shape.Points, 1)
	assert.Len(t, fs[1].Shape.Polygons, 1)
	require.NoError(t, ValidateFeatures(fs))
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]struct {
		raw    string
		kind   geoerr.Kind
		reason string
	}{
		"unknown type": {
			`{"features":[{"geometry":{"type":"Circle","coordinates":[0,0]}}]}`,
			geoerr.KindValidation, "unknown_geometry_type",
		},
		"short ring": {
			`{"features":[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}}]}`,
			geoerr.KindValidation, "short_ring",
		},
		"short line": {
			`{"features":[{"geometry":{"type":"LineString","coordinates":[[0,0]]}}]}`,
			geoerr.KindValidation, "short_line",
		},
		"missing coordinates": {
			`{"features":[{"geometry":{"type":"Point"}}]}`,
			geoerr.KindValidation, "missing_coordinates",
		},
		"wrong structure": {
			`{"features":[{"geometry":{"type":"LineString","coordinates":"here"}}]}`,
			geoerr.KindValidation, "invalid_structure",
		},
		"malformed": {
			`{"features":[`,
			geoerr.KindParse, "malformed_json",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFeatureCollection([]byte(tc.raw))
			require.Error(t, err)
			assert.Equal(t, tc.kind, geoerr.KindOf(err))
			assert.Equal(t, tc.reason, geoerr.ReasonOf(err))
		})
	}
}

func TestValidateShapeRange(t *testing.T) {
	s := Shape{Type: TypePoint, Points: []Coordinates{{Lon: 190, Lat: 0}}}
	err := ValidateShape(s)
	require.Error(t, err)
	assert.Equal(t, "coordinates_out_of_range", geoerr.ReasonOf(err))

	err = ValidateFeatures([]Feature{{}, {Shape: s}})
	require.Error(t, err)

	var ge *geoerr.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 1, ge.Details["feature"])
}

func TestWithFeaturesRekeys(t *testing.T) {
	g := &Geography{Source: "s", Features: []Feature{{Key: "geo-0"}, {Key: "geo-1"}, {Key: "geo-2"}}}

	out := g.WithFeatures(g.Features[1:])
	require.Len(t, out.Features, 2)
	assert.Equal(t, "geo-0", out.Features[0].Key)
	assert.Equal(t, "geo-1", out.Features[1].Key)
	assert.Equal(t, "s", out.Source)
	assert.Equal(t, "geo-1", g.Features[1].Key)
}
