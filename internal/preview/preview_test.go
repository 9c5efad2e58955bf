package preview

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/prepare"
)

var scale10 = prepare.ProjectionFunc(func(c geo.Coordinates) (r2.Point, bool) {
	return r2.Point{X: float64(c.Lon) * 10, Y: float64(c.Lat) * 10}, true
})

func square(x0, y0, size float64) geo.Shape {
	return geo.Shape{Type: geo.TypePolygon, Polygons: [][]geo.Ring{{{
		geo.MustCoordinates(x0, y0),
		geo.MustCoordinates(x0+size, y0),
		geo.MustCoordinates(x0+size, y0+size),
		geo.MustCoordinates(x0, y0+size),
		geo.MustCoordinates(x0, y0),
	}}}}
}

func TestWriteSVG(t *testing.T) {
	fs := []geo.Feature{
		{Shape: square(0, 0, 1), Properties: map[string]any{"name": "A & B"}},
		{Shape: square(2, 2, 1)},
		{Shape: geo.Shape{}},
	}
	geo.AssignKeys(fs)

	doc := Document{
		Features: prepare.Prepare(fs, scale10),
		Mesh:     prepare.Mesh{Borders: "M0,0L10,10"},
		Width:    40,
		Height:   40,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, doc))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, `id="geo-0"`)
	assert.Contains(t, out, `id="geo-1"`)
	assert.NotContains(t, out, `id="geo-2"`)
	assert.Contains(t, out, "A &amp; B")
	assert.Contains(t, out, `class="borders"`)
	assert.NotContains(t, out, `class="outline"`)
}

func TestRaster(t *testing.T) {
	red := color.RGBA{R: 0xff, A: 0xff}
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	segs := prepare.Segments(square(1, 1, 2), scale10)
	img := Raster(40, 40, white, Layer{Segments: segs, Fill: red})

	assert.Equal(t, red, img.RGBAAt(20, 20))
	assert.Equal(t, white, img.RGBAAt(5, 5))
	assert.Equal(t, white, img.RGBAAt(35, 35))
}

func TestRasterStroke(t *testing.T) {
	black := color.RGBA{A: 0xff}
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	line := geo.Shape{Type: geo.TypeLineString, Lines: []geo.Ring{{
		geo.MustCoordinates(0, 2), geo.MustCoordinates(4, 2),
	}}}
	img := Raster(40, 40, white, Layer{Segments: prepare.Segments(line, scale10), Stroke: black, Width: 4})

	assert.Equal(t, black, img.RGBAAt(20, 20))
	assert.Equal(t, white, img.RGBAAt(20, 30))
}

func TestRenderGeography(t *testing.T) {
	g := &geo.Geography{Features: []geo.Feature{{Shape: square(1, 1, 2)}}}
	img, err := RenderGeography(g, scale10, 40, 40, Style{})
	require.NoError(t, err)

	fill, err := ParseColor(DefaultStyle.Fill)
	require.NoError(t, err)
	assert.Equal(t, fill, color.Color(img.RGBAAt(20, 20)))

	_, err = RenderGeography(g, scale10, 40, 40, Style{Background: "blue"})
	require.Error(t, err)
}

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	th := Thumbnail(src, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 50), th.Bounds())

	assert.Same(t, src, Thumbnail(src, 1000))
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#0a0")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 0xaa, A: 0xff}, c)

	c, err = ParseColor("#102030")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, c)

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}
