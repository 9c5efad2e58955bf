package preview

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/prepare"
)

// RenderGeography rasterizes features, borders and outline of g with style.
func RenderGeography(g *geo.Geography, p prepare.Projection, w, h int, style Style) (*image.RGBA, error) {
	if style == (Style{}) {
		style = DefaultStyle
	}

	colors := make(map[string]color.Color, 5)
	for _, s := range []string{style.Background, style.Fill, style.Stroke, style.Borders, style.Outline} {
		c, err := ParseColor(s)
		if err != nil {
			return nil, err
		}
		colors[s] = c
	}

	var land []prepare.Segment
	for _, f := range g.Features {
		land = append(land, prepare.Segments(f.Shape, p)...)
	}

	return Raster(w, h, colors[style.Background],
		Layer{Segments: land, Fill: colors[style.Fill], Stroke: colors[style.Stroke], Width: 0.5},
		Layer{Segments: prepare.Segments(g.Borders, p), Stroke: colors[style.Borders], Width: 0.5},
		Layer{Segments: prepare.Segments(g.Outline, p), Stroke: colors[style.Outline], Width: 1},
	), nil
}

// ParseColor reads "#rgb" and "#rrggbb" colors.
func ParseColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("color %q: want #rgb or #rrggbb", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("color %q: %w", s, err)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
