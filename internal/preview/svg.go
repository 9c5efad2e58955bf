// Package preview renders prepared geometry into standalone SVG documents and
// raster images for inspection outside a browser.
package preview

import (
	"bytes"
	"fmt"
	"io"
	"text/template"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/woozymasta/geoguard/internal/prepare"
)

const svgMediaType = "image/svg+xml"

// Style holds the presentation attributes of a preview.
type Style struct {
	Background string `yaml:"background" json:"background"`
	Fill       string `yaml:"fill" json:"fill"`
	Stroke     string `yaml:"stroke" json:"stroke"`
	Borders    string `yaml:"borders" json:"borders"`
	Outline    string `yaml:"outline" json:"outline"`
}

// DefaultStyle is a light land-on-water palette.
var DefaultStyle = Style{
	Background: "#dbe9f4",
	Fill:       "#eae6dc",
	Stroke:     "#b8b2a4",
	Borders:    "#ffffff",
	Outline:    "#8c8677",
}

// Document is everything an SVG preview draws.
type Document struct {
	Features []prepare.PreparedFeature
	Mesh     prepare.Mesh
	Style    Style
	Width    float64
	Height   float64
}

var svgTemplate = template.Must(template.New("svg").Funcs(template.FuncMap{
	"name": featureName,
}).Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
<rect width="100%" height="100%" fill="{{.Style.Background}}"/>
<g class="geographies" fill="{{.Style.Fill}}" stroke="{{.Style.Stroke}}" stroke-width="0.5">
{{- range .Features}}{{if .Path}}
<path id="{{.Key}}" d="{{.Path}}">{{with name .Properties}}<title>{{html .}}</title>{{end}}</path>
{{- end}}{{end}}
</g>
{{- with .Mesh.Borders}}
<path class="borders" d="{{.}}" fill="none" stroke="{{$.Style.Borders}}" stroke-width="0.5"/>
{{- end}}
{{- with .Mesh.Outline}}
<path class="outline" d="{{.}}" fill="none" stroke="{{$.Style.Outline}}" stroke-width="1"/>
{{- end}}
</svg>
`))

// WriteSVG renders doc as a minified SVG document.
func WriteSVG(w io.Writer, doc Document) error {
	if doc.Style == (Style{}) {
		doc.Style = DefaultStyle
	}

	var raw bytes.Buffer
	if err := svgTemplate.Execute(&raw, doc); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}

	m := minify.New()
	m.AddFunc(svgMediaType, svg.Minify)
	if err := m.Minify(svgMediaType, w, &raw); err != nil {
		return fmt.Errorf("minify svg: %w", err)
	}

	return nil
}

func featureName(props map[string]any) string {
	for _, k := range []string{"name", "NAME", "name_en", "ADMIN"} {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}

	return ""
}
