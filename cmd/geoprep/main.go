// Command geoprep fetches one geography through the guarded pipeline and
// writes prepared paths, an SVG preview or a WebP thumbnail.
package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/geoguard/internal/fetcher"
	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/logger"
	"github.com/woozymasta/geoguard/internal/prepare"
	"github.com/woozymasta/geoguard/internal/preview"
	"github.com/woozymasta/geoguard/internal/projection"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Object      string        `short:"o" long:"object"      env:"GEO_OBJECT"  description:"TopoJSON object to read (default: first)"`
	Integrity   string        `short:"i" long:"integrity"   env:"GEO_SRI"     description:"Expected SRI hash, e.g. sha384-..."`
	Projection  string        `short:"j" long:"projection"  description:"Projection" choice:"mercator" choice:"identity" default:"mercator"`
	Format      string        `short:"f" long:"format"      description:"Output format" choice:"json" choice:"yaml" choice:"svg" choice:"webp" default:"json"`
	Output      string        `short:"O" long:"output"      description:"Output file, stdout when empty"`
	Width       float64       `short:"W" long:"width"       description:"Surface width"  default:"800"`
	Height      float64       `short:"H" long:"height"      description:"Surface height" default:"600"`
	Precision   int           `short:"P" long:"precision"   description:"Path coordinate decimals" default:"3"`
	Thumbnail   int           `short:"t" long:"thumbnail"   description:"Longest side of the WebP output, 0 keeps the surface size"`
	Quality     float32       `short:"q" long:"quality"     description:"WebP quality" default:"85"`
	Timeout     time.Duration `short:"T" long:"timeout"     description:"Request timeout" default:"30s"`
	Development bool          `short:"d" long:"development" description:"Allow http://localhost sources"`

	Args struct {
		Source string `positional-arg-name:"SOURCE" description:"https URL or local file" required:"true"`
	} `positional-args:"yes"`
}

type output struct {
	Source   string             `json:"source,omitempty" yaml:"source,omitempty"`
	Outline  string             `json:"outline,omitempty" yaml:"outline,omitempty"`
	Borders  string             `json:"borders,omitempty" yaml:"borders,omitempty"`
	Features []prepare.Prepared `json:"features" yaml:"features"`
	Width    float64            `json:"width" yaml:"width"`
	Height   float64            `json:"height" yaml:"height"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	if !geo.IsValidMapDimensions(opts.Width, opts.Height) {
		log.Fatal().Float64("width", opts.Width).Float64("height", opts.Height).Msg("Invalid surface size")
	}

	g, err := load(opts)
	if err != nil {
		log.Fatal().Err(err).Str("source", opts.Args.Source).Msg("Failed to load geography")
	}

	proj := projection.Mercator(opts.Width, opts.Height)
	if opts.Projection == "identity" {
		proj = projection.Identity()
	}

	w := io.Writer(os.Stdout)
	if opts.Output != "" {
		file, err := os.Create(opts.Output)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to create output file")
		}
		defer func() { _ = file.Close() }()
		w = file
	}
	bw := bufio.NewWriter(w)

	if err := write(bw, g, proj, opts); err != nil {
		log.Fatal().Err(err).Str("format", opts.Format).Msg("Failed to write output")
	}
	if err := bw.Flush(); err != nil {
		log.Fatal().Err(err).Msg("Failed to flush output")
	}

	log.Info().
		Str("source", opts.Args.Source).
		Int("features", len(g.Features)).
		Str("format", opts.Format).
		Msg("Geography prepared")
}

func load(opts Options) (*geo.Geography, error) {
	engine, err := security.NewEngine(security.DefaultPolicy())
	if err != nil {
		return nil, err
	}
	engine.SetDevelopmentMode(opts.Development)

	f, err := fetcher.New(fetcher.Config{Engine: engine, CacheCapacity: 1})
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var fo []fetcher.Option
	if opts.Object != "" {
		fo = append(fo, fetcher.WithObject(opts.Object))
	}
	if opts.Integrity != "" {
		rec, err := sri.ParseRecord(opts.Integrity)
		if err != nil {
			return nil, err
		}
		fo = append(fo, fetcher.WithSRI(rec))
	}
	fo = append(fo, fetcher.WithPolicy(func(p *security.Policy) { p.Timeout = opts.Timeout }))

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+5*time.Second)
	defer cancel()

	src := opts.Args.Source
	if _, err := os.Stat(src); err == nil {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		return f.Fetch(ctx, fetcher.Raw{Name: src, Data: data}, fo...)
	}

	return f.Fetch(ctx, fetcher.URL(src), fo...)
}

func write(w io.Writer, g *geo.Geography, proj prepare.Projection, opts Options) error {
	pr := prepare.Preparer{Precision: opts.Precision, PointRadius: prepare.Default.PointRadius}

	switch opts.Format {
	case "svg":
		return preview.WriteSVG(w, preview.Document{
			Features: pr.Prepare(g.Features, proj),
			Mesh:     pr.PrepareMesh(g, proj),
			Width:    opts.Width,
			Height:   opts.Height,
		})

	case "webp":
		img, err := preview.RenderGeography(g, proj, int(opts.Width), int(opts.Height), preview.DefaultStyle)
		if err != nil {
			return err
		}
		if opts.Thumbnail > 0 {
			return preview.EncodeWebP(w, preview.Thumbnail(img, opts.Thumbnail), opts.Quality)
		}
		return preview.EncodeWebP(w, img, opts.Quality)
	}

	mesh := pr.PrepareMesh(g, proj)
	out := output{
		Source:   g.Source,
		Outline:  mesh.Outline,
		Borders:  mesh.Borders,
		Width:    opts.Width,
		Height:   opts.Height,
		Features: make([]prepare.Prepared, 0, len(g.Features)),
	}
	for _, pf := range pr.Prepare(g.Features, proj) {
		out.Features = append(out.Features, pf.Slim())
	}

	if opts.Format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
