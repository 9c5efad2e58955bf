// Command sri-gen downloads geography URLs under the security policy and
// prints integrity pins ready for the sri.pins section of the config.
package main

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/geoguard/internal/config"
	"github.com/woozymasta/geoguard/internal/fetcher"
	"github.com/woozymasta/geoguard/internal/logger"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string        `short:"c" long:"config"      env:"CONFIG_FILE" description:"Read URLs and policy from a configuration file"`
	URLs        []string      `short:"u" long:"url"         description:"Geography URL, repeatable"`
	List        string        `short:"l" long:"list"        description:"File with one URL per line"`
	Algorithm   string        `short:"a" long:"algorithm"   description:"Digest algorithm" choice:"sha256" choice:"sha384" choice:"sha512" default:"sha384"`
	Concurrency int           `short:"p" long:"concurrency" description:"Parallel downloads" default:"4"`
	Timeout     time.Duration `short:"T" long:"timeout"     description:"Overall deadline" default:"2m"`
	Output      string        `short:"O" long:"output"      description:"Output file, stdout when empty"`
	Development bool          `short:"d" long:"development" description:"Allow http://localhost sources"`
}

type document struct {
	Pins []sri.Pin `yaml:"pins"`
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

	policy := security.DefaultPolicy()
	urls := append([]string(nil), opts.URLs...)

	if opts.ConfigFile != "" {
		cfg, err := config.Load(opts.ConfigFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		policy = cfg.Policy()
		for _, g := range cfg.Geographies {
			if g.URL != "" {
				urls = append(urls, g.URL)
			}
		}
	}

	if opts.List != "" {
		listed, err := readList(opts.List)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.List).Msg("Failed to read URL list")
		}
		urls = append(urls, listed...)
	}

	urls = dedupe(urls)
	if len(urls) == 0 {
		log.Fatal().Msg("No URLs given")
	}

	engine, err := security.NewEngine(policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid security policy")
	}
	engine.SetDevelopmentMode(opts.Development)

	f, err := fetcher.New(fetcher.Config{Engine: engine})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetcher")
	}
	defer func() { _ = f.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	log.Info().
		Int("urls", len(urls)).
		Str("algorithm", opts.Algorithm).
		Int("concurrency", opts.Concurrency).
		Msg("Generating integrity pins")

	var doc document
	failed := 0
	for _, res := range sri.GenerateForURLs(ctx, f, urls, sri.Algorithm(opts.Algorithm), opts.Concurrency) {
		if res.Err != nil {
			failed++
			log.Error().Err(res.Err).Str("url", res.Pin.URL).Msg("Failed to generate pin")
			continue
		}
		doc.Pins = append(doc.Pins, res.Pin)
		log.Debug().Str("url", res.Pin.URL).Str("hash", res.Pin.Hash).Msg("Pin generated")
	}

	out := os.Stdout
	if opts.Output != "" {
		file, err := os.Create(opts.Output)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to create output file")
		}
		defer func() { _ = file.Close() }()
		out = file
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		log.Fatal().Err(err).Msg("Failed to write pins")
	}
	_ = enc.Close()

	log.Info().Int("generated", len(doc.Pins)).Int("failed", failed).Msg("Integrity pins written")
	if failed > 0 {
		os.Exit(1)
	}
}

func readList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var urls []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}

	return urls, sc.Err()
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}

	return out
}
