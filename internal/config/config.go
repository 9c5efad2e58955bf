// Package config handles configuration loading and shared data structures.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/preview"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

// Config represents the root configuration file structure.
type Config struct {
	Security    *security.Policy `yaml:"security,omitempty" json:"security,omitempty"`
	SRI         SRI              `yaml:"sri" json:"sri"`
	Geographies []Geography      `yaml:"geographies" json:"geographies"`
	Render      Render           `yaml:"render" json:"render"`
	Cache       Cache            `yaml:"cache" json:"cache"`
	Development bool             `yaml:"development,omitempty" json:"development,omitempty"`
}

// SRI configures the integrity registry.
type SRI struct {
	Mode      sri.Mode      `yaml:"mode,omitempty" json:"mode,omitempty"`
	Algorithm sri.Algorithm `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	Pins      []sri.Pin     `yaml:"pins,omitempty" json:"pins,omitempty"`
}

// Cache bounds the resolved-geography cache.
type Cache struct {
	Capacity int `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

// Render holds defaults for prepared paths and previews.
type Render struct {
	Style     preview.Style `yaml:"style,omitempty" json:"style,omitempty"`
	Width     float64       `yaml:"width,omitempty" json:"width,omitempty"`
	Height    float64       `yaml:"height,omitempty" json:"height,omitempty"`
	Precision *int          `yaml:"precision,omitempty" json:"precision,omitempty"`
}

// Geography is a named reference served by the HTTP service.
type Geography struct {
	// SRI is an inline integrity string, e.g. "sha384-...".
	SRI         string   `yaml:"sri,omitempty" json:"-"`
	Name        string   `yaml:"name" json:"name"`
	URL         string   `yaml:"url,omitempty" json:"-"`
	File        string   `yaml:"file,omitempty" json:"-"`
	Object      string   `yaml:"object,omitempty" json:"object,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Preload     bool     `yaml:"preload,omitempty" json:"-"`
}

// Default render size and precision.
const (
	DefaultWidth     = 800
	DefaultHeight    = 600
	DefaultPrecision = 3
)

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes and checks a YAML document. Missing sections get defaults;
// a partial security section overlays security.DefaultPolicy.
func Parse(data []byte) (*Config, error) {
	base := security.DefaultPolicy()
	cfg := Config{Security: &base}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, geoerr.New(geoerr.KindConfiguration, "",
			geoerr.WithReason("invalid_yaml"), geoerr.WithCause(err))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SRI.Mode == "" {
		c.SRI.Mode = sri.ModeKnown
	}
	if c.SRI.Algorithm == "" {
		c.SRI.Algorithm = sri.DefaultAlgorithm
	}
	if c.Render.Width <= 0 {
		c.Render.Width = DefaultWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = DefaultHeight
	}
	if c.Render.Precision == nil {
		p := DefaultPrecision
		c.Render.Precision = &p
	}
}

// Policy returns the configured security policy, or the default one.
func (c *Config) Policy() security.Policy {
	if c.Security == nil {
		return security.DefaultPolicy()
	}

	return c.Security.Clone()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Security != nil {
		if err := c.Security.Validate(); err != nil {
			return err
		}
	}
	if !c.SRI.Mode.Valid() {
		return invalid("sri.mode %q is not one of known, strict, disabled", c.SRI.Mode)
	}
	if !c.SRI.Algorithm.Valid() {
		return invalid("sri.algorithm %q is not supported", c.SRI.Algorithm)
	}
	for _, pin := range c.SRI.Pins {
		if pin.URL == "" || pin.Hash == "" {
			return invalid("sri pin needs url and hash")
		}
	}

	seen := make(map[string]string)
	for _, g := range c.Geographies {
		if g.Name == "" {
			return invalid("geography without name")
		}
		if (g.URL == "") == (g.File == "") {
			return invalid("geography %q needs exactly one of url or file", g.Name)
		}
		for _, n := range append([]string{g.Name}, g.Aliases...) {
			key := strings.ToLower(n)
			if other, ok := seen[key]; ok {
				return invalid("name %q of geography %q already used by %q", n, g.Name, other)
			}
			seen[key] = g.Name
		}
	}

	return nil
}

// Registry builds the integrity registry described by the sri section.
// Configured pins are always enforced.
func (c *Config) Registry() (*sri.Registry, error) {
	pins := make([]sri.Pin, len(c.SRI.Pins))
	for i, p := range c.SRI.Pins {
		p.Enforce = true
		if p.Algorithm == "" {
			p.Algorithm = c.SRI.Algorithm
		}
		pins[i] = p
	}

	r := sri.NewRegistry(pins...)
	if err := r.SetMode(c.SRI.Mode); err != nil {
		return nil, err
	}

	for _, g := range c.Geographies {
		if g.SRI == "" || g.URL == "" {
			continue
		}
		rec, err := sri.ParseRecord(g.SRI)
		if err != nil {
			return nil, geoerr.WithGeography(err, g.Name)
		}
		r.Add(g.URL, rec)
	}

	return r, nil
}

func invalid(format string, args ...any) error {
	return geoerr.New(geoerr.KindConfiguration, "",
		geoerr.WithReason("invalid_config"), geoerr.WithMessage(format, args...))
}
