package security

import (
	"net/url"
	"sync"
)

// Engine holds the process-wide default policy. Construct one per process
// and pass it to the components that fetch; there is no package-level state.
type Engine struct {
	base Policy
	mu   sync.RWMutex
	dev  bool
}

// NewEngine validates p and returns an engine serving it as the default.
func NewEngine(p Policy) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Engine{base: p.Clone()}, nil
}

// Policy returns a snapshot of the effective default policy.
// In development mode it is DevelopmentPolicy of the configured policy.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.dev {
		return DevelopmentPolicy(e.base)
	}

	return e.base.Clone()
}

// Configure replaces the default policy. Snapshots already taken by
// in-flight requests are unaffected.
func (e *Engine) Configure(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.base = p.Clone()
	e.mu.Unlock()

	return nil
}

// Update applies fn to a copy of the configured policy and installs the
// result if it validates.
func (e *Engine) Update(fn func(*Policy)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.base.Clone()
	fn(&p)
	if err := p.Validate(); err != nil {
		return err
	}
	e.base = p

	return nil
}

// SetDevelopmentMode toggles relaxed protocol and localhost rules.
// Size and time caps stay as configured.
func (e *Engine) SetDevelopmentMode(on bool) {
	e.mu.Lock()
	e.dev = on
	e.mu.Unlock()
}

// Development reports whether development mode is on.
func (e *Engine) Development() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.dev
}

// CheckURL screens raw against the current default policy.
func (e *Engine) CheckURL(raw string) (*url.URL, error) {
	return CheckURL(raw, e.Policy())
}
