// Package config handles sortie's YAML configuration and its environment
// and flag overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"sortie/internal/aggregate"
	"sortie/internal/credential"
	"sortie/internal/execution"
	"sortie/internal/hec"
	"sortie/internal/pacing"
	"sortie/internal/registry"
	"sortie/internal/route"
	"sortie/internal/scenario"
)

// Config is the root configuration structure.
type Config struct {
	Dispatch     DispatchConfig                 `yaml:"dispatch"`
	Collector    hec.Hints                      `yaml:"collector"`
	Destination  string                         `yaml:"destination"`
	Destinations []credential.Destination       `yaml:"destinations"`
	Routes       []route.Entry                  `yaml:"routes"`
	Timeline     TimelineConfig                 `yaml:"timeline"`
	Scenarios    []map[string]any               `yaml:"scenarios"`
	Samples      map[string]registry.SampleSpec `yaml:"samples"`
	Synthetic    *bool                          `yaml:"synthetic,omitempty"`

	// dir is the directory of the loaded file; sample paths resolve against it.
	dir string
}

// DispatchConfig controls how envelopes are sent.
type DispatchConfig struct {
	Concurrency   int                     `yaml:"concurrency"`
	Pacing        pacing.Config           `yaml:",inline"`
	Timeout       time.Duration           `yaml:"timeout"`
	FailurePolicy aggregate.FailurePolicy `yaml:"failurePolicy"`
	CredentialTTL time.Duration           `yaml:"credentialTTL"`
}

// TimelineConfig controls how the fast and realtime speeds place events.
type TimelineConfig struct {
	Window    time.Duration `yaml:"window"`
	DemoScale float64       `yaml:"demoScale"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse parses YAML configuration. Relative sample paths resolve against
// the working directory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Dir is the directory the configuration was loaded from.
func (c *Config) Dir() string { return c.dir }

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := &c.Dispatch
	if d.Concurrency == 0 {
		d.Concurrency = 10
	}
	if d.Pacing.Mode == "" {
		d.Pacing.Mode = pacing.ModeImmediate
	}
	if d.Timeout == 0 {
		d.Timeout = hec.DefaultTimeout
	}
	if d.FailurePolicy.Threshold == "" {
		d.FailurePolicy.Threshold = aggregate.DefaultFailureThreshold
	}
	if d.FailurePolicy.MinAttempts == 0 {
		d.FailurePolicy.MinAttempts = aggregate.DefaultMinAttempts
	}
	if d.CredentialTTL == 0 {
		d.CredentialTTL = credential.DefaultTTL
	}
	if c.Destination == "" {
		c.Destination = execution.DefaultDestination
	}
	if c.Timeline.Window == 0 {
		c.Timeline.Window = scenario.DefaultWindow
	}
	if c.Timeline.DemoScale == 0 {
		c.Timeline.DemoScale = scenario.DefaultDemoScale
	}
}

// SyntheticEnabled reports whether sources without samples get a generated
// payload. It defaults to true.
func (c *Config) SyntheticEnabled() bool {
	return c.Synthetic == nil || *c.Synthetic
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	d := c.Dispatch
	if d.Concurrency < 1 {
		result = multierror.Append(result, fmt.Errorf("dispatch.concurrency must be >= 1, got %d", d.Concurrency))
	}
	if d.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch.timeout must not be negative"))
	}
	if _, err := pacing.New(d.Pacing); err != nil {
		result = multierror.Append(result, fmt.Errorf("dispatch: %w", err))
	}
	if err := d.FailurePolicy.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("dispatch.failurePolicy: %w", err))
	}

	seen := make(map[string]bool, len(c.Destinations))
	for _, dest := range c.Destinations {
		if err := dest.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if seen[dest.ID] {
			result = multierror.Append(result, fmt.Errorf("destination %q is defined twice", dest.ID))
		}
		seen[dest.ID] = true
	}
	if len(c.Destinations) > 0 && !seen[c.Destination] {
		result = multierror.Append(result, fmt.Errorf("destination %q is not defined", c.Destination))
	}

	if _, err := c.Router(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := c.Templates(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Timeline.Window < 0 || c.Timeline.DemoScale < 0 {
		result = multierror.Append(result, fmt.Errorf("timeline window and demoScale must not be negative"))
	}
	return result.ErrorOrNil()
}

// Router layers the configured routes over the built-in table.
func (c *Config) Router() (*route.Router, error) {
	entries := append(route.DefaultTable(), c.Routes...)
	return route.NewRouter(entries)
}

// Templates decodes the configured scenarios. Each needs an id.
func (c *Config) Templates() ([]scenario.Template, error) {
	var out []scenario.Template
	var result *multierror.Error
	for i, raw := range c.Scenarios {
		def := make(map[string]any, len(raw))
		for k, v := range raw {
			def[k] = v
		}
		id, _ := def["id"].(string)
		delete(def, "id")
		if id == "" {
			result = multierror.Append(result, fmt.Errorf("scenario %d: id is required", i))
			continue
		}
		t, err := scenario.DecodeCustom(def)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("scenario %q: %w", id, err))
			continue
		}
		t.ID = id
		t.Custom = true
		out = append(out, t)
	}
	return out, result.ErrorOrNil()
}

// Catalog returns the built-in scenarios plus the configured ones.
func (c *Config) Catalog() (*scenario.Catalog, error) {
	templates, err := c.Templates()
	if err != nil {
		return nil, err
	}
	return scenario.NewCatalog(nil, append(scenario.Builtins(), templates...)...)
}

// Credentials returns a cached store over the configured destinations.
func (c *Config) Credentials() *credential.Cached {
	return credential.NewCached(credential.NewStatic(c.Destinations...), c.Dispatch.CredentialTTL)
}

// Registry loads the configured sample files.
func (c *Config) Registry() (*registry.Registry, error) {
	return registry.Load(c.Samples, c.dir, registry.WithSynthetic(c.SyntheticEnabled()))
}

// Settings returns the engine settings.
func (c *Config) Settings() execution.Settings {
	return execution.Settings{
		Concurrency:   c.Dispatch.Concurrency,
		Pacing:        c.Dispatch.Pacing,
		Hints:         c.Collector,
		FailurePolicy: c.Dispatch.FailurePolicy,
		Destination:   c.Destination,
		Window:        c.Timeline.Window,
		DemoScale:     c.Timeline.DemoScale,
	}
}
