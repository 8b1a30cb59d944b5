// Package scenario holds attack scenario templates, the scenario catalog and
// the timeline builder that expands a template into time-ordered envelopes.
package scenario

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyTemplate is returned for a template without phases.
	ErrEmptyTemplate = errors.New("scenario template has no phases")
	// ErrInvalidTemplate is returned for malformed templates.
	ErrInvalidTemplate = errors.New("invalid scenario template")
	// ErrScenarioNotFound is returned by the catalog for unknown ids.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrDuplicateScenario is returned when adding an id that already exists.
	ErrDuplicateScenario = errors.New("scenario already exists")
)

// Phase is one ordered stage of a scenario.
// Duration spaces the timeline only, it is never enforced on the wall clock.
type Phase struct {
	Name     string        `yaml:"name" json:"name" mapstructure:"name"`
	Sources  []string      `yaml:"sources" json:"sources" mapstructure:"sources"`
	Duration time.Duration `yaml:"duration" json:"duration" mapstructure:"duration"`
}

// Template is a named multi-phase attack simulation.
type Template struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Phases      []Phase `yaml:"phases" json:"phases"`
	Custom      bool    `yaml:"-" json:"custom"`
}

// Validate reports whether the template can be built into a timeline.
func (t *Template) Validate() error {
	if len(t.Phases) == 0 {
		return ErrEmptyTemplate
	}
	for i, p := range t.Phases {
		if p.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", ErrInvalidTemplate, i)
		}
		if p.Duration < 0 {
			return fmt.Errorf("%w: phase %q has negative duration %v", ErrInvalidTemplate, p.Name, p.Duration)
		}
		for j, s := range p.Sources {
			if s == "" {
				return fmt.Errorf("%w: phase %q source %d is empty", ErrInvalidTemplate, p.Name, j)
			}
		}
	}
	return nil
}

// TotalDuration returns the sum of the durations of phases that have sources.
func (t *Template) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range t.Phases {
		if len(p.Sources) > 0 {
			total += p.Duration
		}
	}
	return total
}

// EventCount is the number of envelopes Build will produce.
func (t *Template) EventCount() int {
	n := 0
	for _, p := range t.Phases {
		n += len(p.Sources)
	}
	return n
}

// Sources returns the distinct source names in declaration order.
func (t *Template) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range t.Phases {
		for _, s := range p.Sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func (t Template) clone() Template {
	c := t
	c.Phases = make([]Phase, len(t.Phases))
	for i, p := range t.Phases {
		c.Phases[i] = p
		c.Phases[i].Sources = append([]string(nil), p.Sources...)
	}
	return c
}

// IsBuildError reports whether err means a template cannot be built.
func IsBuildError(err error) bool {
	return errors.Is(err, ErrEmptyTemplate) || errors.Is(err, ErrInvalidTemplate)
}
