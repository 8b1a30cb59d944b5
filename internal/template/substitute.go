// Package template renders ${...} placeholders in sample payloads so every
// generated event carries fresh identifiers, numbers and timestamps.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"sortie/internal/core"
)

// varPattern matches ${var}, ${env:VAR} and ${fn(args)} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Renderer evaluates placeholders against a clock and a variable set.
type Renderer struct {
	clock core.Clock
}

func NewRenderer(clock core.Clock) *Renderer {
	return &Renderer{clock: core.OrReal(clock)}
}

// Substitute replaces ${fn(args)}, ${env:VAR} and ${var} placeholders in
// text. Every failure is reported, joined. Text without placeholders is
// returned unchanged. vars may be nil.
func (r *Renderer) Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	now := r.clock.Now()
	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]

		if out, ok, err := evalFunction(name, now); ok {
			if err != nil {
				errs = append(errs, err)
				return match
			}
			return out
		}

		if strings.HasPrefix(name, "env:") {
			envName := name[4:]
			if val, ok := os.LookupEnv(envName); ok {
				return val
			}
			errs = append(errs, fmt.Errorf("env var %q not set", envName))
			return match
		}

		if vars != nil {
			if val, ok := vars.Get(name); ok {
				return fmt.Sprintf("%v", val)
			}
		}
		errs = append(errs, fmt.Errorf("variable %q not found", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// Render substitutes every string inside v, descending into maps and
// slices. The input is not modified.
func (r *Renderer) Render(v any, vars core.Variables) (any, error) {
	switch val := v.(type) {
	case string:
		return r.Substitute(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		var errs []error
		for k, item := range val {
			rendered, err := r.Render(item, vars)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %q: %w", k, err))
				continue
			}
			out[k] = rendered
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := r.Render(item, vars)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// Substitute renders text with the real clock.
func Substitute(text string, vars core.Variables) (string, error) {
	return NewRenderer(nil).Substitute(text, vars)
}
