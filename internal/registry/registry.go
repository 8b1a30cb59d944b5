package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sortie/internal/core"
	"sortie/internal/template"
)

// ErrNoSamples is returned for a source with no samples when the synthetic
// fallback is disabled.
var ErrNoSamples = errors.New("no samples for source")

// Registry implements core.SourceRegistry over loaded sample sources.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]*Source
	renderer  *template.Renderer
	clock     core.Clock
	synthetic bool
	seq       atomic.Uint64
}

type Option func(*Registry)

// WithClock sets the clock used by ${timestamp()} and ${date()}.
func WithClock(c core.Clock) Option {
	return func(r *Registry) { r.clock = core.OrReal(c) }
}

// WithSynthetic makes sources without samples produce a small generated
// payload instead of failing.
func WithSynthetic(enabled bool) Option {
	return func(r *Registry) { r.synthetic = enabled }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		sources:   make(map[string]*Source),
		clock:     core.RealClock{},
		synthetic: true,
	}
	for _, o := range opts {
		o(r)
	}
	r.renderer = template.NewRenderer(r.clock)
	return r
}

// Load reads every sample file in specs. Relative paths resolve against dir.
func Load(specs map[string]SampleSpec, dir string, opts ...Option) (*Registry, error) {
	r := New(opts...)
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		src, err := LoadFile(name, specs[name], dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", name, err))
			continue
		}
		r.Add(src)
		logrus.WithFields(logrus.Fields{"source": name, "samples": src.Len()}).Debug("samples loaded")
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Add registers or replaces the samples of a source.
func (r *Registry) Add(src *Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Name()] = src
}

// Sources lists the sources with samples, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Generate returns a fresh payload for source. Sample rows are rendered
// with the variables source and seq; the stored rows are never modified.
func (r *Registry) Generate(source string) (core.Payload, error) {
	seq := r.seq.Add(1)

	r.mu.RLock()
	src := r.sources[source]
	r.mu.RUnlock()

	if src == nil {
		if !r.synthetic {
			return nil, fmt.Errorf("%w %q", ErrNoSamples, source)
		}
		return map[string]any{
			"source":    source,
			"id":        uuid.NewString(),
			"seq":       seq,
			"timestamp": r.clock.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	vars := core.NewVariablesFrom(map[string]any{"source": source, "seq": seq})
	payload, err := r.renderer.Render(src.Next(), vars)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source, err)
	}
	return payload, nil
}
