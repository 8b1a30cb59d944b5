package scenario

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sortie/internal/core"
)

// Summary is the listing view of a template.
type Summary struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	PhaseCount        int           `json:"phaseCount"`
	EventCount        int           `json:"eventCount"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	Sources           []string      `json:"sources"`
	Custom            bool          `json:"custom"`
}

// Catalog is the read-only set of known templates keyed by id.
// Templates can be appended at runtime but never replaced or mutated.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]Template
	order     []string
	clock     core.Clock
}

// NewCatalog creates a catalog seeded with templates. Each must validate.
func NewCatalog(clock core.Clock, templates ...Template) (*Catalog, error) {
	c := &Catalog{
		templates: make(map[string]Template, len(templates)),
		clock:     core.OrReal(clock),
	}
	for _, t := range templates {
		if err := c.Add(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog returns a catalog holding the built-in scenarios.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(nil, Builtins()...)
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios are invalid: %v", err))
	}
	return c
}

// Add appends a template. Ids must be unique.
func (c *Catalog) Add(t Template) error {
	if t.ID == "" {
		return fmt.Errorf("%w: template has no id", ErrInvalidTemplate)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("scenario %q: %w", t.ID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.templates[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateScenario, t.ID)
	}
	c.templates[t.ID] = t.clone()
	c.order = append(c.order, t.ID)
	return nil
}

// Get returns a copy of the template with the given id.
func (c *Catalog) Get(id string) (Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	return t.clone(), nil
}

// List returns summaries in insertion order, filtered by a case-insensitive
// search over name and description when search is non-empty.
func (c *Catalog) List(search string) []Summary {
	search = strings.ToLower(strings.TrimSpace(search))
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, 0, len(c.order))
	for _, id := range c.order {
		t := c.templates[id]
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, Summary{
			ID:                t.ID,
			Name:              t.Name,
			Description:       t.Description,
			PhaseCount:        len(t.Phases),
			EventCount:        t.EventCount(),
			EstimatedDuration: t.TotalDuration(),
			Sources:           t.Sources(),
			Custom:            t.Custom,
		})
	}
	return out
}

// IDs returns all template ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	ids := append([]string(nil), c.order...)
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CreateCustom decodes a loosely typed scenario definition, assigns it a
// custom_<unix> id and appends it to the catalog.
func (c *Catalog) CreateCustom(def map[string]any) (string, error) {
	t, err := DecodeCustom(def)
	if err != nil {
		return "", err
	}
	t.Custom = true

	base := fmt.Sprintf("custom_%d", c.clock.Now().Unix())
	for i := 1; ; i++ {
		t.ID = base
		if i > 1 {
			t.ID = fmt.Sprintf("%s_%d", base, i)
		}
		err = c.Add(t)
		if err == nil {
			return t.ID, nil
		}
		if !isDuplicate(err) {
			return "", err
		}
	}
}
