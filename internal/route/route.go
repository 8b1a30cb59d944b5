// Package route maps logical source names to collector routing decisions:
// which product they belong to, how the payload is put on the wire and which
// ingestion path of the collector receives it.
package route

import (
	"fmt"
	"sort"

	"sortie/internal/core"
)

// Format is the wire encoding of a payload.
type Format string

const (
	FormatJSON Format = "json"
	FormatRaw  Format = "raw"
	FormatCSV  Format = "csv"
)

// Collector ingestion paths, relative to the destination base URL.
const (
	SubpathEvent = "/event"
	SubpathRaw   = "/raw"
)

// ParseFormat validates a format name. Empty means raw.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatRaw, FormatCSV:
		return Format(s), nil
	case "":
		return FormatRaw, nil
	}
	return "", fmt.Errorf("unknown wire format %q (use json, raw or csv)", s)
}

// Subpath returns the ingestion path for the format. Only structured events
// go to the event path, raw lines and CSV share the raw path.
func (f Format) Subpath() string {
	if f == FormatJSON {
		return SubpathEvent
	}
	return SubpathRaw
}

// Entry is the configuration form of one routing table row.
type Entry struct {
	Source     string            `yaml:"source" json:"source"`
	Product    string            `yaml:"product,omitempty" json:"product,omitempty"`
	Format     Format            `yaml:"format" json:"format"`
	Sourcetype string            `yaml:"sourcetype,omitempty" json:"sourcetype,omitempty"`
	Columns    []string          `yaml:"columns,omitempty" json:"columns,omitempty"`
	Attrs      map[string]string `yaml:"attrs,omitempty" json:"attrs,omitempty"`
}

// Route is the resolved routing decision for a source.
type Route struct {
	Source     string
	Product    string
	Format     Format
	Subpath    string
	Sourcetype string
	Columns    []string
	Attrs      map[string]string
}

// Router is a static lookup table, built once and read concurrently.
type Router struct {
	routes map[string]Route
}

// NewRouter builds a router. Later entries for the same source replace
// earlier ones, so a configured table can be layered over DefaultTable.
func NewRouter(entries []Entry) (*Router, error) {
	r := &Router{routes: make(map[string]Route, len(entries))}
	for i, e := range entries {
		if e.Source == "" {
			return nil, fmt.Errorf("route %d: source is required", i)
		}
		format, err := ParseFormat(string(e.Format))
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", e.Source, err)
		}
		product := e.Product
		if product == "" {
			product = e.Source
		}
		sourcetype := e.Sourcetype
		if sourcetype == "" {
			sourcetype = product
		}
		attrs := make(map[string]string, len(e.Attrs))
		for k, v := range e.Attrs {
			attrs[k] = v
		}
		r.routes[e.Source] = Route{
			Source:     e.Source,
			Product:    product,
			Format:     format,
			Subpath:    format.Subpath(),
			Sourcetype: sourcetype,
			Columns:    append([]string(nil), e.Columns...),
			Attrs:      attrs,
		}
	}
	return r, nil
}

// Resolve returns the route for a source, or core.ErrUnknownSource.
func (r *Router) Resolve(source string) (Route, error) {
	rt, ok := r.routes[source]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", core.ErrUnknownSource, source)
	}
	return rt, nil
}

// Sources lists the routed source names, sorted.
func (r *Router) Sources() []string {
	out := make([]string, 0, len(r.routes))
	for s := range r.routes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Missing returns the sources from the list that have no route.
func (r *Router) Missing(sources []string) []string {
	var out []string
	for _, s := range sources {
		if _, ok := r.routes[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
