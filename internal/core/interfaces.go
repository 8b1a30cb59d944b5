// Package core defines the shared types and collaborator interfaces for sortie.
package core

import (
	"context"
	"time"
)

// Payload is the opaque event body returned by a source producer.
// Structured producers return map[string]any, raw producers return a string.
// Nothing in the engine inspects its shape beyond choosing a wire encoding.
type Payload = any

// Envelope is one timestamped, phase-tagged unit of work.
// Built once by the timeline builder and consumed once by the dispatcher.
type Envelope struct {
	Seq        int
	Source     string
	Phase      string
	PhaseIndex int
	Timestamp  time.Time
	Payload    Payload
	GenErr     error // producer failure, reported as a per-event generation error
}

// DispatchResult is the outcome of handing one envelope to the collector.
type DispatchResult struct {
	Envelope   *Envelope
	Attempted  bool
	Success    bool
	HTTPStatus int
	Kind       ErrorKind
	Error      string
	Latency    time.Duration
	BytesSent  int64
	DoneAt     time.Time
}

// Reporter receives dispatch results. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(DispatchResult)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(DispatchResult)

func (f ReporterFunc) Report(r DispatchResult) { f(r) }

// NullReporter discards all results.
var NullReporter Reporter = ReporterFunc(func(DispatchResult) {})

// SourceRegistry produces payloads for logical source names.
// Called concurrently; implementations must not share mutable state unguarded.
type SourceRegistry interface {
	Generate(source string) (Payload, error)
}

// GenerateFunc adapts a function to SourceRegistry.
type GenerateFunc func(source string) (Payload, error)

func (f GenerateFunc) Generate(source string) (Payload, error) { return f(source) }

// Credentials is what a destination resolves to.
type Credentials struct {
	BaseURL string
	Token   string
	Scheme  string
}

// AuthorizationHeader renders the collector Authorization header value.
func (c Credentials) AuthorizationHeader() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	return scheme + " " + c.Token
}

// DefaultAuthScheme is the HEC scheme used when a destination does not name one.
const DefaultAuthScheme = "Splunk"

// CredentialStore resolves a destination id into collector credentials.
// Read-only from the dispatcher's point of view.
type CredentialStore interface {
	Resolve(ctx context.Context, destinationID string) (Credentials, error)
}
