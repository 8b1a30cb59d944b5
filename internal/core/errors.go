package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a per-event failure.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindUnknownSource ErrorKind = "unknown_source"
	KindTransport     ErrorKind = "transport"
	KindRejected      ErrorKind = "rejected"
	KindCredentials   ErrorKind = "credentials"
	KindGeneration    ErrorKind = "generation"
	KindEncode        ErrorKind = "encode"
	KindNotAttempted  ErrorKind = "not_attempted"
	KindPanic         ErrorKind = "panic"
)

var (
	// ErrUnknownSource is returned by the router for a source missing from its table.
	ErrUnknownSource = errors.New("unknown source")
	// ErrCredentials wraps every credential resolution failure.
	ErrCredentials = errors.New("credentials unavailable")
	// ErrUnknownDestination is returned when a destination id is not configured.
	ErrUnknownDestination = fmt.Errorf("%w: unknown destination", ErrCredentials)
	// ErrGeneration wraps producer failures.
	ErrGeneration = errors.New("payload generation failed")
	// ErrEncode wraps wire serialization failures.
	ErrEncode = errors.New("payload encoding failed")
)

// RejectedError is returned when the collector answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Status     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("collector rejected event: %s", e.Status)
}

// KindOf maps an error to its ErrorKind. Unclassified errors count as transport errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		return KindRejected
	case errors.Is(err, ErrUnknownSource):
		return KindUnknownSource
	case errors.Is(err, ErrCredentials):
		return KindCredentials
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrEncode):
		return KindEncode
	case errors.Is(err, context.Canceled):
		return KindNotAttempted
	default:
		return KindTransport
	}
}
