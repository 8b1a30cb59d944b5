// Package execution tracks scenario runs: their records, the state machine
// that moves them through their lifecycle, and the engine that drives a run
// from timeline build to dispatch completion.
package execution

import (
	"time"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("execution already finished")
	ErrInvalidSpeed      = errors.New("invalid speed")
)

// Record is the state of one run. Values handed out are copies.
type Record struct {
	ID           string     `json:"executionId"`
	ScenarioID   string     `json:"scenarioId"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	CurrentPhase string     `json:"currentPhase,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	Speed        string     `json:"speed"`
	DryRun       bool       `json:"dryRun"`
	Destination  string     `json:"destination,omitempty"`
	Total        int        `json:"total"`
	Completed    int        `json:"completed"`
	// Created orders records of the same scenario.
	Created int64 `json:"-"`
}

func (r *Record) clone() *Record {
	out := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// Outcome is the terminal state a run finishes in.
type Outcome struct {
	Status Status
	Error  string
}

func Completed() Outcome            { return Outcome{Status: StatusCompleted} }
func Stopped() Outcome              { return Outcome{Status: StatusStopped} }
func Failed(err error) Outcome      { return Outcome{Status: StatusFailed, Error: err.Error()} }
func FailedWith(msg string) Outcome { return Outcome{Status: StatusFailed, Error: msg} }
