// Package aggregate folds dispatch results into per-phase and overall
// counters, and decides whether a finished run failed systemically.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"sortie/internal/core"
)

// Counters are purely additive tallies. Sent counts every folded result.
type Counters struct {
	Sent         int                    `json:"sent"`
	OK           int                    `json:"ok"`
	Failed       int                    `json:"failed"`
	NotAttempted int                    `json:"notAttempted"`
	BytesSent    int64                  `json:"bytesSent"`
	ByKind       map[core.ErrorKind]int `json:"byKind,omitempty"`
}

// Attempted is the number of results that reached a worker.
func (c Counters) Attempted() int { return c.OK + c.Failed }

func (c *Counters) add(r core.DispatchResult) {
	c.Sent++
	switch {
	case !r.Attempted:
		c.NotAttempted++
	case r.Success:
		c.OK++
	default:
		c.Failed++
	}
	c.BytesSent += r.BytesSent
	if r.Kind != core.KindNone {
		if c.ByKind == nil {
			c.ByKind = make(map[core.ErrorKind]int)
		}
		c.ByKind[r.Kind]++
	}
}

func (c Counters) clone() Counters {
	out := c
	if c.ByKind != nil {
		out.ByKind = make(map[core.ErrorKind]int, len(c.ByKind))
		for k, v := range c.ByKind {
			out.ByKind[k] = v
		}
	}
	return out
}

// EventRecord is the retained per-event outcome.
type EventRecord struct {
	Seq        int            `json:"seq"`
	Source     string         `json:"source"`
	Phase      string         `json:"phase"`
	Timestamp  time.Time      `json:"timestamp"`
	Attempted  bool           `json:"attempted"`
	Success    bool           `json:"success"`
	HTTPStatus int            `json:"httpStatus,omitempty"`
	Kind       core.ErrorKind `json:"errorKind,omitempty"`
	Error      string         `json:"error,omitempty"`
	Latency    time.Duration  `json:"latency"`
}

// Summary is a point-in-time copy of the aggregate.
type Summary struct {
	Overall    Counters            `json:"overall"`
	PerPhase   map[string]Counters `json:"perPhase"`
	PhaseOrder []string            `json:"phaseOrder"`
	Elapsed    time.Duration       `json:"elapsed"`
	Throughput float64             `json:"throughput"`
	Latency    DurationMetrics     `json:"latency"`
	LastPhase  string              `json:"lastPhase,omitempty"`
	Events     []EventRecord       `json:"events,omitempty"`
}

// Options configure an Aggregator.
type Options struct {
	// Phases pre-registers phase names in display order.
	Phases []string
	// KeepEvents retains one EventRecord per folded result.
	KeepEvents bool
	Clock      core.Clock
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	clock      core.Clock
	keepEvents bool
	start      time.Time
	end        time.Time

	overall   Counters
	phases    map[string]*Counters
	order     []string
	latencies []time.Duration
	events    []EventRecord
	lastPhase string
}

func New(opts Options) *Aggregator {
	clock := core.OrReal(opts.Clock)
	a := &Aggregator{
		clock:      clock,
		keepEvents: opts.KeepEvents,
		start:      clock.Now(),
		phases:     make(map[string]*Counters),
	}
	for _, p := range opts.Phases {
		a.phase(p)
	}
	return a
}

func (a *Aggregator) phase(name string) *Counters {
	c, ok := a.phases[name]
	if !ok {
		c = &Counters{}
		a.phases[name] = c
		a.order = append(a.order, name)
	}
	return c
}

// Fold adds one result and returns the number folded so far.
func (a *Aggregator) Fold(r core.DispatchResult) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.overall.add(r)
	phase := ""
	if r.Envelope != nil {
		phase = r.Envelope.Phase
	}
	a.phase(phase).add(r)
	a.lastPhase = phase
	if r.Attempted {
		a.latencies = append(a.latencies, r.Latency)
	}
	if a.keepEvents {
		rec := EventRecord{
			Attempted:  r.Attempted,
			Success:    r.Success,
			HTTPStatus: r.HTTPStatus,
			Kind:       r.Kind,
			Error:      r.Error,
			Latency:    r.Latency,
		}
		if r.Envelope != nil {
			rec.Seq = r.Envelope.Seq
			rec.Source = r.Envelope.Source
			rec.Phase = r.Envelope.Phase
			rec.Timestamp = r.Envelope.Timestamp
		}
		a.events = append(a.events, rec)
	}
	return a.overall.Sent
}

// Close freezes the elapsed time. Results folded afterwards are still counted.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.end.IsZero() {
		a.end = a.clock.Now()
	}
}

// Snapshot copies the current state.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.end
	if end.IsZero() {
		end = a.clock.Now()
	}
	s := Summary{
		Overall:    a.overall.clone(),
		PerPhase:   make(map[string]Counters, len(a.phases)),
		PhaseOrder: append([]string(nil), a.order...),
		Elapsed:    end.Sub(a.start),
		Latency:    ComputeDurationMetrics(a.latencies),
		LastPhase:  a.lastPhase,
	}
	for name, c := range a.phases {
		s.PerPhase[name] = c.clone()
	}
	if s.Elapsed > 0 {
		s.Throughput = float64(s.Overall.Attempted()) / s.Elapsed.Seconds()
	}
	if a.keepEvents {
		s.Events = append([]EventRecord(nil), a.events...)
		sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].Seq < s.Events[j].Seq })
	}
	return s
}
