package scenario

import (
	"fmt"
	"sort"
	"time"

	"sortie/internal/core"
)

// DefaultDemoScale is how much real-time mode shrinks nominal phase durations.
const DefaultDemoScale = 10

// DefaultWindow is the compressed-mode window used when none is given.
const DefaultWindow = 10 * time.Minute

// ModeKind selects how nominal phase durations map to absolute timestamps.
type ModeKind int

const (
	// RealTime lays events out forward from now, scaled down for demos.
	RealTime ModeKind = iota
	// Compressed squeezes the whole template into [now-Window, now].
	Compressed
)

// Mode is the timestamp assignment policy for Build.
type Mode struct {
	Kind   ModeKind
	Scale  float64       // RealTime: divisor applied to nominal durations
	Window time.Duration // Compressed: width of the window ending at now
}

// RealTimeMode returns a real-time mode with the given scale (<=0 means DefaultDemoScale).
func RealTimeMode(scale float64) Mode {
	return Mode{Kind: RealTime, Scale: scale}
}

// CompressedMode returns a compressed mode with the given window (<=0 means DefaultWindow).
func CompressedMode(window time.Duration) Mode {
	return Mode{Kind: Compressed, Window: window}
}

func (m Mode) String() string {
	if m.Kind == Compressed {
		return fmt.Sprintf("compressed(%v)", m.window())
	}
	return fmt.Sprintf("real-time(x1/%g)", m.scale())
}

func (m Mode) scale() float64 {
	if m.Scale <= 0 {
		return DefaultDemoScale
	}
	return m.Scale
}

func (m Mode) window() time.Duration {
	if m.Window <= 0 {
		return DefaultWindow
	}
	return m.Window
}

type slot struct {
	env    core.Envelope
	offset time.Duration
	source int
}

// Build expands a template into envelopes sorted by timestamp, then phase
// declaration order, then source declaration order. Seq is the position in
// that order. Payloads are left empty; see Fill.
//
// Each phase occupies a slot of its nominal duration and spreads its sources
// evenly across it. Phases without sources produce nothing and take no time.
func Build(t Template, mode Mode, now time.Time) ([]core.Envelope, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	slots := make([]slot, 0, t.EventCount())
	var phaseStart, last time.Duration
	for pi, p := range t.Phases {
		n := len(p.Sources)
		if n == 0 {
			continue
		}
		for si, src := range p.Sources {
			off := phaseStart + p.Duration*time.Duration(si)/time.Duration(n)
			if off > last {
				last = off
			}
			slots = append(slots, slot{
				env:    core.Envelope{Source: src, Phase: p.Name, PhaseIndex: pi},
				offset: off,
				source: si,
			})
		}
		phaseStart += p.Duration
	}

	for i := range slots {
		slots[i].env.Timestamp = place(mode, now, slots[i].offset, last)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.env.Timestamp.Equal(b.env.Timestamp) {
			return a.env.Timestamp.Before(b.env.Timestamp)
		}
		if a.env.PhaseIndex != b.env.PhaseIndex {
			return a.env.PhaseIndex < b.env.PhaseIndex
		}
		return a.source < b.source
	})

	envs := make([]core.Envelope, len(slots))
	for i, s := range slots {
		envs[i] = s.env
		envs[i].Seq = i
	}
	return envs, nil
}

// place maps a nominal offset to an absolute timestamp.
func place(mode Mode, now time.Time, offset, last time.Duration) time.Time {
	if mode.Kind != Compressed {
		return now.Add(time.Duration(float64(offset) / mode.scale()))
	}
	w := mode.window()
	start := now.Add(-w)
	switch {
	case last == 0:
		return start
	case offset == last:
		return now
	default:
		return start.Add(time.Duration(float64(offset) / float64(last) * float64(w)))
	}
}

// Fill asks the registry for one payload per envelope. A producer failure is
// kept on the envelope so the dispatcher can record it as a per-event failure.
func Fill(envs []core.Envelope, reg core.SourceRegistry) {
	for i := range envs {
		payload, err := reg.Generate(envs[i].Source)
		if err != nil {
			envs[i].GenErr = fmt.Errorf("%w: %s: %v", core.ErrGeneration, envs[i].Source, err)
			continue
		}
		envs[i].Payload = payload
	}
}

// PhaseSpan summarizes the envelopes of one phase.
type PhaseSpan struct {
	Name    string    `json:"name"`
	Index   int       `json:"index"`
	Count   int       `json:"count"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
	Sources []string  `json:"sources"`
}

// Spans groups a built timeline by phase, in phase declaration order.
// Phases without envelopes are included with Count 0 so callers see the full plan.
func Spans(t Template, envs []core.Envelope) []PhaseSpan {
	spans := make([]PhaseSpan, len(t.Phases))
	for i, p := range t.Phases {
		spans[i] = PhaseSpan{Name: p.Name, Index: i, Sources: append([]string(nil), p.Sources...)}
	}
	for _, e := range envs {
		if e.PhaseIndex < 0 || e.PhaseIndex >= len(spans) {
			continue
		}
		s := &spans[e.PhaseIndex]
		if s.Count == 0 || e.Timestamp.Before(s.First) {
			s.First = e.Timestamp
		}
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}
		s.Count++
	}
	return spans
}
