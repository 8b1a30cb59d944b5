package aggregate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"sortie/internal/core"
)

// Header identifies the run a report belongs to.
type Header struct {
	ExecutionID string `json:"executionId"`
	ScenarioID  string `json:"scenarioId"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// FormatText writes a human-readable report.
func FormatText(w io.Writer, h Header, s Summary, v *Verdict) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Sortie - Execution Results")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Execution:      %s\n", h.ExecutionID)
	fmt.Fprintf(w, "Scenario:       %s\n", h.ScenarioID)
	fmt.Fprintf(w, "Status:         %s\n", h.Status)
	if h.Error != "" {
		fmt.Fprintf(w, "Error:          %s\n", h.Error)
	}
	fmt.Fprintf(w, "Duration:       %v\n", s.Elapsed.Round(time.Millisecond))

	o := s.Overall
	if o.Sent == 0 {
		fmt.Fprintln(w, "No events dispatched")
		return
	}
	fmt.Fprintf(w, "Events:         %s\n", formatNumber(o.Sent))
	fmt.Fprintf(w, "Delivered:      %s (%.1f%%)\n", formatNumber(o.OK), percent(o.OK, o.Sent))
	fmt.Fprintf(w, "Failed:         %s\n", formatNumber(o.Failed))
	if o.NotAttempted > 0 {
		fmt.Fprintf(w, "Not attempted:  %s\n", formatNumber(o.NotAttempted))
	}
	fmt.Fprintf(w, "Events/sec:     %.1f\n", s.Throughput)

	if o.Attempted() > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Send Latency:")
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Latency.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(s.Latency.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Latency.P50))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Latency.P95))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Latency.Max))
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Phase:")
	for _, name := range s.PhaseOrder {
		c := s.PerPhase[name]
		fmt.Fprintf(w, "  %-28s %s sent  %s ok  %s failed\n",
			name, formatNumber(c.Sent), formatNumber(c.OK), formatNumber(c.Failed))
	}

	if kinds := sortedKinds(o.ByKind); len(kinds) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Errors:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-16s %s\n", k, formatNumber(o.ByKind[k]))
		}
	}

	if v != nil && v.Rate > 0 {
		fmt.Fprintln(w, "")
		symbol := "✓"
		if v.Failed {
			symbol = "✗"
		}
		fmt.Fprintf(w, "%s failure rate %.2f%% (threshold %s)\n", symbol, v.Rate, v.Threshold)
	}
}

// FormatJSON writes the report as indented JSON.
func FormatJSON(w io.Writer, h Header, s Summary, v *Verdict) {
	output := struct {
		Header
		Duration   string              `json:"duration"`
		Overall    Counters            `json:"overall"`
		Throughput float64             `json:"eventsPerSec"`
		Latency    jsonDurationMetrics `json:"latency"`
		Phases     []jsonPhase         `json:"phases"`
		Verdict    *Verdict            `json:"verdict,omitempty"`
		Events     []EventRecord       `json:"events,omitempty"`
	}{
		Header:     h,
		Duration:   s.Elapsed.Round(time.Millisecond).String(),
		Overall:    s.Overall,
		Throughput: s.Throughput,
		Latency:    toJSONDurationMetrics(s.Latency),
		Phases:     make([]jsonPhase, 0, len(s.PhaseOrder)),
		Verdict:    v,
		Events:     s.Events,
	}
	for _, name := range s.PhaseOrder {
		output.Phases = append(output.Phases, jsonPhase{Name: name, Counters: s.PerPhase[name]})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonPhase struct {
	Name string `json:"name"`
	Counters
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func sortedKinds(m map[core.ErrorKind]int) []core.ErrorKind {
	out := make([]core.ErrorKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
