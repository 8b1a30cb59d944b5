package aggregate

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"sortie/internal/core"
)

func sampleSummary() Summary {
	return Summary{
		Overall: Counters{
			Sent: 1200, OK: 1150, Failed: 40, NotAttempted: 10,
			ByKind: map[core.ErrorKind]int{core.KindRejected: 40, core.KindNotAttempted: 10},
		},
		PerPhase: map[string]Counters{
			"Initial Access": {Sent: 700, OK: 690, Failed: 10},
			"Exfiltration":   {Sent: 500, OK: 460, Failed: 30, NotAttempted: 10},
		},
		PhaseOrder: []string{"Initial Access", "Exfiltration"},
		Elapsed:    12 * time.Second,
		Throughput: 99.2,
		Latency: DurationMetrics{
			Min: 2 * time.Millisecond,
			Avg: 15 * time.Millisecond,
			P50: 12 * time.Millisecond,
			P95: 40 * time.Millisecond,
			Max: 1500 * time.Millisecond,
		},
	}
}

func TestFormatText_BasicOutput(t *testing.T) {
	var buf bytes.Buffer
	h := Header{ExecutionID: "abc", ScenarioID: "ransomware_attack", Status: "stopped"}
	FormatText(&buf, h, sampleSummary(), &Verdict{Rate: 3.36, Threshold: "90%"})

	output := buf.String()
	for _, want := range []string{
		"Sortie - Execution Results",
		"Scenario:       ransomware_attack",
		"Status:         stopped",
		"Events:         1,200",
		"Not attempted:  10",
		"Max:    1.5s",
		"Initial Access",
		"rejected",
		"✓ failure rate 3.36% (threshold 90%)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Index(output, "Initial Access") > strings.Index(output, "Exfiltration") {
		t.Error("phases should be listed in declaration order")
	}
}

func TestFormatText_Empty(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, Header{Status: "completed"}, Summary{}, nil)

	if !strings.Contains(buf.String(), "No events dispatched") {
		t.Errorf("expected empty message, got: %s", buf.String())
	}
}

func TestFormatText_FailedVerdict(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, Header{Status: "failed", Error: "collector unreachable"}, sampleSummary(),
		&Verdict{Failed: true, Rate: 97, Threshold: "90%"})

	output := buf.String()
	if !strings.Contains(output, "Error:          collector unreachable") {
		t.Errorf("expected error line, got: %s", output)
	}
	if !strings.Contains(output, "✗ failure rate") {
		t.Errorf("expected failed verdict, got: %s", output)
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	FormatJSON(&buf, Header{ExecutionID: "abc", ScenarioID: "s", Status: "completed"}, sampleSummary(), nil)

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out["executionId"] != "abc" {
		t.Errorf("expected executionId, got %v", out["executionId"])
	}
	if out["duration"] != "12s" {
		t.Errorf("expected duration 12s, got %v", out["duration"])
	}
	phases, ok := out["phases"].([]any)
	if !ok || len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %v", out["phases"])
	}
	first := phases[0].(map[string]any)
	if first["name"] != "Initial Access" || first["sent"] != float64(700) {
		t.Errorf("unexpected first phase %v", first)
	}
	if _, present := out["verdict"]; present {
		t.Error("verdict should be omitted when nil")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		12345:   "12,345",
		1234567: "1,234,567",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
