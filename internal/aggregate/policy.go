package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"sortie/internal/core"
)

// Defaults for FailurePolicy.
const (
	DefaultFailureThreshold = "90%"
	DefaultMinAttempts      = 10
)

// FailurePolicy decides when a finished run counts as failed rather than
// completed-with-failures.
type FailurePolicy struct {
	// Threshold is the failure rate, as a percentage of attempted events,
	// above which the run failed.
	Threshold string `yaml:"threshold"`
	// MinAttempts is the number of attempted events needed before the rate
	// is trusted. Runs with fewer envelopes need all of them attempted.
	MinAttempts int `yaml:"minAttempts"`
}

// DefaultFailurePolicy returns the policy used when none is configured.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{Threshold: DefaultFailureThreshold, MinAttempts: DefaultMinAttempts}
}

// Verdict is the outcome of evaluating a policy.
type Verdict struct {
	Failed    bool           `json:"failed"`
	Rate      float64        `json:"failureRate"`
	Threshold string         `json:"threshold"`
	Dominant  core.ErrorKind `json:"dominantErrorKind,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Validate checks the threshold format.
func (p FailurePolicy) Validate() error {
	rate, err := parsePercentage(p.Threshold)
	if err != nil {
		return err
	}
	if rate < 0 || rate > 100 {
		return fmt.Errorf("failure threshold %s out of range", p.Threshold)
	}
	if p.MinAttempts < 0 {
		return fmt.Errorf("minAttempts must be >= 0, got %d", p.MinAttempts)
	}
	return nil
}

// Evaluate judges a summary of a run that built total envelopes.
func (p FailurePolicy) Evaluate(s Summary, total int) Verdict {
	threshold, err := parsePercentage(p.Threshold)
	if err != nil {
		threshold, _ = parsePercentage(DefaultFailureThreshold)
		p.Threshold = DefaultFailureThreshold
	}
	v := Verdict{Threshold: p.Threshold}

	attempted := s.Overall.Attempted()
	if attempted == 0 {
		return v
	}
	v.Rate = float64(s.Overall.Failed) / float64(attempted) * 100
	v.Dominant = dominantKind(s.Overall.ByKind)

	need := p.MinAttempts
	if total < need {
		need = total
	}
	if attempted < need {
		return v
	}
	if v.Rate > threshold {
		v.Failed = true
		v.Reason = fmt.Sprintf("%.1f%% of %d attempted events failed (threshold %s), mostly %s",
			v.Rate, attempted, p.Threshold, v.Dominant)
	}
	return v
}

func dominantKind(byKind map[core.ErrorKind]int) core.ErrorKind {
	kinds := make([]core.ErrorKind, 0, len(byKind))
	for k := range byKind {
		if k != core.KindNotAttempted {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return core.KindNone
	}
	sort.Slice(kinds, func(i, j int) bool {
		if byKind[kinds[i]] != byKind[kinds[j]] {
			return byKind[kinds[i]] > byKind[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds[0]
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
}
