package pacing

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Pacer is consulted by a worker before each send.
// first is true for the worker's first send of the run.
type Pacer interface {
	Wait(ctx context.Context, first bool) error
}

// Mode names a pacing policy.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeSpaced    Mode = "spaced"
)

// Config selects and parameterizes a pacing policy.
type Config struct {
	Mode     Mode          `yaml:"mode"`
	MinDelay time.Duration `yaml:"minDelay"`
	MaxDelay time.Duration `yaml:"maxDelay"`
	RPS      int           `yaml:"rps"`
}

// New builds the pacer for cfg. The two modes are mutually exclusive:
// a rate cap only applies to immediate pacing.
func New(cfg Config) (Pacer, error) {
	switch cfg.Mode {
	case ModeImmediate, "":
		if cfg.RPS < 0 {
			return nil, fmt.Errorf("rps must be >= 0, got %d", cfg.RPS)
		}
		if cfg.RPS == 0 {
			return Immediate{}, nil
		}
		return Immediate{Limiter: NewRateLimiter(cfg.RPS)}, nil
	case ModeSpaced:
		if cfg.RPS != 0 {
			return nil, fmt.Errorf("rps cap cannot be combined with spaced pacing")
		}
		if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
			return nil, fmt.Errorf("invalid delay range [%v, %v]", cfg.MinDelay, cfg.MaxDelay)
		}
		return Spaced{Min: cfg.MinDelay, Max: cfg.MaxDelay}, nil
	}
	return nil, fmt.Errorf("unknown pacing mode %q", cfg.Mode)
}

// Immediate lets workers loop continuously, optionally capped by Limiter.
type Immediate struct {
	Limiter *RateLimiter
}

func (p Immediate) Wait(ctx context.Context, _ bool) error {
	if p.Limiter == nil {
		return ctx.Err()
	}
	return p.Limiter.Wait(ctx)
}

// Spaced sleeps a uniformly random duration in [Min, Max] between a
// worker's sends. The first send of each worker is not delayed.
type Spaced struct {
	Min, Max time.Duration
}

func (p Spaced) Wait(ctx context.Context, first bool) error {
	if first {
		return ctx.Err()
	}
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay draws the next inter-send delay.
func (p Spaced) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)+1))
}
