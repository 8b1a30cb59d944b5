// Package progress prints a one-line live view of a running execution.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"sortie/internal/execution"
)

// StatusSource reports the live status of an execution.
// *execution.Engine implements it.
type StatusSource interface {
	GetExecutionStatus(id string) (execution.RunStatus, error)
}

type Progress struct {
	startTime time.Time
	source    StatusSource
	id        string
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(source StatusSource, id string, quiet bool) *Progress {
	return &Progress{
		source:   source,
		id:       id,
		quiet:    quiet,
		interval: time.Second,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh interval. Call before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	st, err := p.source.GetExecutionStatus(p.id)
	if err != nil {
		return
	}
	o := st.Summary.Overall
	phase := st.CurrentPhase
	if phase == "" {
		phase = "-"
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K[%s] %s | %d%% | sent %d ok %d failed %d\r",
		clock(time.Since(p.startTime)), phase, st.Progress, o.Sent, o.OK, o.Failed)
	p.mu.Unlock()
}

// clock renders d as mm:ss.
func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
