// Package dispatch fans envelopes out to the collector through a bounded
// worker pool, recording exactly one result per envelope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sortie/internal/core"
	"sortie/internal/hec"
	"sortie/internal/pacing"
	"sortie/internal/route"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 10

// ErrAborted is reported by Batch.Wait when a run gave up on its destination.
var ErrAborted = errors.New("dispatch aborted")

// Sender performs one collector POST. *hec.Client implements it.
type Sender interface {
	Send(ctx context.Context, creds core.Credentials, label string, req hec.Request) (hec.Response, error)
}

// Observer is notified around every collector POST. Implementations must be
// safe for concurrent use.
type Observer interface {
	SendStarted()
	SendDone(status int, latency time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) SendStarted()                      {}
func (nopObserver) SendDone(int, time.Duration, error) {}

// Config holds the per-run dispatch policy.
type Config struct {
	Concurrency int
	Pacer       pacing.Pacer
	Hints       hec.Hints
	DryRun      bool
	// AbortAfter gives up on the destination once this many credential
	// failures arrive before any other outcome: the remaining envelopes fail
	// fast without further resolution. Zero disables the check.
	AbortAfter int
}

// Dispatcher sends envelopes. It is safe to start several runs on one
// Dispatcher, they share nothing but the read-only collaborators.
type Dispatcher struct {
	router   *route.Router
	creds    core.CredentialStore
	sender   Sender
	clock    core.Clock
	log      logrus.FieldLogger
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithClock(c core.Clock) Option { return func(d *Dispatcher) { d.clock = core.OrReal(c) } }

func WithLogger(l logrus.FieldLogger) Option { return func(d *Dispatcher) { d.log = l } }

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

func New(router *route.Router, creds core.CredentialStore, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:   router,
		creds:    creds,
		sender:   sender,
		clock:    core.RealClock{},
		log:      logrus.StandardLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Batch is one running dispatch.
type Batch struct {
	results chan core.DispatchResult
	done    chan struct{}
	run     *run
}

// Results yields exactly one result per envelope and closes afterwards.
// Completion order across workers is unspecified.
func (b *Batch) Results() <-chan core.DispatchResult { return b.results }

// Wait blocks until the batch has finished. It returns an ErrAborted error
// if the run gave up on its destination. Caller cancellation is not an error.
func (b *Batch) Wait() error {
	<-b.done
	if cause := b.run.abortCause.Load(); cause != nil {
		return *cause
	}
	return nil
}

// Run starts dispatching envs to the destination. Cancelling ctx lets
// in-flight sends finish; every envelope that was not yet sent is reported
// with Attempted=false.
func (d *Dispatcher) Run(ctx context.Context, envs []core.Envelope, destination string, cfg Config) *Batch {
	b := &Batch{
		results: make(chan core.DispatchResult, len(envs)),
		done:    make(chan struct{}),
	}

	workers := cfg.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if workers > len(envs) && len(envs) > 0 {
		workers = len(envs)
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = pacing.Immediate{}
	}

	r := &run{
		Dispatcher:  d,
		cfg:         cfg,
		destination: destination,
		out:         b.results,
	}
	b.run = r

	queue := make(chan *core.Envelope)
	var g errgroup.Group

	g.Go(func() error {
		defer close(queue)
		for i := range envs {
			select {
			case queue <- &envs[i]:
			case <-ctx.Done():
				for j := i; j < len(envs); j++ {
					r.emit(r.notAttempted(&envs[j]))
				}
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r.work(ctx, queue, pacer)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(b.results)
		close(b.done)
	}()
	return b
}

type run struct {
	*Dispatcher
	cfg         Config
	destination string
	out         chan<- core.DispatchResult

	credFailures atomic.Int64
	otherResults atomic.Int64
	abortCause   atomic.Pointer[error]
}

func (r *run) work(ctx context.Context, queue <-chan *core.Envelope, pacer pacing.Pacer) {
	// In-flight sends outlive cancellation, bounded by the request timeout.
	sendCtx := context.WithoutCancel(ctx)
	first := true
	for {
		var env *core.Envelope
		var ok bool
		select {
		case env, ok = <-queue:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
		if r.abortCause.Load() == nil {
			if err := pacer.Wait(ctx, first); err != nil {
				r.emit(r.notAttempted(env))
				continue
			}
		}
		if ctx.Err() != nil {
			r.emit(r.notAttempted(env))
			continue
		}
		first = false
		r.handle(sendCtx, env)
	}
}

// handle produces exactly one result for env, including when the send panics.
func (r *run) handle(ctx context.Context, env *core.Envelope) {
	reported := false
	defer func() {
		if p := recover(); p != nil && !reported {
			r.log.WithFields(logrus.Fields{"seq": env.Seq, "source": env.Source}).
				Errorf("panic while dispatching: %v", p)
			r.emit(core.DispatchResult{
				Envelope:  env,
				Attempted: true,
				Kind:      core.KindPanic,
				Error:     fmt.Sprintf("panic: %v", p),
				DoneAt:    r.clock.Now(),
			})
		}
	}()

	res := r.send(ctx, env)
	reported = true
	r.emit(res)
}

func (r *run) send(ctx context.Context, env *core.Envelope) core.DispatchResult {
	start := r.clock.Now()
	res := core.DispatchResult{Envelope: env, Attempted: true}
	fail := func(err error) core.DispatchResult {
		res.Kind = core.KindOf(err)
		res.Error = err.Error()
		res.Latency = r.clock.Since(start)
		res.DoneAt = r.clock.Now()
		return res
	}

	rt, err := r.router.Resolve(env.Source)
	if err != nil {
		return fail(err)
	}

	var creds core.Credentials
	if !r.cfg.DryRun {
		if cause := r.abortCause.Load(); cause != nil {
			return fail(fmt.Errorf("%w: %v", core.ErrCredentials, *cause))
		}
		creds, err = r.creds.Resolve(ctx, r.destination)
		if err != nil {
			if !errors.Is(err, core.ErrCredentials) {
				err = fmt.Errorf("%w: %v", core.ErrCredentials, err)
			}
			return fail(err)
		}
	}

	if env.GenErr != nil {
		err := env.GenErr
		if !errors.Is(err, core.ErrGeneration) {
			err = fmt.Errorf("%w: %v", core.ErrGeneration, err)
		}
		return fail(err)
	}

	req, err := hec.Encode(env, rt, r.cfg.Hints)
	if err != nil {
		return fail(err)
	}
	res.BytesSent = int64(len(req.Body))

	if r.cfg.DryRun {
		res.Success = true
		res.Latency = r.clock.Since(start)
		res.DoneAt = r.clock.Now()
		return res
	}

	resp, err := r.post(ctx, creds, env, req)
	res.HTTPStatus = resp.StatusCode
	if err != nil {
		return fail(err)
	}
	res.Success = true
	res.Latency = r.clock.Since(start)
	res.DoneAt = r.clock.Now()
	return res
}

func (r *run) post(ctx context.Context, creds core.Credentials, env *core.Envelope, req hec.Request) (resp hec.Response, err error) {
	r.observer.SendStarted()
	start := r.clock.Now()
	defer func() { r.observer.SendDone(resp.StatusCode, r.clock.Since(start), err) }()
	return r.sender.Send(ctx, creds, fmt.Sprintf("#%d %s", env.Seq, env.Source), req)
}

func (r *run) notAttempted(env *core.Envelope) core.DispatchResult {
	return core.DispatchResult{
		Envelope: env,
		Kind:     core.KindNotAttempted,
		Error:    "not attempted: run cancelled",
		DoneAt:   r.clock.Now(),
	}
}

func (r *run) emit(res core.DispatchResult) {
	if res.Attempted {
		if res.Kind == core.KindCredentials {
			r.credFailures.Add(1)
		} else {
			r.otherResults.Add(1)
		}
		if !res.Success {
			r.log.WithFields(logrus.Fields{
				"seq":    res.Envelope.Seq,
				"source": res.Envelope.Source,
				"phase":  res.Envelope.Phase,
				"kind":   res.Kind,
			}).Debug(res.Error)
		}
		r.checkAbort()
	}
	r.out <- res
}

func (r *run) checkAbort() {
	if r.cfg.AbortAfter <= 0 || r.otherResults.Load() > 0 || r.abortCause.Load() != nil {
		return
	}
	if n := r.credFailures.Load(); n >= int64(r.cfg.AbortAfter) {
		cause := fmt.Errorf("%w: destination %q unusable after %d credential failures",
			ErrAborted, r.destination, n)
		if r.abortCause.CompareAndSwap(nil, &cause) {
			r.log.WithField("destination", r.destination).Warn(cause.Error())
		}
	}
}
