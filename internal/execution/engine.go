package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sortie/internal/aggregate"
	"sortie/internal/core"
	"sortie/internal/dispatch"
	"sortie/internal/hec"
	"sortie/internal/pacing"
	"sortie/internal/route"
	"sortie/internal/scenario"
)

// Speeds accepted by StartExecution.
const (
	SpeedFast     = "fast"
	SpeedRealtime = "realtime"
)

// DefaultDestination is used when neither the run nor the engine names one.
const DefaultDestination = "default"

// Settings are the engine-wide defaults a run starts from.
type Settings struct {
	Concurrency   int
	Pacing        pacing.Config
	Hints         hec.Hints
	FailurePolicy aggregate.FailurePolicy
	Destination   string
	// Window is the compressed-mode window of the fast speed.
	Window time.Duration
	// DemoScale divides phase durations at realtime speed.
	DemoScale float64
}

// Deps are the collaborators of an Engine. Catalog, Router, Registry,
// Credentials and Sender are required.
type Deps struct {
	Catalog     *scenario.Catalog
	Router      *route.Router
	Registry    core.SourceRegistry
	Credentials core.CredentialStore
	Sender      dispatch.Sender
	Store       ExecutionStore
	Clock       core.Clock
	Logger      logrus.FieldLogger

	StatusObserver   StatusObserver
	Reporter         core.Reporter
	DispatchObserver dispatch.Observer
}

// StartOptions parameterize one run.
type StartOptions struct {
	Speed       string
	DryRun      bool
	Destination string
	// Mode overrides the mode derived from Speed.
	Mode *scenario.Mode
	// Pacing overrides the engine pacing.
	Pacing *pacing.Config
}

// RunStatus is a live view of a run: its record plus partial counters.
type RunStatus struct {
	Record
	Summary aggregate.Summary `json:"summary"`
}

// Results is the report of a run.
type Results struct {
	Record
	Summary aggregate.Summary  `json:"summary"`
	Verdict *aggregate.Verdict `json:"verdict,omitempty"`
}

// PhaseStatus is one row of an execution timeline. Sent counts envelopes
// that reached the collector or failed trying.
type PhaseStatus struct {
	Phase          string     `json:"phase"`
	Status         string     `json:"status"`
	EventsCount    int        `json:"eventsCount"`
	Sent           int        `json:"sent"`
	Sources        []string   `json:"sources"`
	FirstTimestamp *time.Time `json:"firstTimestamp,omitempty"`
}

// Phase progress states reported by GetExecutionTimeline.
const (
	PhasePending    = "pending"
	PhaseInProgress = "in_progress"
	PhaseCompleted  = "completed"
)

type activeRun struct {
	template scenario.Template
	envs     []core.Envelope
	agg      *aggregate.Aggregator
	done     chan struct{}

	mu      sync.Mutex
	verdict *aggregate.Verdict
}

// Engine is the caller-facing API for scenario executions.
type Engine struct {
	deps       Deps
	settings   Settings
	machine    *Machine
	dispatcher *dispatch.Dispatcher
	log        logrus.FieldLogger
	clock      core.Clock

	mu   sync.RWMutex
	runs map[string]*activeRun
	wg   sync.WaitGroup
}

func NewEngine(deps Deps, settings Settings) (*Engine, error) {
	if deps.Catalog == nil || deps.Router == nil || deps.Registry == nil ||
		deps.Credentials == nil || deps.Sender == nil {
		return nil, errors.New("engine: catalog, router, registry, credentials and sender are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	deps.Clock = core.OrReal(deps.Clock)
	if deps.Reporter == nil {
		deps.Reporter = core.NullReporter
	}
	if deps.Store == nil {
		store, err := NewMemStore()
		if err != nil {
			return nil, err
		}
		deps.Store = store
	}
	if settings.FailurePolicy.Threshold == "" {
		settings.FailurePolicy = aggregate.DefaultFailurePolicy()
	}
	if err := settings.FailurePolicy.Validate(); err != nil {
		return nil, err
	}
	if _, err := pacing.New(settings.Pacing); err != nil {
		return nil, err
	}
	if settings.Destination == "" {
		settings.Destination = DefaultDestination
	}

	return &Engine{
		deps:     deps,
		settings: settings,
		machine:  NewMachine(deps.Store, deps.Clock, deps.Logger, deps.StatusObserver),
		dispatcher: dispatch.New(deps.Router, deps.Credentials, deps.Sender,
			dispatch.WithClock(deps.Clock),
			dispatch.WithLogger(deps.Logger),
			dispatch.WithObserver(deps.DispatchObserver)),
		log:   deps.Logger,
		clock: deps.Clock,
		runs:  make(map[string]*activeRun),
	}, nil
}

// ModeForSpeed maps a speed name to a timeline mode.
func (e *Engine) ModeForSpeed(speed string) (scenario.Mode, error) {
	switch speed {
	case SpeedFast, "":
		return scenario.CompressedMode(e.settings.Window), nil
	case SpeedRealtime:
		return scenario.RealTimeMode(e.settings.DemoScale), nil
	}
	return scenario.Mode{}, errors.Wrapf(ErrInvalidSpeed, "%q (use %s or %s)", speed, SpeedFast, SpeedRealtime)
}

// Preview is a built timeline that was not dispatched.
type Preview struct {
	ScenarioID string               `json:"scenarioId"`
	Mode       string               `json:"mode"`
	Phases     []scenario.PhaseSpan `json:"phases"`
	Envelopes  []core.Envelope      `json:"-"`
}

// PreviewTimeline builds the timeline a run at speed would dispatch,
// without generating payloads or creating an execution.
func (e *Engine) PreviewTimeline(scenarioID, speed string) (Preview, error) {
	tpl, err := e.deps.Catalog.Get(scenarioID)
	if err != nil {
		return Preview{}, err
	}
	mode, err := e.ModeForSpeed(speed)
	if err != nil {
		return Preview{}, err
	}
	envs, err := scenario.Build(tpl, mode, e.clock.Now())
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		ScenarioID: scenarioID,
		Mode:       mode.String(),
		Phases:     scenario.Spans(tpl, envs),
		Envelopes:  envs,
	}, nil
}

// StartExecution builds the scenario timeline and starts dispatching it in
// the background. Only lookup, option and build errors are returned; send
// failures show up in the run's counters.
func (e *Engine) StartExecution(ctx context.Context, scenarioID string, opts StartOptions) (string, error) {
	tpl, err := e.deps.Catalog.Get(scenarioID)
	if err != nil {
		return "", err
	}
	if opts.Speed == "" {
		opts.Speed = SpeedFast
	}
	mode, err := e.ModeForSpeed(opts.Speed)
	if err != nil {
		return "", err
	}
	if opts.Mode != nil {
		mode = *opts.Mode
	}
	pacingCfg := e.settings.Pacing
	if opts.Pacing != nil {
		pacingCfg = *opts.Pacing
	}
	pacer, err := pacing.New(pacingCfg)
	if err != nil {
		return "", err
	}
	dest := opts.Destination
	if dest == "" {
		dest = e.settings.Destination
	}

	run := &activeRun{template: tpl, done: make(chan struct{})}
	meta := Meta{ScenarioID: scenarioID, Speed: opts.Speed, DryRun: opts.DryRun, Destination: dest}

	// The run outlives the caller's request; only Stop cancels it.
	rec, runCtx, err := e.machine.Start(context.WithoutCancel(ctx), meta, func(id string) (int, error) {
		envs, err := scenario.Build(tpl, mode, e.clock.Now())
		if err != nil {
			return 0, err
		}
		scenario.Fill(envs, e.deps.Registry)
		run.envs = envs
		return len(envs), nil
	})
	if err != nil {
		return "", err
	}

	phases := make([]string, len(tpl.Phases))
	for i, p := range tpl.Phases {
		phases[i] = p.Name
	}
	run.agg = aggregate.New(aggregate.Options{Phases: phases, KeepEvents: true, Clock: e.clock})

	e.mu.Lock()
	e.runs[rec.ID] = run
	e.mu.Unlock()

	cfg := dispatch.Config{
		Concurrency: e.settings.Concurrency,
		Pacer:       pacer,
		Hints:       e.settings.Hints,
		DryRun:      opts.DryRun,
		AbortAfter:  e.settings.FailurePolicy.MinAttempts,
	}
	e.log.WithFields(logrus.Fields{
		"execution": rec.ID, "scenario": scenarioID, "mode": mode.String(),
		"events": len(run.envs), "dryRun": opts.DryRun,
	}).Debug("dispatching timeline")

	e.wg.Add(1)
	go e.execute(runCtx, rec.ID, dest, run, cfg)
	return rec.ID, nil
}

func (e *Engine) execute(ctx context.Context, id, dest string, run *activeRun, cfg dispatch.Config) {
	defer e.wg.Done()
	defer close(run.done)
	defer func() {
		if p := recover(); p != nil {
			e.log.WithField("execution", id).Errorf("execution panicked: %v", p)
			_, _ = e.machine.Complete(id, FailedWith(fmt.Sprintf("internal error: %v", p)))
		}
	}()

	total := len(run.envs)
	batch := e.dispatcher.Run(ctx, run.envs, dest, cfg)
	for res := range batch.Results() {
		n := run.agg.Fold(res)
		e.deps.Reporter.Report(res)
		if err := e.machine.UpdateProgress(id, res.Envelope.Phase, n, total); err != nil {
			e.log.WithField("execution", id).WithError(err).Warn("progress update failed")
		}
	}
	abortErr := batch.Wait()
	run.agg.Close()

	verdict := e.settings.FailurePolicy.Evaluate(run.agg.Snapshot(), total)
	run.mu.Lock()
	run.verdict = &verdict
	run.mu.Unlock()

	var outcome Outcome
	switch {
	case ctx.Err() != nil:
		outcome = Stopped()
	case abortErr != nil:
		outcome = Failed(abortErr)
	case verdict.Failed:
		outcome = FailedWith(verdict.Reason)
	default:
		outcome = Completed()
	}
	if _, err := e.machine.Complete(id, outcome); err != nil {
		e.log.WithField("execution", id).WithError(err).Error("could not finish execution")
	}
}

func (e *Engine) run(id string) (*activeRun, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[id]
	if !ok {
		return nil, errors.Wrapf(ErrExecutionNotFound, "%q", id)
	}
	return r, nil
}

// GetExecutionStatus returns the record and partial counters of a run.
func (e *Engine) GetExecutionStatus(id string) (RunStatus, error) {
	rec, err := e.machine.Query(id)
	if err != nil {
		return RunStatus{}, err
	}
	// The record becomes visible just before its run is registered.
	run, err := e.run(id)
	if err != nil {
		return RunStatus{Record: rec}, nil
	}
	s := run.agg.Snapshot()
	s.Events = nil
	return RunStatus{Record: rec, Summary: s}, nil
}

// StopExecution cancels a run and waits for in-flight sends to settle.
// It reports whether this call stopped the run. Stopping a finished run
// is a no-op.
func (e *Engine) StopExecution(id string) (bool, error) {
	_, stopped, err := e.machine.Stop(id)
	if err != nil {
		return false, err
	}
	if run, err := e.run(id); err == nil {
		<-run.done
	}
	return stopped, nil
}

// Wait blocks until the run has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) (Record, error) {
	run, err := e.run(id)
	if err != nil {
		return Record{}, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	return e.machine.Query(id)
}

// Done returns a channel closed when the run has finished.
func (e *Engine) Done(id string) (<-chan struct{}, error) {
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	return run.done, nil
}

// GetExecutionResults reports a run's counters, with per-event outcomes
// when includeEvents is set. The verdict is present once the run finished.
func (e *Engine) GetExecutionResults(id string, includeEvents bool) (Results, error) {
	rec, err := e.machine.Query(id)
	if err != nil {
		return Results{}, err
	}
	run, err := e.run(id)
	if err != nil {
		return Results{}, err
	}
	s := run.agg.Snapshot()
	if !includeEvents {
		s.Events = nil
	}
	run.mu.Lock()
	verdict := run.verdict
	run.mu.Unlock()
	return Results{Record: rec, Summary: s, Verdict: verdict}, nil
}

// GetExecutionTimeline lists the phases of a run with their progress.
func (e *Engine) GetExecutionTimeline(id string) ([]PhaseStatus, error) {
	if _, err := e.machine.Query(id); err != nil {
		return nil, err
	}
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	s := run.agg.Snapshot()
	spans := scenario.Spans(run.template, run.envs)
	out := make([]PhaseStatus, len(spans))
	for i, sp := range spans {
		sent := s.PerPhase[sp.Name].Attempted()
		ps := PhaseStatus{
			Phase:       sp.Name,
			EventsCount: sp.Count,
			Sent:        sent,
			Sources:     sp.Sources,
			Status:      PhasePending,
		}
		switch {
		case sent >= sp.Count && (sp.Count > 0 || sent > 0):
			ps.Status = PhaseCompleted
		case sent > 0:
			ps.Status = PhaseInProgress
		}
		if sp.Count > 0 {
			first := sp.First
			ps.FirstTimestamp = &first
		}
		out[i] = ps
	}
	return out, nil
}

// LatestExecution returns the most recent run of a scenario.
func (e *Engine) LatestExecution(scenarioID string) (Record, error) {
	return e.machine.Latest(scenarioID)
}

// ListExecutions returns every run in start order.
func (e *Engine) ListExecutions() ([]Record, error) {
	return e.machine.List()
}

// ListScenarios lists catalog templates whose id, name or description
// contains search. An empty search lists everything.
func (e *Engine) ListScenarios(search string) []scenario.Summary {
	return e.deps.Catalog.List(search)
}

// CreateCustomScenario validates and stores a user-defined template.
// Sources without a route are rejected so that runs cannot be built
// around sources nothing can deliver.
func (e *Engine) CreateCustomScenario(def map[string]any) (string, error) {
	tpl, err := scenario.DecodeCustom(def)
	if err != nil {
		return "", err
	}
	if missing := e.deps.Router.Missing(tpl.Sources()); len(missing) > 0 {
		return "", errors.Wrapf(scenario.ErrInvalidTemplate, "no route for sources %v", missing)
	}
	return e.deps.Catalog.CreateCustom(def)
}

// Shutdown stops every running execution and waits for them to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	recs, err := e.machine.List()
	if err != nil {
		return err
	}
	for _, r := range recs {
		if !r.Status.Terminal() {
			if _, _, err := e.machine.Stop(r.ID); err != nil {
				return err
			}
		}
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
