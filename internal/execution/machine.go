package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sortie/internal/core"
)

// Meta describes a run at creation.
type Meta struct {
	ScenarioID  string
	Speed       string
	DryRun      bool
	Destination string
}

// StatusObserver is told about every status transition.
type StatusObserver interface {
	StatusChanged(from, to string)
}

// Machine serializes every change to execution records. Worker goroutines
// never touch records directly.
type Machine struct {
	mu       sync.Mutex
	store    ExecutionStore
	clock    core.Clock
	log      logrus.FieldLogger
	observer StatusObserver
	cancels  map[string]context.CancelFunc
	created  int64
}

func NewMachine(store ExecutionStore, clock core.Clock, log logrus.FieldLogger, observer StatusObserver) *Machine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		store:    store,
		clock:    core.OrReal(clock),
		log:      log,
		observer: observer,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start allocates a pending record and runs prepare, which builds the
// timeline and returns the number of envelopes. On success the record is
// stored as running and a cancellable context for the run is returned.
// A prepare failure discards the pending record.
func (m *Machine) Start(ctx context.Context, meta Meta, prepare func(id string) (int, error)) (Record, context.Context, error) {
	rec := &Record{
		ID:          uuid.NewString(),
		ScenarioID:  meta.ScenarioID,
		Status:      StatusPending,
		Speed:       meta.Speed,
		DryRun:      meta.DryRun,
		Destination: meta.Destination,
	}

	total, err := prepare(rec.ID)
	if err != nil {
		return Record{}, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.created++
	rec.Created = m.created
	rec.Total = total
	rec.StartedAt = m.clock.Now()
	if err := m.transition(rec, StatusRunning); err != nil {
		return Record{}, nil, err
	}
	if err := m.store.Put(rec); err != nil {
		return Record{}, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancels[rec.ID] = cancel
	m.log.WithFields(logrus.Fields{"execution": rec.ID, "scenario": rec.ScenarioID, "total": total}).
		Info("execution started")
	return *rec, runCtx, nil
}

// UpdateProgress records that completed of total envelopes have a result,
// the latest belonging to phase. Progress never decreases and is only
// tracked while the run is running.
func (m *Machine) UpdateProgress(id, phase string, completed, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if rec.Status != StatusRunning {
		return nil
	}
	if total > 0 && completed > rec.Completed {
		rec.Completed = completed
		if p := 100 * completed / total; p > rec.Progress {
			rec.Progress = p
		}
	}
	if phase != "" {
		rec.CurrentPhase = phase
	}
	return m.store.Put(rec)
}

// Complete moves a running execution to its terminal state. Only the first
// call wins; later calls return false without error.
func (m *Machine) Complete(id string, outcome Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Get(id)
	if err != nil {
		return false, err
	}
	if rec.Status.Terminal() {
		return false, nil
	}
	if !outcome.Status.Terminal() {
		return false, errors.Wrapf(ErrInvalidTransition, "%s is not a terminal status", outcome.Status)
	}
	if err := m.transition(rec, outcome.Status); err != nil {
		return false, err
	}
	now := m.clock.Now()
	rec.EndedAt = &now
	rec.Error = outcome.Error
	if outcome.Status == StatusCompleted {
		rec.Progress = 100
		rec.Completed = rec.Total
	}
	if err := m.store.Put(rec); err != nil {
		return false, err
	}
	m.release(id)

	entry := m.log.WithFields(logrus.Fields{"execution": id, "scenario": rec.ScenarioID, "status": rec.Status})
	if rec.Error != "" {
		entry.WithField("error", rec.Error).Warn("execution finished")
	} else {
		entry.Info("execution finished")
	}
	return true, nil
}

// Stop cancels a running execution and marks it stopped. Stopping a
// finished execution changes nothing and returns its current state.
// The bool reports whether this call stopped the run.
func (m *Machine) Stop(id string) (Record, bool, error) {
	m.mu.Lock()
	cancel := m.cancels[id]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	stopped, err := m.Complete(id, Stopped())
	if err != nil {
		return Record{}, false, err
	}
	rec, err := m.Query(id)
	return rec, stopped, err
}

// Query returns a snapshot of the record.
func (m *Machine) Query(id string) (Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Latest returns the most recently started execution of a scenario.
func (m *Machine) Latest(scenarioID string) (Record, error) {
	recs, err := m.store.List(scenarioID)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, errors.Wrapf(ErrExecutionNotFound, "scenario %q", scenarioID)
	}
	return *recs[len(recs)-1], nil
}

// List returns snapshots of every execution in start order.
func (m *Machine) List() ([]Record, error) {
	recs, err := m.store.List("")
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out, nil
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed, StatusStopped},
}

func (m *Machine) transition(rec *Record, to Status) error {
	from := rec.Status
	if from.Terminal() {
		return errors.Wrap(ErrAlreadyTerminal, rec.ID)
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			rec.Status = to
			if m.observer != nil {
				m.observer.StatusChanged(string(from), string(to))
			}
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}

// release drops the run's cancel func. Callers hold m.mu.
func (m *Machine) release(id string) {
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}
