// Package jobs dispatches the discrete linksync jobs: run-now for operator
// actions, enqueue-for-next-tick and cron schedules, with an overlap lock
// per job and an in-memory status board.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// Outcome of a single job run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ErrUnknownJob is returned for names that were never registered.
var ErrUnknownJob = errors.New("unknown job")

// Func is one job body. The returned value is kept as the run's result payload.
type Func func(ctx context.Context) (any, error)

// State is the status-poll view of a job.
type State struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule,omitempty"`
	Running      bool          `json:"running"`
	Queued       bool          `json:"queued"`
	LastStarted  *time.Time    `json:"last_started,omitempty"`
	LastFinished *time.Time    `json:"last_finished,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Outcome      Outcome       `json:"outcome,omitempty"`
	Error        string        `json:"error,omitempty"`
	Result       any           `json:"result,omitempty"`
}

type entry struct {
	fn    Func
	state State
}

// Dispatcher owns registered jobs and their schedules.
type Dispatcher struct {
	mu      sync.Mutex
	jobs    map[string]*entry
	queue   []string
	locker  Locker
	metrics *observability.Metrics
	log     infralogger.Logger
	cron    *cron.Cron
	now     func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil locker falls back to a LocalLocker.
func NewDispatcher(locker Locker, metrics *observability.Metrics, log infralogger.Logger) *Dispatcher {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Dispatcher{
		jobs:    make(map[string]*entry),
		locker:  locker,
		metrics: metrics,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		now:     time.Now,
	}
}

// Register adds a job. Registering a name twice replaces its body.
func (d *Dispatcher) Register(name string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.jobs[name]; ok {
		e.fn = fn
		return
	}
	d.jobs[name] = &entry{fn: fn, state: State{Name: name}}
}

// Schedule runs name on a standard cron spec (descriptors like "@hourly" and
// "@every 5m" are accepted). Schedules take effect once Start is called.
func (d *Dispatcher) Schedule(name, spec string) error {
	d.mu.Lock()
	e, ok := d.jobs[name]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if _, err := d.cron.AddFunc(spec, func() { d.runScheduled(name) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}

	d.mu.Lock()
	e.state.Schedule = spec
	d.mu.Unlock()
	return nil
}

// Start begins cron scheduling; tickSpec drains the enqueue queue.
func (d *Dispatcher) Start(ctx context.Context, tickSpec string) error {
	d.baseCtx, d.cancel = context.WithCancel(ctx)

	if _, err := d.cron.AddFunc(tickSpec, func() { d.Drain(d.baseCtx) }); err != nil {
		d.cancel()
		return fmt.Errorf("schedule tick %q: %w", tickSpec, err)
	}
	d.cron.Start()

	d.log.Info("Job dispatcher started",
		infralogger.String("tick", tickSpec),
		infralogger.Int("jobs", len(d.States())),
	)
	return nil
}

// Stop halts scheduling and waits for in-flight scheduled runs.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	<-d.cron.Stop().Done()
	d.wg.Wait()
	d.log.Info("Job dispatcher stopped")
}

// RunNow runs name synchronously and returns the resulting state.
func (d *Dispatcher) RunNow(ctx context.Context, name string) (State, error) {
	d.mu.Lock()
	_, ok := d.jobs[name]
	d.mu.Unlock()
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return d.run(ctx, name), nil
}

// Enqueue marks name to run on the next tick. Duplicate enqueues collapse.
func (d *Dispatcher) Enqueue(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if e.state.Queued {
		return nil
	}
	e.state.Queued = true
	d.queue = append(d.queue, name)
	return nil
}

// Drain runs every queued job in enqueue order.
func (d *Dispatcher) Drain(ctx context.Context) {
	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	for _, name := range queued {
		d.jobs[name].state.Queued = false
	}
	d.mu.Unlock()

	for _, name := range queued {
		if ctx.Err() != nil {
			return
		}
		d.run(ctx, name)
	}
}

// State returns the current state of one job.
func (d *Dispatcher) State(name string) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.jobs[name]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// States returns every job state sorted by name.
func (d *Dispatcher) States() []State {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]State, 0, len(d.jobs))
	for _, e := range d.jobs {
		out = append(out, e.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dispatcher) runScheduled(name string) {
	if d.baseCtx == nil || d.baseCtx.Err() != nil {
		return
	}
	d.wg.Add(1)
	defer d.wg.Done()
	d.run(d.baseCtx, name)
}

func (d *Dispatcher) run(ctx context.Context, name string) State {
	log := d.log.With(infralogger.Job(name))

	release, ok, err := d.locker.Acquire(ctx, name)
	if err != nil {
		log.Error("Failed to acquire job lock", infralogger.Error(err))
		return d.finish(name, d.now(), nil, OutcomeFailed, fmt.Errorf("acquire lock: %w", err))
	}
	if !ok {
		log.Info("Job already running, skipped")
		d.metrics.RecordJob(name, string(OutcomeSkipped), 0)
		return d.finish(name, d.now(), nil, OutcomeSkipped, nil)
	}
	defer release()

	started := d.now()
	d.mu.Lock()
	e := d.jobs[name]
	e.state.Running = true
	e.state.LastStarted = &started
	fn := e.fn
	d.mu.Unlock()

	log.Info("Job started")
	result, runErr := safeRun(ctx, fn)

	outcome := OutcomeSuccess
	if runErr != nil {
		outcome = OutcomeFailed
		log.Error("Job failed", infralogger.Error(runErr))
	} else {
		log.Info("Job finished", infralogger.Duration("duration", d.now().Sub(started)))
	}
	d.metrics.RecordJob(name, string(outcome), d.now().Sub(started))

	return d.finish(name, started, result, outcome, runErr)
}

func (d *Dispatcher) finish(name string, started time.Time, result any, outcome Outcome, err error) State {
	finished := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.jobs[name]
	if outcome == OutcomeSkipped {
		// The holder's state stays untouched; only report the skip.
		skipped := e.state
		skipped.Outcome = OutcomeSkipped
		skipped.Error = ""
		skipped.Result = nil
		return skipped
	}

	e.state.Running = false
	e.state.LastFinished = &finished
	e.state.Duration = finished.Sub(started)
	e.state.Outcome = outcome
	e.state.Result = result
	e.state.Error = ""
	if err != nil {
		e.state.Error = err.Error()
	}
	return e.state
}

func safeRun(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
