package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
	"github.com/goliatone/go-process/jobs"
)

// RuntimeState tracks the lifecycle of the background acquisition loop.
type RuntimeState string

const (
	RuntimeStateIdle     RuntimeState = "idle"
	RuntimeStateRunning  RuntimeState = "running"
	RuntimeStateStopping RuntimeState = "stopping"
	RuntimeStateStopped  RuntimeState = "stopped"
)

// Status captures the latest runtime state and cycle counters.
type Status struct {
	WorkerID            string
	State               RuntimeState
	LastRunAt           time.Time
	LastSuccessAt       time.Time
	LastError           string
	ConsecutiveFailures int
	LastAcquired        int
	LastCompleted       int
	LastFailed          int
}

// Report summarizes one acquisition cycle.
type Report struct {
	WorkerID   string
	Acquired   int
	Completed  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobExecutor drives the durable job loop: acquire a batch of due jobs under
// a lease, run each through its handler in its own command, and route
// failures through the retry policy. Every mutation rides the command
// executor, so handler work and the job's own lifecycle commit or roll back
// together.
type JobExecutor struct {
	commands *command.Executor
	handlers *jobs.Registry
	policy   jobs.RetryPolicy
	logger   process.Logger

	workerID           string
	batchSize          int
	workers            int
	pollInterval       time.Duration
	leaseDuration      time.Duration
	maxConflictRetries int
	now                func() time.Time

	wake chan struct{}

	stateMu sync.RWMutex
	status  Status

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}
	running   bool
}

// Option customizes a JobExecutor.
type Option func(*JobExecutor)

// WithWorkerID overrides the lease owner identifier.
func WithWorkerID(id string) Option {
	return func(e *JobExecutor) {
		if strings.TrimSpace(id) != "" {
			e.workerID = strings.TrimSpace(id)
		}
	}
}

// WithBatchSize sets the max jobs acquired per cycle.
func WithBatchSize(n int) Option {
	return func(e *JobExecutor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithWorkers bounds the concurrent handler goroutines per cycle.
func WithWorkers(n int) Option {
	return func(e *JobExecutor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithPollInterval sets the acquisition poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(e *JobExecutor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLeaseDuration sets how long an acquired job stays locked before an
// expired lease makes it acquirable again.
func WithLeaseDuration(d time.Duration) Option {
	return func(e *JobExecutor) {
		if d > 0 {
			e.leaseDuration = d
		}
	}
}

// WithConflictRetries bounds in-place replays of a job command that lost a
// revision race.
func WithConflictRetries(n int) Option {
	return func(e *JobExecutor) {
		if n > 0 {
			e.maxConflictRetries = n
		}
	}
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l process.Logger) Option {
	return func(e *JobExecutor) {
		e.logger = process.NormalizeLogger(l)
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *JobExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs a JobExecutor over the command executor, handler registry,
// and retry policy.
func New(commands *command.Executor, handlers *jobs.Registry, policy jobs.RetryPolicy, opts ...Option) *JobExecutor {
	e := &JobExecutor{
		commands:           commands,
		handlers:           handlers,
		policy:             policy,
		logger:             process.NewFmtLogger(nil),
		workerID:           "job-worker-" + uuid.NewString(),
		batchSize:          10,
		workers:            4,
		pollInterval:       500 * time.Millisecond,
		leaseDuration:      5 * time.Minute,
		maxConflictRetries: 3,
		now:                func() time.Time { return time.Now().UTC() },
		wake:               make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.policy == nil {
		e.policy = jobs.DefaultRetryPolicy{}
	}
	e.status = Status{WorkerID: e.workerID, State: RuntimeStateIdle}
	return e
}

// WorkerID returns the lease owner identifier.
func (e *JobExecutor) WorkerID() string {
	return e.workerID
}

// Notify wakes the acquisition loop ahead of its poll interval. The command
// executor fires this through its commit hook when a command created jobs;
// signals coalesce, so a burst of commits costs one extra cycle.
func (e *JobExecutor) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run polls for due jobs until context cancellation or Stop. A wake signal
// short-circuits the wait between cycles.
func (e *JobExecutor) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return errors.New("job executor already running", errors.CategoryConflict)
	}
	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan struct{})
	e.runCancel = cancel
	e.runDone = runDone
	e.running = true
	e.runMu.Unlock()

	e.setState(RuntimeStateRunning)
	e.logger.Info("job executor started worker=%s poll=%s batch=%d", e.workerID, e.pollInterval, e.batchSize)

	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runCancel = nil
		e.runDone = nil
		close(runDone)
		e.runMu.Unlock()
		e.setState(RuntimeStateStopped)
		e.logger.Info("job executor stopped worker=%s", e.workerID)
	}()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		report, err := e.RunOnce(runCtx)
		if err != nil {
			e.logger.Warn("job executor cycle failed worker=%s err=%v", e.workerID, err)
		}
		// drain the backlog before sleeping again
		if err == nil && report.Acquired == e.batchSize {
			continue
		}
		select {
		case <-runCtx.Done():
			return nil
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

// RunOnce executes one acquire/process cycle.
func (e *JobExecutor) RunOnce(ctx context.Context) (Report, error) {
	report := Report{WorkerID: e.workerID, StartedAt: e.now()}

	acquired, err := e.acquireDueJobs(ctx)
	if err != nil {
		report.FinishedAt = e.now()
		e.recordCycle(report, err)
		return report, err
	}
	report.Acquired = len(acquired)
	if len(acquired) == 0 {
		report.FinishedAt = e.now()
		e.recordCycle(report, nil)
		return report, nil
	}

	completed, failed := e.processBatch(ctx, acquired)
	report.Completed = completed
	report.Failed = failed
	report.FinishedAt = e.now()
	e.recordCycle(report, nil)
	return report, nil
}

// Stop requests loop termination and waits for the in-flight cycle.
func (e *JobExecutor) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.runMu.Lock()
	cancel := e.runCancel
	done := e.runDone
	running := e.running
	e.runMu.Unlock()

	if !running || cancel == nil || done == nil {
		e.setState(RuntimeStateStopped)
		return nil
	}

	e.setState(RuntimeStateStopping)
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a copy of the latest runtime status.
func (e *JobExecutor) Status() Status {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.status
}

func (e *JobExecutor) setState(state RuntimeState) {
	e.stateMu.Lock()
	e.status.State = state
	e.stateMu.Unlock()
}

func (e *JobExecutor) recordCycle(report Report, cycleErr error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.status.LastRunAt = report.FinishedAt
	e.status.LastAcquired = report.Acquired
	e.status.LastCompleted = report.Completed
	e.status.LastFailed = report.Failed
	if cycleErr == nil {
		e.status.LastSuccessAt = report.FinishedAt
		e.status.LastError = ""
		e.status.ConsecutiveFailures = 0
	} else {
		e.status.LastError = cycleErr.Error()
		e.status.ConsecutiveFailures++
	}
}
