package executor_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
	"github.com/goliatone/go-process/executor"
	"github.com/goliatone/go-process/jobs"
	"github.com/goliatone/go-process/store"
)

var errHandlerFailed = errors.New("handler failed")

type harness struct {
	t        *testing.T
	store    process.EntityStore
	commands *command.Executor
	handlers *jobs.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, store.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, st process.EntityStore) *harness {
	t.Helper()
	return &harness{
		t:        t,
		store:    st,
		commands: command.NewExecutor(st),
		handlers: jobs.NewRegistry(),
	}
}

func (h *harness) executor(opts ...executor.Option) *executor.JobExecutor {
	base := []executor.Option{executor.WithPollInterval(10 * time.Millisecond)}
	return executor.New(h.commands, h.handlers, nil, append(base, opts...)...)
}

func (h *harness) seedJob(mutate func(*process.Job)) *process.Job {
	h.t.Helper()
	job := process.NewJob("test", "payload")
	if mutate != nil {
		mutate(job)
	}
	err := h.commands.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		return c.Session().InsertJob(ctx, job)
	})
	if err != nil {
		h.t.Fatalf("seed job: %v", err)
	}
	return job
}

func (h *harness) findJob(id string) (*process.Job, error) {
	h.t.Helper()
	return command.Run(context.Background(), h.commands, func(ctx context.Context, c *command.Context) (*process.Job, error) {
		return c.Session().FindJob(ctx, id)
	})
}

func TestRunOnceClaimsAndCompletesDueJobs(t *testing.T) {
	h := newHarness(t)

	now := time.Now().UTC()
	e := h.executor(
		executor.WithClock(func() time.Time { return now }),
		executor.WithLeaseDuration(time.Minute),
	)

	var seen int64
	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		atomic.AddInt64(&seen, 1)
		if job.LockOwner != e.WorkerID() {
			t.Errorf("handler saw lock owner %q, want %q", job.LockOwner, e.WorkerID())
		}
		if !job.LockExpiration.Equal(now.Add(time.Minute)) {
			t.Errorf("lease expiration = %v, want now+1m", job.LockExpiration)
		}
		return nil
	}))

	first := h.seedJob(nil)
	second := h.seedJob(nil)

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Acquired != 2 || report.Completed != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v, want 2 acquired and completed", report)
	}
	if atomic.LoadInt64(&seen) != 2 {
		t.Fatalf("handler ran %d times, want 2", seen)
	}

	// success removes the job in the same command as the handler's work
	for _, job := range []*process.Job{first, second} {
		if _, err := h.findJob(job.ID); !process.IsNotFound(err) {
			t.Fatalf("job %s should be deleted, got %v", job.ID, err)
		}
	}
}

func TestLiveLeaseBlocksAcquisition(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	e := h.executor(executor.WithClock(func() time.Time { return now }))

	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		return nil
	}))

	leased := h.seedJob(func(j *process.Job) {
		j.LockOwner = "other-worker"
		j.LockExpiration = now.Add(time.Minute)
	})

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Acquired != 0 {
		t.Fatalf("acquired %d jobs under a live foreign lease, want 0", report.Acquired)
	}
	if _, err := h.findJob(leased.ID); err != nil {
		t.Fatalf("leased job should be untouched: %v", err)
	}
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	e := h.executor(executor.WithClock(func() time.Time { return now }))

	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		if job.LockOwner != e.WorkerID() {
			t.Errorf("expired lease not reclaimed, owner = %q", job.LockOwner)
		}
		return nil
	}))

	h.seedJob(func(j *process.Job) {
		j.LockOwner = "crashed-worker"
		j.LockExpiration = now.Add(-time.Minute)
	})

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Acquired != 1 || report.Completed != 1 {
		t.Fatalf("report = %+v, want the expired-lease job reclaimed and run", report)
	}
}

// recordingPolicy wraps the default policy and remembers what failed.
type recordingPolicy struct {
	mu     sync.Mutex
	jobIDs []string
	causes []error
}

func (p *recordingPolicy) OnFailure(ctx context.Context, c *command.Context, job *process.Job, cause error) error {
	p.mu.Lock()
	p.jobIDs = append(p.jobIDs, job.ID)
	p.causes = append(p.causes, cause)
	p.mu.Unlock()
	return jobs.DefaultRetryPolicy{}.OnFailure(ctx, c, job, cause)
}

func TestHandlerFailureRoutesThroughPolicyAndRollsBack(t *testing.T) {
	h := newHarness(t)
	policy := &recordingPolicy{}
	e := executor.New(h.commands, h.handlers, policy)

	// the handler mutates state, then fails: none of it may commit
	orphan := process.NewExecution()
	orphan.ProcessInstanceID = orphan.ID
	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		if err := c.Session().InsertExecution(ctx, orphan); err != nil {
			return err
		}
		return errHandlerFailed
	}))

	job := h.seedJob(nil)

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Failed != 1 || report.Completed != 0 {
		t.Fatalf("report = %+v, want 1 failed", report)
	}

	policy.mu.Lock()
	if len(policy.jobIDs) != 1 || policy.jobIDs[0] != job.ID {
		t.Fatalf("policy saw jobs %v, want [%s]", policy.jobIDs, job.ID)
	}
	if !errors.Is(policy.causes[0], errHandlerFailed) {
		t.Fatalf("policy cause = %v", policy.causes[0])
	}
	policy.mu.Unlock()

	after, err := h.findJob(job.ID)
	if err != nil {
		t.Fatalf("failed job must survive: %v", err)
	}
	if after.Retries != process.DefaultJobRetries-1 {
		t.Fatalf("retries = %d, want one decrement", after.Retries)
	}
	if after.Attempts != 1 || after.ExceptionMessage == "" {
		t.Fatalf("failure not recorded: attempts=%d message=%q", after.Attempts, after.ExceptionMessage)
	}
	if after.LockOwner != "" {
		t.Fatalf("lease not released after failure, owner = %q", after.LockOwner)
	}

	err = h.commands.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		_, err := c.Session().FindExecution(ctx, orphan.ID)
		return err
	})
	if !process.IsNotFound(err) {
		t.Fatalf("handler work leaked past the rollback: %v", err)
	}
}

func TestExhaustedJobIsRetainedAndListed(t *testing.T) {
	h := newHarness(t)
	e := executor.New(h.commands, h.handlers, nil)

	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		return errHandlerFailed
	}))

	job := h.seedJob(func(j *process.Job) { j.Retries = 1 })

	if _, err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	after, err := h.findJob(job.ID)
	if err != nil {
		t.Fatalf("exhausted job must be retained: %v", err)
	}
	if !after.Exhausted() {
		t.Fatalf("retries = %d, want exhausted", after.Retries)
	}

	// exhausted jobs are invisible to acquisition
	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if report.Acquired != 0 {
		t.Fatalf("acquired an exhausted job")
	}

	listed, err := command.Run(context.Background(), h.commands, func(ctx context.Context, c *command.Context) ([]*process.Job, error) {
		return c.Session().FindExhaustedJobs(ctx, 10)
	})
	if err != nil {
		t.Fatalf("list exhausted: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != job.ID {
		t.Fatalf("exhausted listing = %+v", listed)
	}
}

func TestConcurrentWorkersNeverShareALease(t *testing.T) {
	stores := map[string]func(t *testing.T) process.EntityStore{
		"memory": func(t *testing.T) process.EntityStore {
			return store.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) process.EntityStore {
			st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { st.Close() })
			return st
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			testConcurrentWorkersNeverShareALease(t, open(t))
		})
	}
}

func testConcurrentWorkersNeverShareALease(t *testing.T, st process.EntityStore) {
	h := newHarnessWithStore(t, st)

	var mu sync.Mutex
	handledBy := map[string][]string{}
	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		mu.Lock()
		handledBy[job.ID] = append(handledBy[job.ID], job.LockOwner)
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 8; i++ {
		h.seedJob(nil)
	}

	a := h.executor(executor.WithWorkerID("worker-a"), executor.WithBatchSize(8))
	b := h.executor(executor.WithWorkerID("worker-b"), executor.WithBatchSize(8))

	var wg sync.WaitGroup
	for _, e := range []*executor.JobExecutor{a, b} {
		wg.Add(1)
		go func(e *executor.JobExecutor) {
			defer wg.Done()
			if _, err := e.RunOnce(context.Background()); err != nil {
				t.Errorf("run once: %v", err)
			}
		}(e)
	}
	wg.Wait()

	// a racing batch claim either wins every job it stamped or backs off
	// entirely; no job may ever run under two owners
	mu.Lock()
	defer mu.Unlock()
	for id, owners := range handledBy {
		if len(owners) != 1 {
			t.Fatalf("job %s handled %d times by %v", id, len(owners), owners)
		}
	}
}

// conflictOnceStore fails one commit with a revision conflict once armed.
type conflictOnceStore struct {
	inner process.EntityStore
	armed atomic.Bool
}

func (s *conflictOnceStore) Begin(ctx context.Context) (process.Session, error) {
	session, err := s.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &conflictOnceSession{Session: session, store: s}, nil
}

type conflictOnceSession struct {
	process.Session
	store *conflictOnceStore
}

func (s *conflictOnceSession) Commit(ctx context.Context) error {
	if s.store.armed.CompareAndSwap(true, false) {
		_ = s.Session.Rollback()
		return process.ConflictError("job", "injected", 1, 2)
	}
	return s.Session.Commit(ctx)
}

func TestConflictedJobCommandIsReplayed(t *testing.T) {
	flaky := &conflictOnceStore{inner: store.NewMemoryStore()}
	h := newHarnessWithStore(t, flaky)
	e := executor.New(h.commands, h.handlers, nil)

	var runs int64
	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		if atomic.AddInt64(&runs, 1) == 1 {
			// sabotage this attempt's commit; the replay must succeed
			flaky.armed.Store(true)
		}
		return nil
	}))

	job := h.seedJob(nil)

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Completed != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v, want the replayed job completed", report)
	}
	if got := atomic.LoadInt64(&runs); got != 2 {
		t.Fatalf("handler ran %d times, want original plus one replay", got)
	}
	if _, err := h.findJob(job.ID); !process.IsNotFound(err) {
		t.Fatalf("job should be gone after the successful replay, got %v", err)
	}
}

func TestRunLifecycleAndWakeSignal(t *testing.T) {
	h := newHarness(t)
	// long poll interval: only the wake signal can trigger the second cycle
	// within the test window
	e := executor.New(h.commands, h.handlers, nil,
		executor.WithPollInterval(time.Hour))

	done := make(chan struct{})
	var once sync.Once
	h.handlers.Register("test", jobs.HandlerFunc(func(ctx context.Context, c *command.Context, job *process.Job) error {
		once.Do(func() { close(done) })
		return nil
	}))

	ctx := context.Background()
	go func() { _ = e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for e.Status().State != executor.RuntimeStateRunning {
		select {
		case <-deadline:
			t.Fatal("executor never reached the running state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := e.Run(ctx); err == nil {
		t.Fatal("second Run on a running executor should be rejected")
	}

	h.seedJob(nil)
	e.Notify()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wake signal did not trigger a cycle")
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := e.Status().State; got != executor.RuntimeStateStopped {
		t.Fatalf("state after stop = %s", got)
	}
}

func TestNotifyNeverBlocks(t *testing.T) {
	h := newHarness(t)
	e := h.executor()
	// signals coalesce; a burst with no loop draining them must not block
	for i := 0; i < 10; i++ {
		e.Notify()
	}
}
