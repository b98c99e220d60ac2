// Package engine assembles the process runtime, the command boundary, the
// durable store, and the job subsystem into one facade. Callers that need
// finer control can wire the pieces themselves; the facade covers the common
// deployment.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
	"github.com/goliatone/go-process/executor"
	"github.com/goliatone/go-process/jobs"
	"github.com/goliatone/go-process/runtime"
	"github.com/goliatone/go-process/store"
)

// Engine is the top-level facade over the process virtual machine.
type Engine struct {
	store       process.EntityStore
	definitions *process.DefinitionRegistry
	runtime     *runtime.Runtime
	commands    *command.Executor
	jobExec     *executor.JobExecutor
	logger      process.Logger

	started atomic.Bool
}

// Option customizes an Engine.
type Option func(*config)

type config struct {
	store         process.EntityStore
	logger        process.Logger
	workers       int
	batchSize     int
	pollInterval  time.Duration
	leaseDuration time.Duration
	workerID      string
}

// WithStore backs the engine with a specific EntityStore; the default is the
// in-memory store.
func WithStore(s process.EntityStore) Option {
	return func(c *config) {
		if s != nil {
			c.store = s
		}
	}
}

// WithLogger sets the logger shared by all engine components.
func WithLogger(l process.Logger) Option {
	return func(c *config) {
		c.logger = process.NormalizeLogger(l)
	}
}

// WithJobWorkers bounds concurrent job handlers.
func WithJobWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithJobBatchSize sets the max jobs acquired per executor cycle.
func WithJobBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithJobPollInterval sets the job acquisition cadence.
func WithJobPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithJobLeaseDuration sets how long acquired jobs stay leased.
func WithJobLeaseDuration(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.leaseDuration = d
		}
	}
}

// WithWorkerID overrides the job lease owner identifier.
func WithWorkerID(id string) Option {
	return func(c *config) {
		c.workerID = id
	}
}

// New assembles an engine. The job executor is wired into the command
// executor's commit hook, so any committed command that created jobs wakes
// acquisition immediately.
func New(opts ...Option) *Engine {
	cfg := &config{
		logger:        process.NewFmtLogger(nil),
		workers:       4,
		batchSize:     10,
		pollInterval:  500 * time.Millisecond,
		leaseDuration: 5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.store == nil {
		cfg.store = store.NewMemoryStore()
	}

	definitions := process.NewDefinitionRegistry(process.WithRegistryLogger(cfg.logger))
	rt := runtime.New(definitions, runtime.WithLogger(cfg.logger))
	commands := command.NewExecutor(cfg.store, command.WithLogger(cfg.logger))

	handlers := jobs.NewBuiltinRegistry(rt)
	policy := jobs.NewCycleRetryPolicy(definitions, jobs.WithPolicyLogger(cfg.logger))

	execOpts := []executor.Option{
		executor.WithExecutorLogger(cfg.logger),
		executor.WithWorkers(cfg.workers),
		executor.WithBatchSize(cfg.batchSize),
		executor.WithPollInterval(cfg.pollInterval),
		executor.WithLeaseDuration(cfg.leaseDuration),
	}
	if cfg.workerID != "" {
		execOpts = append(execOpts, executor.WithWorkerID(cfg.workerID))
	}
	jobExec := executor.New(commands, handlers, policy, execOpts...)
	commands.SetJobNotifier(jobExec.Notify)

	return &Engine{
		store:       cfg.store,
		definitions: definitions,
		runtime:     rt,
		commands:    commands,
		jobExec:     jobExec,
		logger:      cfg.logger,
	}
}

// Definitions exposes the deployment registry.
func (e *Engine) Definitions() *process.DefinitionRegistry {
	return e.definitions
}

// Commands exposes the command executor for callers composing their own
// multi-operation commands.
func (e *Engine) Commands() *command.Executor {
	return e.commands
}

// Jobs exposes the job executor for status inspection.
func (e *Engine) Jobs() *executor.JobExecutor {
	return e.jobExec
}

// Start launches the background job executor. Returns immediately; the loop
// runs until Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started", errors.CategoryConflict)
	}
	go func() {
		if err := e.jobExec.Run(ctx); err != nil {
			e.logger.Error("job executor exited: %v", err)
		}
	}()
	return nil
}

// Stop shuts the job executor down, waiting for in-flight jobs.
func (e *Engine) Stop(ctx context.Context) error {
	e.started.Store(false)
	return e.jobExec.Stop(ctx)
}

// Deploy registers a definition; a timer-start declaration schedules the
// first firing as a durable job in its own command.
func (e *Engine) Deploy(ctx context.Context, def *process.ProcessDefinition) (*process.ProcessDefinition, error) {
	deployed, err := e.definitions.Deploy(def)
	if err != nil {
		return nil, err
	}
	if deployed.TimerStart == nil {
		return deployed, nil
	}

	due, err := process.TimerDue(deployed.TimerStart, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	err = e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		job := process.NewJob(process.JobTypeTimerStart, deployed.Key)
		job.ProcessDefinitionID = deployed.ID
		job.DueDate = due
		if err := c.Session().InsertJob(ctx, job); err != nil {
			return err
		}
		c.NotifyJobCreated()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deployed, nil
}

// StartProcessByKey starts an instance of the latest deployed version.
func (e *Engine) StartProcessByKey(ctx context.Context, key string, vars map[string]any) (*process.Execution, error) {
	return command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) (*process.Execution, error) {
		return e.runtime.StartInstanceByKey(ctx, c, key, vars)
	})
}

// SignalExecution delivers an external event to a waiting execution.
func (e *Engine) SignalExecution(ctx context.Context, executionID, event string, data map[string]any) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		return e.runtime.SignalExecution(ctx, c, executionID, event, data)
	})
}

// CompleteTask completes a user task, resuming its execution.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		return e.runtime.CompleteTask(ctx, c, taskID)
	})
}

// TriggerEventScope fires an event-scope execution, consuming it.
func (e *Engine) TriggerEventScope(ctx context.Context, executionID string) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		return e.runtime.TriggerEventScope(ctx, c, executionID)
	})
}

// DeleteProcessInstance cascades over the whole instance tree, linked
// sub-process instances included, in one atomic command.
func (e *Engine) DeleteProcessInstance(ctx context.Context, processInstanceID, reason string) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		return e.runtime.DeleteInstance(ctx, c, processInstanceID, reason)
	})
}

// SetVariable writes a variable through the scope chain of an execution.
func (e *Engine) SetVariable(ctx context.Context, executionID, name string, value any) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		exec, err := c.Session().FindExecution(ctx, executionID)
		if err != nil {
			return err
		}
		return e.runtime.Variables(c, exec).Set(ctx, name, value)
	})
}

// GetVariable reads a variable visible at an execution's scope.
func (e *Engine) GetVariable(ctx context.Context, executionID, name string) (any, error) {
	return command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) (any, error) {
		exec, err := c.Session().FindExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}
		value, _, err := e.runtime.Variables(c, exec).Get(ctx, name)
		return value, err
	})
}

// Tasks lists the open user tasks of an instance.
func (e *Engine) Tasks(ctx context.Context, processInstanceID string) ([]*process.Task, error) {
	return command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) ([]*process.Task, error) {
		return c.Session().FindTasksByInstance(ctx, processInstanceID)
	})
}

// Executions lists the live execution tree of an instance.
func (e *Engine) Executions(ctx context.Context, processInstanceID string) ([]*process.Execution, error) {
	return command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) ([]*process.Execution, error) {
		return c.Session().FindExecutionsByInstance(ctx, processInstanceID)
	})
}

// FailedJobs lists jobs that exhausted their retries.
func (e *Engine) FailedJobs(ctx context.Context, limit int) ([]*process.Job, error) {
	return command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) ([]*process.Job, error) {
		return c.Session().FindExhaustedJobs(ctx, limit)
	})
}

// SetJobRetries resets a job's remaining retries, the operator path for
// reviving an exhausted job. The lease is cleared so acquisition sees the
// job immediately.
func (e *Engine) SetJobRetries(ctx context.Context, jobID string, retries int) error {
	if retries < 0 {
		return errors.New("retries must be >= 0", errors.CategoryBadInput).
			WithMetadata(map[string]any{"job_id": jobID, "retries": retries})
	}
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		job, err := c.Session().FindJob(ctx, jobID)
		if err != nil {
			return err
		}
		job.Retries = retries
		job.ReleaseLock()
		if err := c.Session().UpdateJob(ctx, job); err != nil {
			return err
		}
		if retries > 0 {
			c.NotifyJobCreated()
		}
		return nil
	})
}
