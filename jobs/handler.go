package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
	"github.com/goliatone/go-process/runtime"
)

// Handler executes one acquired job inside its owning command. Returning an
// error fails the job and routes it through the retry policy; the command is
// rolled back so the job's own deletion never commits on failure.
type Handler interface {
	Execute(ctx context.Context, c *command.Context, job *process.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c *command.Context, job *process.Job) error

func (f HandlerFunc) Execute(ctx context.Context, c *command.Context, job *process.Job) error {
	return f(ctx, c, job)
}

// Registry maps job handler types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds a handler to a job type, replacing any prior binding.
func (r *Registry) Register(jobType string, h Handler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
	return r
}

// Resolve returns the handler for jobType.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(fmt.Sprintf("no handler registered for job type %q", jobType), errors.CategoryBadInput).
			WithTextCode(process.ErrCodeHandlerResolution)
	}
	return h, nil
}

// NewBuiltinRegistry returns a registry with the runtime's own job types
// bound: async continuations, boundary timer firings, and timer starts.
func NewBuiltinRegistry(rt *runtime.Runtime) *Registry {
	return NewRegistry().
		Register(process.JobTypeAsyncContinue, &AsyncContinueHandler{Runtime: rt}).
		Register(process.JobTypeTimerCatch, &TimerCatchHandler{Runtime: rt}).
		Register(process.JobTypeTimerStart, &TimerStartHandler{Runtime: rt})
}

func resolutionError(msg string, meta map[string]any) error {
	return errors.New(msg, errors.CategoryBadInput).
		WithTextCode(process.ErrCodeHandlerResolution).
		WithMetadata(meta)
}

// AsyncContinueHandler resumes an activity that was entered asynchronously.
// The job's handler config names the activity the execution was parked at.
type AsyncContinueHandler struct {
	Runtime *runtime.Runtime
}

func (h *AsyncContinueHandler) Execute(ctx context.Context, c *command.Context, job *process.Job) error {
	exec, err := c.Session().FindExecution(ctx, job.ExecutionID)
	if err != nil {
		return err
	}
	if exec.ActivityID != job.HandlerConfig {
		return resolutionError("execution moved past the continuation point", map[string]any{
			"execution": exec.ID,
			"expected":  job.HandlerConfig,
			"actual":    exec.ActivityID,
		})
	}
	return h.Runtime.ExecuteActivity(ctx, c, exec, job.HandlerConfig)
}

// TimerCatchHandler fires a boundary timer: it signals the waiting execution
// with the "timer" event so the activity leaves via its timer transition.
type TimerCatchHandler struct {
	Runtime *runtime.Runtime
}

func (h *TimerCatchHandler) Execute(ctx context.Context, c *command.Context, job *process.Job) error {
	exec, err := c.Session().FindExecution(ctx, job.ExecutionID)
	if err != nil {
		return err
	}
	if exec.ActivityID != job.HandlerConfig {
		return resolutionError("timer no longer applies to this execution", map[string]any{
			"execution": exec.ID,
			"expected":  job.HandlerConfig,
			"actual":    exec.ActivityID,
		})
	}
	return h.Runtime.SignalExecution(ctx, c, exec.ID, "timer", nil)
}

// TimerStartHandler starts a fresh instance of the definition keyed in the
// job's handler config. Cron timer starts reschedule themselves: the next
// firing is inserted as a new job in the same command, so a rollback loses
// neither the instance nor the schedule.
type TimerStartHandler struct {
	Runtime *runtime.Runtime
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (h *TimerStartHandler) Execute(ctx context.Context, c *command.Context, job *process.Job) error {
	def, err := h.Runtime.Definitions().LatestByKey(job.HandlerConfig)
	if err != nil {
		return err
	}
	if def.TimerStart == nil {
		return resolutionError("definition has no timer start", map[string]any{
			"definition": def.ID,
			"key":        job.HandlerConfig,
		})
	}

	if _, err := h.Runtime.StartInstance(ctx, c, def, nil, nil); err != nil {
		return err
	}

	if !process.TimerRepeats(def.TimerStart) {
		return nil
	}
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}
	due, err := process.TimerDue(def.TimerStart, now)
	if err != nil {
		return err
	}
	next := process.NewJob(process.JobTypeTimerStart, job.HandlerConfig)
	next.ProcessDefinitionID = def.ID
	next.DueDate = due
	if err := c.Session().InsertJob(ctx, next); err != nil {
		return err
	}
	c.NotifyJobCreated()
	return nil
}
