package process

import (
	"context"
	"time"
)

// EntityStore opens unit-of-work sessions over the durable entities. The
// runtime never talks to storage except through a session obtained from the
// enclosing command.
type EntityStore interface {
	Begin(ctx context.Context) (Session, error)
}

// Session is one unit of work: every read is served through a per-session
// cache so repeated finds observe in-flight mutations, and every mutation is
// buffered until Commit. Commit applies all buffered changes atomically,
// failing the whole session with a conflict if any touched entity moved
// underneath it. Rollback discards everything.
//
// Find methods return the session's cached instance; mutating it and calling
// the matching Update marks it dirty.
type Session interface {
	FindExecution(ctx context.Context, id string) (*Execution, error)
	FindExecutionsByInstance(ctx context.Context, processInstanceID string) ([]*Execution, error)
	FindChildExecutions(ctx context.Context, parentID string) ([]*Execution, error)
	InsertExecution(ctx context.Context, e *Execution) error
	UpdateExecution(ctx context.Context, e *Execution) error
	DeleteExecution(ctx context.Context, id string) error

	FindJob(ctx context.Context, id string) (*Job, error)
	// FindDueJobs returns acquirable jobs ordered by priority descending,
	// then due date ascending, up to limit.
	FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	FindJobsByInstance(ctx context.Context, processInstanceID string) ([]*Job, error)
	// FindExhaustedJobs returns terminally failed jobs for operator
	// inspection.
	FindExhaustedJobs(ctx context.Context, limit int) ([]*Job, error)
	InsertJob(ctx context.Context, j *Job) error
	UpdateJob(ctx context.Context, j *Job) error
	DeleteJob(ctx context.Context, id string) error

	FindTask(ctx context.Context, id string) (*Task, error)
	FindTasksByInstance(ctx context.Context, processInstanceID string) ([]*Task, error)
	InsertTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasksByInstance(ctx context.Context, processInstanceID string) error

	FindVariable(ctx context.Context, executionID, name string) (*Variable, error)
	FindVariablesByExecution(ctx context.Context, executionID string) ([]*Variable, error)
	InsertVariable(ctx context.Context, v *Variable) error
	UpdateVariable(ctx context.Context, v *Variable) error
	DeleteVariablesByExecution(ctx context.Context, executionID string) error

	Commit(ctx context.Context) error
	Rollback() error
}
