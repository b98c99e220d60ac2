package command

import (
	"context"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
)

// Command is one atomic unit of work against the engine state.
type Command func(ctx context.Context, c *Context) error

// Executor runs commands: it opens a session, runs the command body, and
// either commits everything or rolls everything back. Transaction-lifecycle
// listeners registered on the command context fire strictly after the
// corresponding outcome.
type Executor struct {
	store       process.EntityStore
	logger      process.Logger
	jobNotifier func()
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l process.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithJobNotifier wires the acquisition wake-up signal fired when a
// committed command created jobs.
func WithJobNotifier(fn func()) Option {
	return func(e *Executor) {
		e.jobNotifier = fn
	}
}

// NewExecutor constructs an Executor over the given store.
func NewExecutor(store process.EntityStore, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		logger: process.NewFmtLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// SetJobNotifier wires the wake-up signal after construction; the engine
// assembles the command executor before the job executor exists.
func (e *Executor) SetJobNotifier(fn func()) {
	e.jobNotifier = fn
}

// Execute runs cmd as one atomic unit of work. Starting a command while one
// is already active on the same call chain is rejected: nested work must use
// the session of the enclosing command.
func (e *Executor) Execute(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("command required", errors.CategoryBadInput)
	}
	if FromContext(ctx) != nil {
		return errors.New("command already active on this call chain", errors.CategoryConflict).
			WithTextCode(process.ErrCodeCommandReentrant)
	}

	session, err := e.store.Begin(ctx)
	if err != nil {
		return process.FatalError(err, "begin unit of work")
	}

	c := &Context{
		session:     session,
		logger:      e.logger,
		jobNotifier: e.jobNotifier,
	}
	cmdCtx := WithContext(ctx, c)

	if err := e.run(cmdCtx, c, cmd); err != nil {
		if rbErr := session.Rollback(); rbErr != nil {
			e.logger.Error("rollback failed after command error: %v", rbErr)
		}
		c.fireRollback(ctx)
		return err
	}

	if err := session.Commit(cmdCtx); err != nil {
		c.fireRollback(ctx)
		return err
	}

	c.fireCommit(ctx)
	return nil
}

// run isolates panic recovery so a panicking command rolls back like any
// other failure.
func (e *Executor) run(ctx context.Context, c *Context, cmd Command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = process.RecoverPanic(rec)
		}
	}()
	return cmd(ctx, c)
}

// Run executes a command that produces a value, sharing Execute's atomicity
// semantics.
func Run[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, c *Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context, c *Context) error {
		var innerErr error
		out, innerErr = fn(ctx, c)
		return innerErr
	})
	return out, err
}
