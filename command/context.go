package command

import (
	"context"
	"sync"

	process "github.com/goliatone/go-process"
)

type contextKey struct{}

// Context is the explicit per-command state: the open store session, the
// transaction-lifecycle listener registry, and the logger. It is passed as a
// parameter through every runtime and job-handler call instead of living in
// goroutine-local state.
type Context struct {
	session process.Session
	logger  process.Logger

	mu          sync.Mutex
	onCommit    []func(context.Context)
	onRollback  []func(context.Context)
	jobNotifier func()
	jobsArmed   bool
}

// Session returns the unit-of-work session every entity access goes through.
func (c *Context) Session() process.Session {
	return c.session
}

// Logger returns the command logger.
func (c *Context) Logger() process.Logger {
	return c.logger
}

// OnCommit registers fn to run after the session commits successfully. A
// rolled-back command never fires its commit listeners; this is the hook the
// job wake-up notification rides on.
func (c *Context) OnCommit(fn func(context.Context)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = append(c.onCommit, fn)
}

// OnRollback registers fn to run after the session rolls back.
func (c *Context) OnRollback(fn func(context.Context)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRollback = append(c.onRollback, fn)
}

// NotifyJobCreated arms the acquisition wake-up. The signal rides a commit
// listener, so a rolled-back command never wakes the acquirer, and several
// jobs in one command collapse into one signal.
func (c *Context) NotifyJobCreated() {
	c.mu.Lock()
	armed := c.jobsArmed
	notifier := c.jobNotifier
	c.jobsArmed = true
	c.mu.Unlock()
	if armed || notifier == nil {
		return
	}
	c.OnCommit(func(context.Context) {
		notifier()
	})
}

func (c *Context) fireCommit(ctx context.Context) {
	c.mu.Lock()
	listeners := c.onCommit
	c.onCommit = nil
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ctx)
	}
}

func (c *Context) fireRollback(ctx context.Context) {
	c.mu.Lock()
	listeners := c.onRollback
	c.onRollback = nil
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ctx)
	}
}

// WithContext marks ctx as carrying an active command. Executor uses the
// marker as its reentrancy guard.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the active command on this call chain, if any.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(contextKey{}).(*Context); ok {
		return c
	}
	return nil
}
