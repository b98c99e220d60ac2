package command_test

import (
	"context"
	"errors"
	"testing"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
	"github.com/goliatone/go-process/store"
)

var errBoom = errors.New("boom")

func newExecutor(t *testing.T, opts ...command.Option) *command.Executor {
	t.Helper()
	return command.NewExecutor(store.NewMemoryStore(), opts...)
}

func TestExecuteCommitsAndFiresCommitListeners(t *testing.T) {
	e := newExecutor(t)

	var fired []string
	err := e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		exec := process.NewExecution()
		exec.ProcessInstanceID = exec.ID
		if err := c.Session().InsertExecution(ctx, exec); err != nil {
			return err
		}
		c.OnCommit(func(context.Context) { fired = append(fired, "commit") })
		c.OnRollback(func(context.Context) { fired = append(fired, "rollback") })
		fired = append(fired, "body")
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fired) != 2 || fired[0] != "body" || fired[1] != "commit" {
		t.Fatalf("commit listener must fire after the body, once: %v", fired)
	}
}

func TestExecuteRollsBackOnError(t *testing.T) {
	st := store.NewMemoryStore()
	e := command.NewExecutor(st)

	var execID string
	var fired []string
	err := e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		exec := process.NewExecution()
		exec.ProcessInstanceID = exec.ID
		execID = exec.ID
		if err := c.Session().InsertExecution(ctx, exec); err != nil {
			return err
		}
		c.OnCommit(func(context.Context) { fired = append(fired, "commit") })
		c.OnRollback(func(context.Context) { fired = append(fired, "rollback") })
		return errBoom
	})
	if err == nil {
		t.Fatalf("expected the command error")
	}
	if len(fired) != 1 || fired[0] != "rollback" {
		t.Fatalf("rollback listener must fire on failure: %v", fired)
	}

	// nothing committed
	session, _ := st.Begin(context.Background())
	defer session.Rollback()
	if _, err := session.FindExecution(context.Background(), execID); !process.IsNotFound(err) {
		t.Fatalf("inserted row must not survive rollback: %v", err)
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	e := newExecutor(t)
	err := e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		panic("handler exploded")
	})
	if err == nil {
		t.Fatalf("panic must surface as an error")
	}
}

func TestExecuteRejectsNestedCommands(t *testing.T) {
	e := newExecutor(t)
	err := e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		return e.Execute(ctx, func(ctx context.Context, c *command.Context) error {
			return nil
		})
	})
	if err == nil {
		t.Fatalf("nested command must be rejected")
	}
}

func TestJobNotifierFiresOnCommitOnly(t *testing.T) {
	notified := 0
	e := newExecutor(t, command.WithJobNotifier(func() { notified++ }))

	// several jobs in one command collapse into a single signal
	err := e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		for i := 0; i < 3; i++ {
			job := process.NewJob(process.JobTypeAsyncContinue, "step")
			if err := c.Session().InsertJob(ctx, job); err != nil {
				return err
			}
			c.NotifyJobCreated()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if notified != 1 {
		t.Fatalf("want one coalesced wake-up, got %d", notified)
	}

	// a rolled-back command never signals
	_ = e.Execute(context.Background(), func(ctx context.Context, c *command.Context) error {
		job := process.NewJob(process.JobTypeAsyncContinue, "step")
		if err := c.Session().InsertJob(ctx, job); err != nil {
			return err
		}
		c.NotifyJobCreated()
		return errBoom
	})
	if notified != 1 {
		t.Fatalf("rollback must not wake acquisition, got %d", notified)
	}
}

func TestRunReturnsValue(t *testing.T) {
	e := newExecutor(t)
	got, err := command.Run(context.Background(), e, func(ctx context.Context, c *command.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d", got)
	}
}
