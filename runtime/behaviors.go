package runtime

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// PassThroughBehavior runs an optional delegate and leaves. It backs plain
// service steps and none start/end events.
type PassThroughBehavior struct {
	// Delegate optionally performs the activity's work before the
	// execution moves on.
	Delegate func(ctx context.Context, ae process.ActivityExecution) error
}

func (b *PassThroughBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	if b.Delegate != nil {
		if err := b.Delegate(ctx, ae); err != nil {
			return err
		}
	}
	return ae.Leave(ctx)
}

// UserTaskBehavior creates a task and waits for completion. A declared
// boundary timer is scheduled on entry; when it fires the execution leaves
// through the boundary transition.
type UserTaskBehavior struct {
	// Assignee optionally pre-assigns created tasks.
	Assignee string
}

func (b *UserTaskBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	activity := ae.Activity()
	name := activity.Name
	if name == "" {
		name = activity.ID
	}
	if _, err := ae.CreateTask(ctx, name, b.Assignee); err != nil {
		return err
	}
	return scheduleBoundaryTimer(ctx, ae)
}

func (b *UserTaskBehavior) Signal(ctx context.Context, ae process.ActivityExecution, event string, _ map[string]any) error {
	switch event {
	case "complete", "":
		return ae.Leave(ctx)
	case "timer":
		return leaveViaBoundary(ctx, ae)
	default:
		return errors.New("unsupported signal event", errors.CategoryBadInput).
			WithMetadata(map[string]any{"event": event, "activity_id": ae.Activity().ID})
	}
}

// ReceiveBehavior waits for an external signal or a timer, doing no work of
// its own. It backs message-catch and timer-catch style nodes.
type ReceiveBehavior struct{}

func (b *ReceiveBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	return scheduleBoundaryTimer(ctx, ae)
}

func (b *ReceiveBehavior) Signal(ctx context.Context, ae process.ActivityExecution, event string, _ map[string]any) error {
	if event == "timer" {
		return leaveViaBoundary(ctx, ae)
	}
	return ae.Leave(ctx)
}

// ParallelGatewayBehavior forks on multiple outgoing transitions and joins
// on multiple incoming ones. Conditions on outgoing transitions are ignored:
// a parallel gateway always takes every path.
type ParallelGatewayBehavior struct{}

func (b *ParallelGatewayBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	if len(ae.Activity().Incoming) > 1 {
		return ae.Join(ctx)
	}
	return ae.LeaveVia(ctx, ae.Activity().Outgoing)
}

// ExclusiveGatewayBehavior takes the first outgoing transition whose
// condition holds, falling back to the declared default transition.
type ExclusiveGatewayBehavior struct{}

func (b *ExclusiveGatewayBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	vars, err := collectVisible(ctx, ae)
	if err != nil {
		return err
	}

	for _, tr := range ae.Activity().Outgoing {
		if tr.Default {
			continue
		}
		if tr.Condition == nil || tr.Condition(vars) {
			return ae.LeaveVia(ctx, []*process.Transition{tr})
		}
	}
	if def := ae.Activity().DefaultTransition(); def != nil {
		return ae.LeaveVia(ctx, []*process.Transition{def})
	}
	return errors.Wrap(errNoTransition, errors.CategoryBadInput, "exclusive gateway stuck").
		WithMetadata(map[string]any{"activity_id": ae.Activity().ID})
}

// SubProcessBehavior hosts an embedded sub-graph. The hosting execution
// stays parked at the activity as the scope boundary while a child executes
// the nested graph; when the last child ends the scope completes and leaves.
type SubProcessBehavior struct{}

func (b *SubProcessBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	activity := ae.Activity()
	if activity.Initial == nil {
		return errors.New("embedded sub-process requires an initial activity", errors.CategoryBadInput).
			WithMetadata(map[string]any{"activity_id": activity.ID})
	}

	exec := ae.Execution()
	exec.IsScope = true
	exec.IsActive = false
	rt, c := runtimeOf(ae)
	if err := c.Session().UpdateExecution(ctx, exec); err != nil {
		return err
	}

	child := process.NewExecution()
	child.ParentID = exec.ID
	child.ProcessInstanceID = exec.ProcessInstanceID
	child.ProcessDefinitionID = exec.ProcessDefinitionID
	if err := c.Session().InsertExecution(ctx, child); err != nil {
		return err
	}
	return rt.enterActivity(ctx, c, child, ae.Definition(), activity.Initial)
}

func (b *SubProcessBehavior) ChildEnded(ctx context.Context, ae process.ActivityExecution, _ *process.Execution) error {
	_, c := runtimeOf(ae)
	children, err := c.Session().FindChildExecutions(ctx, ae.Execution().ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.IsEventScope() {
			return nil // branches still running inside the scope
		}
	}
	exec := ae.Execution()
	exec.IsActive = true
	if err := c.Session().UpdateExecution(ctx, exec); err != nil {
		return err
	}
	return ae.Leave(ctx)
}

// CallActivityBehavior starts a separate process-instance tree and waits for
// it. Output variables of the finished sub instance are copied into the
// caller's scope before the caller moves on.
type CallActivityBehavior struct {
	// Key selects the called definition; the latest deployed version wins.
	Key string
	// Outputs lists sub-instance variables copied back to the caller; nil
	// copies everything.
	Outputs []string
}

func (b *CallActivityBehavior) Execute(ctx context.Context, ae process.ActivityExecution) error {
	vars, err := collectVisible(ctx, ae)
	if err != nil {
		return err
	}
	return ae.StartSubInstance(ctx, b.Key, vars)
}

func (b *CallActivityBehavior) Completed(ctx context.Context, ae process.ActivityExecution, output map[string]any) error {
	scope := ae.Variables()
	for name, value := range output {
		if len(b.Outputs) > 0 && !containsName(b.Outputs, name) {
			continue
		}
		if err := scope.Set(ctx, name, value); err != nil {
			return err
		}
	}
	return ae.Leave(ctx)
}

// CompensableTaskBehavior is a user task whose execution is kept alive as an
// event scope after normal completion, so a late trigger can still address
// the activity's compensation context.
type CompensableTaskBehavior struct {
	UserTaskBehavior
}

func (b *CompensableTaskBehavior) Signal(ctx context.Context, ae process.ActivityExecution, event string, data map[string]any) error {
	switch event {
	case "complete", "":
		return ae.BecomeEventScope(ctx)
	default:
		return b.UserTaskBehavior.Signal(ctx, ae, event, data)
	}
}

// scheduleBoundaryTimer creates the timer-catch job for an activity-level
// timer declaration, due per the declaration.
func scheduleBoundaryTimer(ctx context.Context, ae process.ActivityExecution) error {
	decl := ae.Activity().Timer
	if decl == nil {
		return nil
	}
	due, err := process.TimerDue(decl, time.Now().UTC())
	if err != nil {
		return err
	}
	job := process.NewJob(process.JobTypeTimerCatch, ae.Activity().ID)
	job.DueDate = due
	return ae.ScheduleJob(ctx, job)
}

func leaveViaBoundary(ctx context.Context, ae process.ActivityExecution) error {
	decl := ae.Activity().Timer
	if decl != nil && decl.TransitionID != "" {
		for _, tr := range ae.Activity().Outgoing {
			if tr.ID == decl.TransitionID {
				return ae.LeaveVia(ctx, []*process.Transition{tr})
			}
		}
	}
	return ae.Leave(ctx)
}

func collectVisible(ctx context.Context, ae process.ActivityExecution) (map[string]any, error) {
	_, c := runtimeOf(ae)
	return visibleVariables(ctx, c, ae.Execution())
}

// runtimeOf unwraps the concrete activity execution. Builtin behaviors live
// beside the runtime and may reach through the interface.
func runtimeOf(ae process.ActivityExecution) (*Runtime, *command.Context) {
	impl := ae.(*activityExecution)
	return impl.rt, impl.c
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
