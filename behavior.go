package process

import "context"

// Behavior is the minimum capability an activity implementation opts into:
// being executed when an execution arrives at its node.
//
// Further capabilities are separate interfaces checked at dispatch time:
// Signallable for wait states resumed by an external trigger, Composite for
// nodes that must observe child executions ending. A behavior implements
// exactly the set it needs.
type Behavior interface {
	Execute(ctx context.Context, ae ActivityExecution) error
}

// Signallable is the capability of being resumed by an external event while
// the execution waits at the activity.
type Signallable interface {
	Signal(ctx context.Context, ae ActivityExecution, event string, data map[string]any) error
}

// Composite is the capability of hosting child executions. ChildEnded fires
// each time a directly-owned child finishes inside the composite's scope.
type Composite interface {
	ChildEnded(ctx context.Context, ae ActivityExecution, child *Execution) error
}

// SubProcessCaller is the capability of owning a linked sub-process instance
// tree. Completed fires when that tree's root ends, carrying the sub
// instance's final variables for output mapping.
type SubProcessCaller interface {
	Completed(ctx context.Context, ae ActivityExecution, output map[string]any) error
}

// ActivityExecution is the behavior-facing view of one execution positioned
// at one activity. It exposes every tree operation a behavior may trigger;
// all mutations flow through the enclosing command and commit atomically.
type ActivityExecution interface {
	Execution() *Execution
	Activity() *Activity
	Definition() *ProcessDefinition
	Variables() VariableScope

	// Leave exits the activity through its outgoing transitions, evaluating
	// conditions and forking when several transitions are taken.
	Leave(ctx context.Context) error

	// LeaveVia exits through an explicit transition set.
	LeaveVia(ctx context.Context, transitions []*Transition) error

	// Join parks this execution inactive at the current activity and fires
	// the join when the last expected concurrent sibling has arrived.
	Join(ctx context.Context) error

	// End completes this branch, propagating completion up the tree.
	End(ctx context.Context) error

	// BecomeEventScope carries the outgoing flow forward on a fresh sibling
	// and converts this execution into an inert event-scope placeholder.
	BecomeEventScope(ctx context.Context) error

	// StartSubInstance starts a separate process-instance tree for the
	// latest definition of key, linked back to this execution.
	StartSubInstance(ctx context.Context, key string, vars map[string]any) error

	// ScheduleJob persists a job inside the current command. The job becomes
	// acquirable only when the command commits.
	ScheduleJob(ctx context.Context, job *Job) error

	// CreateTask persists a user task owned by this execution.
	CreateTask(ctx context.Context, name, assignee string) (*Task, error)
}

// VariableScope is the hierarchical variable view rooted at an execution.
// Reads resolve up the parent chain; writes land at the nearest enclosing
// scope execution unless set locally.
type VariableScope interface {
	Get(ctx context.Context, name string) (any, bool, error)
	Set(ctx context.Context, name string, value any) error
	SetLocal(ctx context.Context, name string, value any) error
	// Locals returns the bindings owned directly by this scope.
	Locals(ctx context.Context) (map[string]any, error)
}
