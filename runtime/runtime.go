package runtime

import (
	"context"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// Runtime advances execution trees over deployed activity graphs. It holds no
// per-instance state of its own: every operation works against the session of
// the enclosing command and commits or rolls back with it.
type Runtime struct {
	definitions *process.DefinitionRegistry
	logger      process.Logger
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l process.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// New constructs a Runtime over the given definition registry.
func New(definitions *process.DefinitionRegistry, opts ...Option) *Runtime {
	rt := &Runtime{
		definitions: definitions,
		logger:      process.NewFmtLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}
	return rt
}

// Definitions exposes the registry the runtime resolves graphs from.
func (rt *Runtime) Definitions() *process.DefinitionRegistry {
	return rt.definitions
}

// StartInstanceByKey starts a new process instance for the latest deployed
// version of key.
func (rt *Runtime) StartInstanceByKey(ctx context.Context, c *command.Context, key string, vars map[string]any) (*process.Execution, error) {
	def, err := rt.definitions.LatestByKey(key)
	if err != nil {
		return nil, err
	}
	return rt.StartInstance(ctx, c, def, vars, nil)
}

// StartInstance creates a fresh instance tree for def and advances it into
// the initial activity. When super is non-nil the new tree is a sub-process
// instance linked back to the calling execution; the link is wired before
// the initial activity runs so a synchronously completing sub-process still
// notifies its caller correctly.
func (rt *Runtime) StartInstance(ctx context.Context, c *command.Context, def *process.ProcessDefinition, vars map[string]any, super *process.Execution) (*process.Execution, error) {
	if def == nil || def.Initial == nil {
		return nil, errors.New("definition with initial activity required", errors.CategoryBadInput)
	}

	root := process.NewExecution()
	root.ProcessInstanceID = root.ID
	root.ProcessDefinitionID = def.ID
	root.IsScope = true
	if super != nil {
		root.SuperExecutionID = super.ID
	}
	if err := c.Session().InsertExecution(ctx, root); err != nil {
		return nil, err
	}

	for name, value := range vars {
		if err := c.Session().InsertVariable(ctx, process.NewVariable(root, name, value)); err != nil {
			return nil, err
		}
	}

	if super != nil {
		super.SubProcessInstanceID = root.ID
		if err := c.Session().UpdateExecution(ctx, super); err != nil {
			return nil, err
		}
	}

	rt.logger.Debug("started process instance id=%s definition=%s", root.ID, def.ID)

	if err := rt.enterActivity(ctx, c, root, def, def.Initial); err != nil {
		return nil, err
	}
	return root, nil
}

// SignalExecution resumes the execution waiting at its current activity. The
// activity's behavior must opt into the Signallable capability.
func (rt *Runtime) SignalExecution(ctx context.Context, c *command.Context, executionID, event string, data map[string]any) error {
	exec, err := c.Session().FindExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Role != process.RoleActive {
		return errors.New("execution is not signallable in its current role", errors.CategoryBadInput).
			WithMetadata(map[string]any{"execution_id": executionID, "role": string(exec.Role)})
	}

	def, activity, err := rt.activityFor(exec)
	if err != nil {
		return err
	}

	signallable, ok := activity.Behavior.(process.Signallable)
	if !ok {
		return errors.New("activity behavior does not accept signals", errors.CategoryBadInput).
			WithMetadata(map[string]any{"activity_id": activity.ID})
	}
	ae := rt.newActivityExecution(c, exec, def, activity)
	return signallable.Signal(ctx, ae, event, data)
}

// ExecuteActivity dispatches the behavior of activityID for the given
// execution. Async continuation jobs resume through here, bypassing the
// async deferral that created them.
func (rt *Runtime) ExecuteActivity(ctx context.Context, c *command.Context, exec *process.Execution, activityID string) error {
	def, err := rt.definitions.ByID(exec.ProcessDefinitionID)
	if err != nil {
		return err
	}
	activity := def.FindActivity(activityID)
	if activity == nil {
		return process.NotFoundError("activity", process.ErrCodeDefinitionNotFound, activityID)
	}
	if exec.ActivityID != activityID {
		exec.ActivityID = activityID
		if err := c.Session().UpdateExecution(ctx, exec); err != nil {
			return err
		}
	}
	return rt.dispatch(ctx, c, exec, def, activity)
}

// TriggerEventScope explicitly ends an event-scope placeholder after its
// pending event or compensation has been handled. Normal completion never
// removes event scopes; this and cascading delete are the only ways out.
func (rt *Runtime) TriggerEventScope(ctx context.Context, c *command.Context, executionID string) error {
	session := c.Session()
	exec, err := session.FindExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if !exec.IsEventScope() {
		return errors.New("execution is not an event scope", errors.CategoryBadInput).
			WithMetadata(map[string]any{"execution_id": executionID, "role": string(exec.Role)})
	}
	if err := exec.TransitionRole(process.RoleEnded); err != nil {
		return err
	}
	if err := session.DeleteVariablesByExecution(ctx, exec.ID); err != nil {
		return err
	}
	return session.DeleteExecution(ctx, exec.ID)
}

// CompleteTask completes a user task and signals its execution forward.
func (rt *Runtime) CompleteTask(ctx context.Context, c *command.Context, taskID string) error {
	task, err := c.Session().FindTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := c.Session().DeleteTask(ctx, taskID); err != nil {
		return err
	}
	return rt.SignalExecution(ctx, c, task.ExecutionID, "complete", nil)
}

// Variables returns the hierarchical variable view rooted at an execution.
func (rt *Runtime) Variables(c *command.Context, exec *process.Execution) process.VariableScope {
	return &variableScope{rt: rt, c: c, exec: exec}
}

// enterActivity positions exec at activity and runs its behavior, unless the
// activity defers entry to an async continuation job.
func (rt *Runtime) enterActivity(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, activity *process.Activity) error {
	exec.ActivityID = activity.ID
	if err := c.Session().UpdateExecution(ctx, exec); err != nil {
		return err
	}

	if activity.Async {
		job := process.NewJob(process.JobTypeAsyncContinue, activity.ID)
		job.ExecutionID = exec.ID
		job.ProcessInstanceID = exec.ProcessInstanceID
		job.ProcessDefinitionID = exec.ProcessDefinitionID
		rt.logger.Debug("deferring activity=%s to continuation job=%s", activity.ID, job.ID)
		return scheduleJob(ctx, c, job)
	}

	return rt.dispatch(ctx, c, exec, def, activity)
}

// dispatch runs the behavior attached to the activity; activities without a
// behavior pass straight through.
func (rt *Runtime) dispatch(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, activity *process.Activity) error {
	ae := rt.newActivityExecution(c, exec, def, activity)
	if activity.Behavior == nil {
		return ae.Leave(ctx)
	}
	return activity.Behavior.Execute(ctx, ae)
}

// activityFor resolves the definition and current activity of an execution.
func (rt *Runtime) activityFor(exec *process.Execution) (*process.ProcessDefinition, *process.Activity, error) {
	def, err := rt.definitions.ByID(exec.ProcessDefinitionID)
	if err != nil {
		return nil, nil, err
	}
	if exec.ActivityID == "" {
		return nil, nil, errors.New("execution is not positioned at an activity", errors.CategoryBadInput).
			WithMetadata(map[string]any{"execution_id": exec.ID})
	}
	activity := def.FindActivity(exec.ActivityID)
	if activity == nil {
		return nil, nil, process.NotFoundError("activity", process.ErrCodeDefinitionNotFound, exec.ActivityID)
	}
	return def, activity, nil
}
