package runtime

import (
	"context"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// activityExecution is the behavior-facing view of one execution positioned
// at one activity, bound to the enclosing command.
type activityExecution struct {
	rt       *Runtime
	c        *command.Context
	exec     *process.Execution
	def      *process.ProcessDefinition
	activity *process.Activity
}

func (rt *Runtime) newActivityExecution(c *command.Context, exec *process.Execution, def *process.ProcessDefinition, activity *process.Activity) *activityExecution {
	return &activityExecution{rt: rt, c: c, exec: exec, def: def, activity: activity}
}

func (ae *activityExecution) Execution() *process.Execution             { return ae.exec }
func (ae *activityExecution) Activity() *process.Activity               { return ae.activity }
func (ae *activityExecution) Definition() *process.ProcessDefinition    { return ae.def }
func (ae *activityExecution) Variables() process.VariableScope {
	return &variableScope{rt: ae.rt, c: ae.c, exec: ae.exec}
}

func (ae *activityExecution) Leave(ctx context.Context) error {
	vars, err := visibleVariables(ctx, ae.c, ae.exec)
	if err != nil {
		return err
	}
	transitions := openTransitions(ae.activity, vars)
	if len(transitions) == 0 && len(ae.activity.Outgoing) > 0 {
		if def := ae.activity.DefaultTransition(); def != nil {
			transitions = []*process.Transition{def}
		}
	}
	return ae.rt.leaveActivityViaTransitions(ctx, ae.c, ae.exec, ae.def, transitions)
}

func (ae *activityExecution) LeaveVia(ctx context.Context, transitions []*process.Transition) error {
	return ae.rt.leaveActivityViaTransitions(ctx, ae.c, ae.exec, ae.def, transitions)
}

func (ae *activityExecution) Join(ctx context.Context) error {
	return ae.rt.joinAt(ctx, ae.c, ae.exec, ae.def, ae.activity)
}

func (ae *activityExecution) End(ctx context.Context) error {
	return ae.rt.end(ctx, ae.c, ae.exec)
}

func (ae *activityExecution) BecomeEventScope(ctx context.Context) error {
	return ae.rt.becomeEventScope(ctx, ae.c, ae.exec, ae.def, ae.activity)
}

func (ae *activityExecution) StartSubInstance(ctx context.Context, key string, vars map[string]any) error {
	def, err := ae.rt.definitions.LatestByKey(key)
	if err != nil {
		return err
	}
	_, err = ae.rt.StartInstance(ctx, ae.c, def, vars, ae.exec)
	return err
}

func (ae *activityExecution) ScheduleJob(ctx context.Context, job *process.Job) error {
	if job.ExecutionID == "" {
		job.ExecutionID = ae.exec.ID
	}
	job.ProcessInstanceID = ae.exec.ProcessInstanceID
	job.ProcessDefinitionID = ae.exec.ProcessDefinitionID
	return scheduleJob(ctx, ae.c, job)
}

func (ae *activityExecution) CreateTask(ctx context.Context, name, assignee string) (*process.Task, error) {
	task := process.NewTask(ae.exec, name)
	task.Assignee = assignee
	if err := ae.c.Session().InsertTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// scheduleJob persists a job in the current command and arms the
// acquisition wake-up, which only fires if the command commits.
func scheduleJob(ctx context.Context, c *command.Context, job *process.Job) error {
	if err := c.Session().InsertJob(ctx, job); err != nil {
		return err
	}
	c.NotifyJobCreated()
	return nil
}
