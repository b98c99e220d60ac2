package runtime

import (
	"context"

	"github.com/goliatone/go-errors"
	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// leaveActivityViaTransitions moves exec out of its activity along the given
// transitions. A single transition reuses the node in place; several fork the
// tree into concurrent children under a fork-point parent.
func (rt *Runtime) leaveActivityViaTransitions(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, transitions []*process.Transition) error {
	if len(transitions) == 0 {
		return rt.end(ctx, c, exec)
	}
	if len(transitions) == 1 {
		return rt.enterActivity(ctx, c, exec, def, transitions[0].Target)
	}
	return rt.fork(ctx, c, exec, def, transitions)
}

// fork creates one concurrent child per transition under the fork-point
// parent. A concurrent execution forking again reuses itself for the first
// transition; a plain execution is parked as the fork point.
func (rt *Runtime) fork(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, transitions []*process.Transition) error {
	session := c.Session()

	if exec.IsConcurrent {
		// reuse exec for the first transition, then widen the fork
		for _, tr := range transitions[1:] {
			child := rt.newConcurrentChild(exec.ParentID, exec)
			if err := session.InsertExecution(ctx, child); err != nil {
				return err
			}
			if err := rt.enterActivity(ctx, c, child, def, tr.Target); err != nil {
				return err
			}
		}
		return rt.enterActivity(ctx, c, exec, def, transitions[0].Target)
	}

	// exec becomes the fork point: parked, inactive, owning one concurrent
	// child per outgoing path
	exec.IsActive = false
	exec.IsScope = true
	exec.ActivityID = ""
	if err := session.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	children := make([]*process.Execution, 0, len(transitions))
	for range transitions {
		child := rt.newConcurrentChild(exec.ID, exec)
		if err := session.InsertExecution(ctx, child); err != nil {
			return err
		}
		children = append(children, child)
	}
	for i, tr := range transitions {
		if err := rt.enterActivity(ctx, c, children[i], def, tr.Target); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) newConcurrentChild(parentID string, template *process.Execution) *process.Execution {
	child := process.NewExecution()
	child.ParentID = parentID
	child.ProcessInstanceID = template.ProcessInstanceID
	child.ProcessDefinitionID = template.ProcessDefinitionID
	child.IsConcurrent = true
	return child
}

// joinAt parks exec inactive at the join activity and fires the join when
// every expected concurrent branch has arrived. A partial join is not an
// error: the command simply ends with the branch parked, and the next
// arriving sibling re-evaluates the count.
func (rt *Runtime) joinAt(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, activity *process.Activity) error {
	session := c.Session()

	exec.IsActive = false
	if err := session.UpdateExecution(ctx, exec); err != nil {
		return err
	}

	if !exec.IsConcurrent {
		// a single non-concurrent arrival joins trivially
		exec.IsActive = true
		return rt.leaveActivityViaTransitions(ctx, c, exec, def, activity.Outgoing)
	}

	joined, err := rt.findInactiveConcurrentExecutions(ctx, c, exec, activity.ID)
	if err != nil {
		return err
	}

	expected := len(activity.Incoming)
	if len(joined) > expected {
		return process.CorruptTreeError("joined executions exceed declared incoming transitions", map[string]any{
			"activity_id": activity.ID,
			"expected":    expected,
			"joined":      len(joined),
		})
	}
	if len(joined) < expected {
		rt.logger.Debug("join parked activity=%s joined=%d expected=%d", activity.ID, len(joined), expected)
		return nil
	}

	return rt.fireJoin(ctx, c, joined, def, activity)
}

// findInactiveConcurrentExecutions collects the inactive siblings already
// waiting at the join activity, first-collected order. The collection order
// fixes the survivor deterministically within one evaluation.
func (rt *Runtime) findInactiveConcurrentExecutions(ctx context.Context, c *command.Context, exec *process.Execution, activityID string) ([]*process.Execution, error) {
	siblings, err := c.Session().FindChildExecutions(ctx, exec.ParentID)
	if err != nil {
		return nil, err
	}
	var joined []*process.Execution
	for _, sib := range siblings {
		if sib.Role != process.RoleActive || sib.IsActive || !sib.IsConcurrent {
			continue
		}
		if sib.ActivityID == activityID {
			joined = append(joined, sib)
		}
	}
	return joined, nil
}

// fireJoin prunes all joined executions except the survivor and moves the
// survivor out through the join activity's outgoing transitions.
func (rt *Runtime) fireJoin(ctx context.Context, c *command.Context, joined []*process.Execution, def *process.ProcessDefinition, activity *process.Activity) error {
	session := c.Session()

	survivor := joined[0]
	for _, ex := range joined[1:] {
		if err := session.DeleteVariablesByExecution(ctx, ex.ID); err != nil {
			return err
		}
		if err := session.DeleteExecution(ctx, ex.ID); err != nil {
			return err
		}
	}

	survivor.IsActive = true
	if err := session.UpdateExecution(ctx, survivor); err != nil {
		return err
	}

	continuing, err := rt.tryPruneLastConcurrentChild(ctx, c, survivor)
	if err != nil {
		return err
	}
	return rt.leaveActivityViaTransitions(ctx, c, continuing, def, activity.Outgoing)
}

// tryPruneLastConcurrentChild merges the survivor back into its fork-point
// parent when it is the last concurrent branch left, clearing the
// concurrency flags so the tree does not accumulate single-child forks.
func (rt *Runtime) tryPruneLastConcurrentChild(ctx context.Context, c *command.Context, survivor *process.Execution) (*process.Execution, error) {
	if !survivor.IsConcurrent || survivor.ParentID == "" {
		return survivor, nil
	}
	session := c.Session()

	siblings, err := session.FindChildExecutions(ctx, survivor.ParentID)
	if err != nil {
		return nil, err
	}
	remaining := 0
	for _, sib := range siblings {
		if sib.Role == process.RoleEnded {
			continue
		}
		remaining++
	}
	if remaining != 1 {
		return survivor, nil
	}

	parent, err := session.FindExecution(ctx, survivor.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.IsEventScope() {
		return survivor, nil
	}

	parent.ActivityID = survivor.ActivityID
	parent.IsActive = true
	if err := session.UpdateExecution(ctx, parent); err != nil {
		return nil, err
	}
	if err := session.DeleteVariablesByExecution(ctx, survivor.ID); err != nil {
		return nil, err
	}
	if err := session.DeleteExecution(ctx, survivor.ID); err != nil {
		return nil, err
	}
	return parent, nil
}

// end completes a branch: the execution is removed and completion propagates
// up the tree, notifying composite behaviors and, at the instance root, the
// calling execution of a sub-process.
func (rt *Runtime) end(ctx context.Context, c *command.Context, exec *process.Execution) error {
	session := c.Session()

	if err := exec.TransitionRole(process.RoleEnded); err != nil {
		return err
	}

	// event-scope children die with the branch that owns them
	children, err := session.FindChildExecutions(ctx, exec.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.IsEventScope() {
			return process.CorruptTreeError("ending execution still owns live children", map[string]any{
				"execution_id": exec.ID,
				"child_id":     child.ID,
			})
		}
		if err := session.DeleteVariablesByExecution(ctx, child.ID); err != nil {
			return err
		}
		if err := session.DeleteExecution(ctx, child.ID); err != nil {
			return err
		}
	}

	var output map[string]any
	if exec.IsProcessInstanceRoot() && exec.SuperExecutionID != "" {
		// capture final variables before the root row disappears
		output, err = rt.localVariables(ctx, c, exec.ID)
		if err != nil {
			return err
		}
	}

	if err := session.DeleteVariablesByExecution(ctx, exec.ID); err != nil {
		return err
	}
	if err := session.DeleteExecution(ctx, exec.ID); err != nil {
		return err
	}

	if exec.IsProcessInstanceRoot() {
		return rt.instanceEnded(ctx, c, exec, output)
	}
	if exec.ParentID == "" {
		return nil
	}
	return rt.childEnded(ctx, c, exec)
}

// childEnded propagates branch completion to the parent execution.
func (rt *Runtime) childEnded(ctx context.Context, c *command.Context, ended *process.Execution) error {
	session := c.Session()

	parent, err := session.FindExecution(ctx, ended.ParentID)
	if err != nil {
		return err
	}

	remaining, err := session.FindChildExecutions(ctx, parent.ID)
	if err != nil {
		return err
	}
	live := 0
	for _, child := range remaining {
		if child.IsEventScope() || child.Role == process.RoleEnded {
			continue
		}
		live++
	}

	if parent.ActivityID != "" {
		// parent occupies a composite activity; its behavior owns the
		// completion decision
		def, activity, err := rt.activityFor(parent)
		if err != nil {
			return err
		}
		if composite, ok := activity.Behavior.(process.Composite); ok {
			ae := rt.newActivityExecution(c, parent, def, activity)
			return composite.ChildEnded(ctx, ae, ended)
		}
		if live == 0 {
			ae := rt.newActivityExecution(c, parent, def, activity)
			return ae.Leave(ctx)
		}
		return nil
	}

	// bare fork point: when the last branch ends without rejoining, the
	// fork point itself completes
	if live == 0 {
		return rt.end(ctx, c, parent)
	}
	return nil
}

// instanceEnded finishes an instance tree; a linked calling execution is
// notified with the final variables so output mapping and continuation run
// in the same command.
func (rt *Runtime) instanceEnded(ctx context.Context, c *command.Context, root *process.Execution, output map[string]any) error {
	rt.logger.Debug("process instance ended id=%s", root.ID)
	if root.SuperExecutionID == "" {
		return nil
	}

	session := c.Session()
	super, err := session.FindExecution(ctx, root.SuperExecutionID)
	if err != nil {
		return err
	}
	super.SubProcessInstanceID = ""
	if err := session.UpdateExecution(ctx, super); err != nil {
		return err
	}

	def, activity, err := rt.activityFor(super)
	if err != nil {
		return err
	}
	ae := rt.newActivityExecution(c, super, def, activity)
	if caller, ok := activity.Behavior.(process.SubProcessCaller); ok {
		return caller.Completed(ctx, ae, output)
	}
	return ae.Leave(ctx)
}

// becomeEventScope converts exec into an inert event-scope placeholder at its
// current activity and carries the outgoing flow forward on a fresh,
// non-concurrent sibling. The placeholder survives normal completion until an
// event or compensation trigger ends it, or a cascading delete sweeps it.
func (rt *Runtime) becomeEventScope(ctx context.Context, c *command.Context, exec *process.Execution, def *process.ProcessDefinition, activity *process.Activity) error {
	session := c.Session()

	forward := process.NewExecution()
	forward.ParentID = exec.ParentID
	forward.ProcessInstanceID = exec.ProcessInstanceID
	forward.ProcessDefinitionID = exec.ProcessDefinitionID
	forward.IsConcurrent = false
	forward.ActivityID = activity.ID
	if err := session.InsertExecution(ctx, forward); err != nil {
		return err
	}

	if err := exec.TransitionRole(process.RoleEventScope); err != nil {
		return err
	}
	if err := session.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	rt.logger.Debug("converted execution=%s into event scope at activity=%s", exec.ID, activity.ID)

	transitions := openTransitions(activity, nil)
	return rt.leaveActivityViaTransitions(ctx, c, forward, def, transitions)
}

// localVariables snapshots the bindings owned directly by an execution.
func (rt *Runtime) localVariables(ctx context.Context, c *command.Context, executionID string) (map[string]any, error) {
	vars, err := c.Session().FindVariablesByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(vars))
	for _, v := range vars {
		out[v.Name] = v.Value
	}
	return out, nil
}

// openTransitions filters outgoing transitions by their guard condition.
func openTransitions(activity *process.Activity, vars map[string]any) []*process.Transition {
	var out []*process.Transition
	for _, tr := range activity.Outgoing {
		if tr.Condition == nil || tr.Condition(vars) {
			out = append(out, tr)
		}
	}
	return out
}

var errNoTransition = errors.New("no outgoing transition is open", errors.CategoryBadInput)
