package runtime

import (
	"context"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// DeleteInstance removes a process instance, every execution in its tree,
// every execution in every nested sub-process tree it spawned, and all tasks
// and jobs owned by any of those instances. The whole operation is one
// command: a failure at any point rolls the entire deletion back. Addressing
// an unknown instance id is a reported error, never a silent no-op.
func (rt *Runtime) DeleteInstance(ctx context.Context, c *command.Context, processInstanceID, reason string) error {
	session := c.Session()

	root, err := session.FindExecution(ctx, processInstanceID)
	if err != nil {
		if process.IsNotFound(err) {
			return process.NotFoundError("process instance", process.ErrCodeInstanceNotFound, processInstanceID)
		}
		return err
	}
	if !root.IsProcessInstanceRoot() {
		return process.NotFoundError("process instance", process.ErrCodeInstanceNotFound, processInstanceID)
	}

	visited := make(map[string]bool)
	ordered, err := rt.collectForDeletion(ctx, c, root, visited)
	if err != nil {
		return err
	}

	// tasks and jobs go first, per instance tree, before any execution row
	instanceIDs := make([]string, 0, 4)
	seenInstance := make(map[string]bool)
	for _, exec := range ordered {
		if !seenInstance[exec.ProcessInstanceID] {
			seenInstance[exec.ProcessInstanceID] = true
			instanceIDs = append(instanceIDs, exec.ProcessInstanceID)
		}
	}
	for _, id := range instanceIDs {
		if err := session.DeleteTasksByInstance(ctx, id); err != nil {
			return err
		}
		jobs, err := session.FindJobsByInstance(ctx, id)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if err := session.DeleteJob(ctx, job.ID); err != nil {
				return err
			}
		}
	}

	for _, exec := range ordered {
		if err := session.DeleteVariablesByExecution(ctx, exec.ID); err != nil {
			return err
		}
		if err := session.DeleteExecution(ctx, exec.ID); err != nil {
			return err
		}
	}

	rt.logger.Info("deleted process instance id=%s executions=%d reason=%s",
		processInstanceID, len(ordered), reason)
	return nil
}

// collectForDeletion walks the tree post-order: children first, then any
// linked sub-process tree, then the execution itself, so the instance root
// is always last. A revisited node means the tree is no longer acyclic and
// the command must abort.
func (rt *Runtime) collectForDeletion(ctx context.Context, c *command.Context, exec *process.Execution, visited map[string]bool) ([]*process.Execution, error) {
	if visited[exec.ID] {
		return nil, process.CorruptTreeError("execution tree contains a cycle", map[string]any{
			"execution_id": exec.ID,
		})
	}
	visited[exec.ID] = true

	var ordered []*process.Execution

	children, err := c.Session().FindChildExecutions(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		sub, err := rt.collectForDeletion(ctx, c, child, visited)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}

	if exec.SubProcessInstanceID != "" {
		subRoot, err := c.Session().FindExecution(ctx, exec.SubProcessInstanceID)
		if err != nil {
			if !process.IsNotFound(err) {
				return nil, err
			}
			// weak reference: the linked tree may already be gone
		} else {
			sub, err := rt.collectForDeletion(ctx, c, subRoot, visited)
			if err != nil {
				return nil, err
			}
			ordered = append(ordered, sub...)
		}
	}

	return append(ordered, exec), nil
}
