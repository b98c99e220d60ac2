package runtime

import (
	"context"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// variableScope resolves variables up the execution parent chain. Reads walk
// toward the instance root; writes land on the scope already holding the
// name, or on the instance root when the name is new. SetLocal pins a
// binding to the nearest enclosing scope execution.
type variableScope struct {
	rt   *Runtime
	c    *command.Context
	exec *process.Execution
}

func (vs *variableScope) Get(ctx context.Context, name string) (any, bool, error) {
	session := vs.c.Session()
	cur := vs.exec
	for {
		if cur.IsScope || cur.ParentID == "" {
			v, err := session.FindVariable(ctx, cur.ID, name)
			if err != nil {
				return nil, false, err
			}
			if v != nil {
				return v.Value, true, nil
			}
		}
		if cur.ParentID == "" {
			return nil, false, nil
		}
		parent, err := session.FindExecution(ctx, cur.ParentID)
		if err != nil {
			return nil, false, err
		}
		cur = parent
	}
}

func (vs *variableScope) Set(ctx context.Context, name string, value any) error {
	session := vs.c.Session()
	cur := vs.exec
	for {
		if cur.IsScope || cur.ParentID == "" {
			v, err := session.FindVariable(ctx, cur.ID, name)
			if err != nil {
				return err
			}
			if v != nil {
				v.Value = value
				return session.UpdateVariable(ctx, v)
			}
		}
		if cur.ParentID == "" {
			return session.InsertVariable(ctx, process.NewVariable(cur, name, value))
		}
		parent, err := session.FindExecution(ctx, cur.ParentID)
		if err != nil {
			return err
		}
		cur = parent
	}
}

func (vs *variableScope) SetLocal(ctx context.Context, name string, value any) error {
	scope, err := vs.nearestScope(ctx)
	if err != nil {
		return err
	}
	session := vs.c.Session()
	v, err := session.FindVariable(ctx, scope.ID, name)
	if err != nil {
		return err
	}
	if v != nil {
		v.Value = value
		return session.UpdateVariable(ctx, v)
	}
	return session.InsertVariable(ctx, process.NewVariable(scope, name, value))
}

func (vs *variableScope) Locals(ctx context.Context) (map[string]any, error) {
	scope, err := vs.nearestScope(ctx)
	if err != nil {
		return nil, err
	}
	return vs.rt.localVariables(ctx, vs.c, scope.ID)
}

// nearestScope finds the closest execution on the parent chain that owns its
// own variable bindings; non-scope executions delegate to it.
func (vs *variableScope) nearestScope(ctx context.Context) (*process.Execution, error) {
	cur := vs.exec
	for {
		if cur.IsScope || cur.ParentID == "" {
			return cur, nil
		}
		parent, err := vs.c.Session().FindExecution(ctx, cur.ParentID)
		if err != nil {
			return nil, err
		}
		cur = parent
	}
}

// visibleVariables flattens the variable chain of an execution into one map,
// inner scopes shadowing outer ones. Transition guards evaluate over this.
func visibleVariables(ctx context.Context, c *command.Context, exec *process.Execution) (map[string]any, error) {
	session := c.Session()

	var chain []*process.Execution
	cur := exec
	for {
		if cur.IsScope || cur.ParentID == "" {
			chain = append(chain, cur)
		}
		if cur.ParentID == "" {
			break
		}
		parent, err := session.FindExecution(ctx, cur.ParentID)
		if err != nil {
			return nil, err
		}
		cur = parent
	}

	out := make(map[string]any)
	// outermost first so inner bindings shadow
	for i := len(chain) - 1; i >= 0; i-- {
		vars, err := session.FindVariablesByExecution(ctx, chain[i].ID)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			out[v.Name] = v.Value
		}
	}
	return out, nil
}
