package process

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ExecutionRole is the lifecycle role of an execution. Roles replace the
// source-of-truth-by-flag-combination approach: an execution is either a live
// cursor, an inert event-scope placeholder, or already ended.
type ExecutionRole string

const (
	RoleActive     ExecutionRole = "active"
	RoleEventScope ExecutionRole = "event_scope"
	RoleEnded      ExecutionRole = "ended"
)

// roleTransitions is the complete set of legal role changes.
var roleTransitions = map[ExecutionRole][]ExecutionRole{
	RoleActive:     {RoleEventScope, RoleEnded},
	RoleEventScope: {RoleEnded},
	RoleEnded:      {},
}

// Execution is a node in a live process-instance tree: a cursor over the
// activity graph. Child executions are owned exclusively by their parent; a
// linked sub-process instance tree is referenced, not owned.
type Execution struct {
	ID                  string
	ParentID            string
	ProcessInstanceID   string
	ProcessDefinitionID string
	// SuperExecutionID back-references the call-activity execution that
	// started this tree; only set on sub-process instance roots.
	SuperExecutionID     string
	SubProcessInstanceID string

	// ActivityID is the graph node currently occupied; empty while the
	// execution is transitioning or parked as a fork parent.
	ActivityID string

	Role         ExecutionRole
	IsConcurrent bool
	IsActive     bool
	IsScope      bool

	Revision  int
	CreatedAt time.Time
}

// NewExecution mints an active execution.
func NewExecution() *Execution {
	return &Execution{
		ID:        uuid.NewString(),
		Role:      RoleActive,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// IsProcessInstanceRoot reports whether this execution is the root of its tree.
func (e *Execution) IsProcessInstanceRoot() bool {
	return e.ParentID == "" && e.ID == e.ProcessInstanceID
}

// IsEventScope reports whether the execution is an inert event-scope
// placeholder kept alive only to remember a subscription or compensation
// context.
func (e *Execution) IsEventScope() bool {
	return e.Role == RoleEventScope
}

// TransitionRole moves the execution to a new role, rejecting moves the role
// table does not allow. Event scopes are never active.
func (e *Execution) TransitionRole(to ExecutionRole) error {
	if e.Role == to {
		return nil
	}
	for _, allowed := range roleTransitions[e.Role] {
		if allowed == to {
			e.Role = to
			if to != RoleActive {
				e.IsActive = false
			}
			if to == RoleEventScope {
				e.IsConcurrent = false
			}
			return nil
		}
	}
	return errors.New("illegal execution role transition", errors.CategoryConflict).
		WithTextCode(ErrCodeIllegalRole).
		WithMetadata(map[string]any{
			"execution_id": e.ID,
			"from":         string(e.Role),
			"to":           string(to),
		})
}

// Clone returns a deep copy; stores hand out clones so callers never alias
// cached rows.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// Variable is one key/value binding owned by a scope execution.
type Variable struct {
	ID                string
	ExecutionID       string
	ProcessInstanceID string
	Name              string
	Value             any
	Revision          int
}

// NewVariable binds name to value at the given scope execution.
func NewVariable(scope *Execution, name string, value any) *Variable {
	return &Variable{
		ID:                uuid.NewString(),
		ExecutionID:       scope.ID,
		ProcessInstanceID: scope.ProcessInstanceID,
		Name:              name,
		Value:             value,
	}
}

func (v *Variable) Clone() *Variable {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Task is a user-facing work item owned by an execution. Tasks exist in the
// model because cascading instance deletion must sweep them.
type Task struct {
	ID                string
	ExecutionID       string
	ProcessInstanceID string
	Name              string
	Assignee          string
	Revision          int
	CreatedAt         time.Time
}

// NewTask creates a task attached to the given execution.
func NewTask(execution *Execution, name string) *Task {
	return &Task{
		ID:                uuid.NewString(),
		ExecutionID:       execution.ID,
		ProcessInstanceID: execution.ProcessInstanceID,
		Name:              name,
		CreatedAt:         time.Now().UTC(),
	}
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
