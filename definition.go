package process

import (
	"sort"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ConditionFunc guards a transition; it sees the variables visible at the
// leaving execution's scope.
type ConditionFunc func(vars map[string]any) bool

// Transition is a directed edge between two activities.
type Transition struct {
	ID        string
	Source    *Activity
	Target    *Activity
	Condition ConditionFunc
	// Default marks the transition an exclusive gateway falls back to when
	// no condition matches.
	Default bool
}

// TimerKind selects how a timer declaration computes its due date.
type TimerKind string

const (
	TimerKindDuration TimerKind = "duration" // ISO-8601 duration, fires once
	TimerKindCron     TimerKind = "cron"     // cron expression, repeating
)

// TimerDeclaration configures a timer attached to an activity (boundary
// timer, timer-catch) or to a definition (timer start).
type TimerDeclaration struct {
	Kind       TimerKind
	Expression string
	// ActivityID is the node the fired timer resumes; empty for timer-start
	// declarations, which instead carry the definition key in the job config.
	ActivityID string
	// TransitionID optionally routes an interrupting boundary timer through
	// a specific outgoing transition instead of the normal flow.
	TransitionID string
}

// Activity is one node of the activity graph. Its Behavior carries the
// executable semantics; the runtime only dispatches to it.
type Activity struct {
	ID   string
	Name string

	Behavior Behavior

	Incoming []*Transition
	Outgoing []*Transition

	// Scope marks the activity as a variable-scope and join/delete boundary.
	Scope bool
	// Async defers entry into this activity to a background continuation job.
	Async bool

	// RetryCycle optionally overrides the default job retry strategy for
	// jobs owned by this activity, e.g. "R3/PT10M".
	RetryCycle string

	Timer *TimerDeclaration

	// Activities holds the nested graph for composite nodes (embedded
	// sub-processes); Initial is the nested entry node.
	Activities map[string]*Activity
	Initial    *Activity
}

// DefaultTransition returns the declared fallback edge, if any.
func (a *Activity) DefaultTransition() *Transition {
	for _, t := range a.Outgoing {
		if t.Default {
			return t
		}
	}
	return nil
}

// ProcessDefinition is a deployed, versioned activity graph.
type ProcessDefinition struct {
	ID      string
	Key     string
	Version int
	Name    string

	Initial    *Activity
	Activities map[string]*Activity

	// TimerStart optionally schedules instance creation on a timer.
	TimerStart *TimerDeclaration
}

// FindActivity resolves an activity id anywhere in the graph, descending into
// composite nodes.
func (d *ProcessDefinition) FindActivity(id string) *Activity {
	return findActivity(d.Activities, id)
}

func findActivity(activities map[string]*Activity, id string) *Activity {
	if a, ok := activities[id]; ok {
		return a
	}
	for _, a := range activities {
		if len(a.Activities) == 0 {
			continue
		}
		if found := findActivity(a.Activities, id); found != nil {
			return found
		}
	}
	return nil
}

// DefinitionRegistry holds deployed process definitions, versioned per key.
// Graph construction (XML parsing) happens upstream; the registry only stores
// the built graphs.
type DefinitionRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*ProcessDefinition
	byKey  map[string][]*ProcessDefinition
	logger Logger
}

// NewDefinitionRegistry constructs an empty registry.
func NewDefinitionRegistry(opts ...RegistryOption) *DefinitionRegistry {
	r := &DefinitionRegistry{
		byID:  make(map[string]*ProcessDefinition),
		byKey: make(map[string][]*ProcessDefinition),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegistryOption customizes a DefinitionRegistry.
type RegistryOption func(*DefinitionRegistry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *DefinitionRegistry) {
		r.logger = l
	}
}

// Deploy registers a definition, assigning id and the next version for its
// key. The returned definition is the stored value.
func (r *DefinitionRegistry) Deploy(def *ProcessDefinition) (*ProcessDefinition, error) {
	if def == nil {
		return nil, errors.New("definition required", errors.CategoryBadInput)
	}
	if def.Key == "" {
		return nil, errors.New("definition key required", errors.CategoryBadInput)
	}
	if def.Initial == nil {
		return nil, errors.New("definition requires an initial activity", errors.CategoryBadInput).
			WithMetadata(map[string]any{"key": def.Key})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	def.Version = len(r.byKey[def.Key]) + 1
	if def.ID == "" {
		def.ID = def.Key + ":" + uuid.NewString()
	}
	r.byID[def.ID] = def
	r.byKey[def.Key] = append(r.byKey[def.Key], def)

	if r.logger != nil {
		r.logger.Info("deployed process definition key=%s version=%d id=%s",
			def.Key, def.Version, def.ID)
	}
	return def, nil
}

// ByID resolves a definition by its deployment id.
func (r *DefinitionRegistry) ByID(id string) (*ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.byID[id]; ok {
		return def, nil
	}
	return nil, NotFoundError("process definition", ErrCodeDefinitionNotFound, id)
}

// LatestByKey resolves the highest deployed version for a key. Timer-start
// jobs resolve through here so a redeploy retargets pending timers.
func (r *DefinitionRegistry) LatestByKey(key string) (*ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.byKey[key]
	if len(versions) == 0 {
		return nil, NotFoundError("process definition", ErrCodeDefinitionNotFound, key)
	}
	return versions[len(versions)-1], nil
}

// Keys lists deployed keys in stable order.
func (r *DefinitionRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
