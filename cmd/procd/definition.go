package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/runtime"
)

// definitionFile is the declarative yaml form of a process definition.
// Behaviors are limited to the builtin set; anything needing custom code is
// deployed programmatically instead.
type definitionFile struct {
	Key        string         `yaml:"key"`
	Name       string         `yaml:"name"`
	Initial    string         `yaml:"initial"`
	TimerStart *timerDecl     `yaml:"timer_start"`
	Activities []activityDecl `yaml:"activities"`
}

type activityDecl struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Behavior string `yaml:"behavior"`

	Assignee string   `yaml:"assignee"`
	Key      string   `yaml:"key"`
	Outputs  []string `yaml:"outputs"`

	Async      bool   `yaml:"async"`
	Scope      bool   `yaml:"scope"`
	RetryCycle string `yaml:"retry_cycle"`

	Timer *timerDecl `yaml:"timer"`

	Initial    string           `yaml:"initial"`
	Activities []activityDecl   `yaml:"activities"`
	Outgoing   []transitionDecl `yaml:"outgoing"`
}

type transitionDecl struct {
	ID      string         `yaml:"id"`
	Target  string         `yaml:"target"`
	Default bool           `yaml:"default"`
	When    *conditionDecl `yaml:"when"`
}

// conditionDecl is the only condition form the yaml loader supports: a
// variable compared for equality against a literal.
type conditionDecl struct {
	Name   string `yaml:"name"`
	Equals any    `yaml:"equals"`
}

type timerDecl struct {
	Kind       string `yaml:"kind"`
	Expression string `yaml:"expression"`
	Transition string `yaml:"transition"`
}

// LoadDefinition reads and builds a process definition from a yaml file.
func LoadDefinition(path string) (*process.ProcessDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "read definition file").
			WithMetadata(map[string]any{"path": path})
	}
	var file definitionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "parse definition file").
			WithMetadata(map[string]any{"path": path})
	}
	return buildDefinition(&file)
}

func buildDefinition(file *definitionFile) (*process.ProcessDefinition, error) {
	if file.Key == "" {
		return nil, errors.New("definition key required", errors.CategoryValidation)
	}

	// index spans every nesting level so transitions can target nested nodes
	index := make(map[string]*process.Activity)
	activities, err := buildActivities(file.Activities, index)
	if err != nil {
		return nil, err
	}
	if err := wireTransitions(file.Activities, index); err != nil {
		return nil, err
	}

	initial, ok := index[file.Initial]
	if !ok {
		return nil, errors.New("initial activity not declared", errors.CategoryValidation).
			WithMetadata(map[string]any{"initial": file.Initial})
	}

	def := &process.ProcessDefinition{
		Key:        file.Key,
		Name:       file.Name,
		Initial:    initial,
		Activities: activities,
	}
	if file.TimerStart != nil {
		def.TimerStart = &process.TimerDeclaration{
			Kind:       process.TimerKind(file.TimerStart.Kind),
			Expression: file.TimerStart.Expression,
		}
	}
	return def, nil
}

func buildActivities(decls []activityDecl, index map[string]*process.Activity) (map[string]*process.Activity, error) {
	out := make(map[string]*process.Activity, len(decls))
	for i := range decls {
		decl := &decls[i]
		if decl.ID == "" {
			return nil, errors.New("activity id required", errors.CategoryValidation)
		}
		if _, dup := index[decl.ID]; dup {
			return nil, errors.New("duplicate activity id", errors.CategoryValidation).
				WithMetadata(map[string]any{"id": decl.ID})
		}

		activity := &process.Activity{
			ID:         decl.ID,
			Name:       decl.Name,
			Async:      decl.Async,
			Scope:      decl.Scope,
			RetryCycle: decl.RetryCycle,
		}
		if decl.Timer != nil {
			activity.Timer = &process.TimerDeclaration{
				Kind:         process.TimerKind(decl.Timer.Kind),
				Expression:   decl.Timer.Expression,
				ActivityID:   decl.ID,
				TransitionID: decl.Timer.Transition,
			}
		}

		behavior, err := buildBehavior(decl)
		if err != nil {
			return nil, err
		}
		activity.Behavior = behavior

		if len(decl.Activities) > 0 {
			nested, err := buildActivities(decl.Activities, index)
			if err != nil {
				return nil, err
			}
			activity.Activities = nested
			initial, ok := index[decl.Initial]
			if !ok {
				return nil, errors.New("nested initial activity not declared", errors.CategoryValidation).
					WithMetadata(map[string]any{"id": decl.ID, "initial": decl.Initial})
			}
			activity.Initial = initial
		}

		index[decl.ID] = activity
		out[decl.ID] = activity
	}
	return out, nil
}

func buildBehavior(decl *activityDecl) (process.Behavior, error) {
	switch decl.Behavior {
	case "", "pass":
		return &runtime.PassThroughBehavior{}, nil
	case "user-task":
		return &runtime.UserTaskBehavior{Assignee: decl.Assignee}, nil
	case "compensable-task":
		return &runtime.CompensableTaskBehavior{
			UserTaskBehavior: runtime.UserTaskBehavior{Assignee: decl.Assignee},
		}, nil
	case "receive":
		return &runtime.ReceiveBehavior{}, nil
	case "parallel-gateway":
		return &runtime.ParallelGatewayBehavior{}, nil
	case "exclusive-gateway":
		return &runtime.ExclusiveGatewayBehavior{}, nil
	case "sub-process":
		return &runtime.SubProcessBehavior{}, nil
	case "call-activity":
		if decl.Key == "" {
			return nil, errors.New("call-activity requires a key", errors.CategoryValidation).
				WithMetadata(map[string]any{"id": decl.ID})
		}
		return &runtime.CallActivityBehavior{Key: decl.Key, Outputs: decl.Outputs}, nil
	default:
		return nil, errors.New(fmt.Sprintf("unknown behavior %q", decl.Behavior), errors.CategoryValidation).
			WithMetadata(map[string]any{"id": decl.ID})
	}
}

func wireTransitions(decls []activityDecl, index map[string]*process.Activity) error {
	for i := range decls {
		decl := &decls[i]
		source := index[decl.ID]
		for _, td := range decl.Outgoing {
			target, ok := index[td.Target]
			if !ok {
				return errors.New("transition targets an undeclared activity", errors.CategoryValidation).
					WithMetadata(map[string]any{"source": decl.ID, "target": td.Target})
			}
			tr := &process.Transition{
				ID:      td.ID,
				Source:  source,
				Target:  target,
				Default: td.Default,
			}
			if td.When != nil {
				name, want := td.When.Name, td.When.Equals
				tr.Condition = func(vars map[string]any) bool {
					return vars[name] == want
				}
			}
			source.Outgoing = append(source.Outgoing, tr)
			target.Incoming = append(target.Incoming, tr)
		}
		if len(decl.Activities) > 0 {
			if err := wireTransitions(decl.Activities, index); err != nil {
				return err
			}
		}
	}
	return nil
}
