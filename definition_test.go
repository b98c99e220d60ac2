package process

import "testing"

func TestRegistryDeployAssignsVersions(t *testing.T) {
	r := NewDefinitionRegistry()

	v1, err := r.Deploy(&ProcessDefinition{Key: "order", Initial: &Activity{ID: "start"}})
	if err != nil {
		t.Fatalf("deploy v1: %v", err)
	}
	v2, err := r.Deploy(&ProcessDefinition{Key: "order", Initial: &Activity{ID: "start"}})
	if err != nil {
		t.Fatalf("deploy v2: %v", err)
	}

	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("versions = %d, %d; want 1, 2", v1.Version, v2.Version)
	}
	if v1.ID == v2.ID {
		t.Fatalf("each deployment gets its own id")
	}

	latest, err := r.LatestByKey("order")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != v2.ID {
		t.Fatalf("latest should be v2")
	}

	byID, err := r.ByID(v1.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if byID.Version != 1 {
		t.Fatalf("ByID must keep resolving superseded versions")
	}
}

func TestRegistryDeployValidation(t *testing.T) {
	r := NewDefinitionRegistry()
	if _, err := r.Deploy(nil); err == nil {
		t.Fatalf("nil definition rejected")
	}
	if _, err := r.Deploy(&ProcessDefinition{Initial: &Activity{ID: "a"}}); err == nil {
		t.Fatalf("missing key rejected")
	}
	if _, err := r.Deploy(&ProcessDefinition{Key: "k"}); err == nil {
		t.Fatalf("missing initial rejected")
	}
}

func TestRegistryLookupMisses(t *testing.T) {
	r := NewDefinitionRegistry()
	if _, err := r.ByID("missing"); !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := r.LatestByKey("missing"); !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestFindActivityDescendsComposites(t *testing.T) {
	inner := &Activity{ID: "inner"}
	sub := &Activity{
		ID:         "sub",
		Activities: map[string]*Activity{"inner": inner},
		Initial:    inner,
	}
	def := &ProcessDefinition{
		Key:        "p",
		Initial:    sub,
		Activities: map[string]*Activity{"sub": sub},
	}
	if def.FindActivity("inner") != inner {
		t.Fatalf("nested lookup failed")
	}
	if def.FindActivity("sub") != sub {
		t.Fatalf("top-level lookup failed")
	}
	if def.FindActivity("nope") != nil {
		t.Fatalf("missing id resolves to nil")
	}
}

func TestDefaultTransition(t *testing.T) {
	a := &Activity{ID: "gw"}
	t1 := &Transition{ID: "t1", Source: a}
	t2 := &Transition{ID: "t2", Source: a, Default: true}
	a.Outgoing = []*Transition{t1, t2}
	if a.DefaultTransition() != t2 {
		t.Fatalf("expected declared default")
	}
	a.Outgoing = []*Transition{t1}
	if a.DefaultTransition() != nil {
		t.Fatalf("no default declared")
	}
}
