package planner

import (
	"context"
	"reflect"
	"testing"

	"github.com/solightly/capstan"
)

type noopCapability struct{ name string }

func (c *noopCapability) Execute(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	return map[string]interface{}{"output": c.name}, nil
}
func (c *noopCapability) Validate(input capstan.CapabilityInput) error { return nil }
func (c *noopCapability) Name() string                                 { return c.name }

func buildRegistry(t *testing.T, descriptors ...capstan.CapabilityDescriptor) *capstan.Registry {
	t.Helper()
	registry := capstan.NewRegistry()
	for _, desc := range descriptors {
		if desc.Capability == nil {
			desc.Capability = &noopCapability{name: desc.Name}
		}
		if err := registry.Register(desc); err != nil {
			t.Fatalf("Register(%s) failed: %v", desc.Name, err)
		}
	}
	return registry
}

func TestPlan_DependentCapabilityRunsAfterItsDependency(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
		capstan.CapabilityDescriptor{Name: "analysis", DependsOn: []string{"lookup"}, Priority: 2},
		capstan.CapabilityDescriptor{Name: "news", Priority: 3},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexityComplex,
		RequiredCapabilities: []string{"lookup", "analysis", "news"},
	}, registry)

	want := [][]string{{"lookup", "news"}, {"analysis"}}
	if !reflect.DeepEqual(plan.Groups, want) {
		t.Errorf("expected groups %v, got %v", want, plan.Groups)
	}
	if plan.Strategy != capstan.StrategyHybrid {
		t.Errorf("expected hybrid strategy, got %s", plan.Strategy)
	}
}

func TestPlan_TopologicalInvariant(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "a", Priority: 1},
		capstan.CapabilityDescriptor{Name: "b", DependsOn: []string{"a"}, Priority: 2},
		capstan.CapabilityDescriptor{Name: "c", DependsOn: []string{"a", "b"}, Priority: 3},
		capstan.CapabilityDescriptor{Name: "d", DependsOn: []string{"b"}, Priority: 4},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexityComplex,
		RequiredCapabilities: []string{"c", "d"},
	}, registry)

	groupOf := map[string]int{}
	for i, group := range plan.Groups {
		for _, name := range group {
			groupOf[name] = i
		}
	}
	for name, idx := range groupOf {
		desc, _ := registry.Get(name)
		for _, dep := range desc.DependsOn {
			if groupOf[dep] >= idx {
				t.Errorf("dependency %s of %s scheduled in group %d, want before group %d",
					dep, name, groupOf[dep], idx)
			}
		}
	}
}

func TestPlan_TransitiveClosureIncluded(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
		capstan.CapabilityDescriptor{Name: "analysis", DependsOn: []string{"lookup"}, Priority: 2},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexityModerate,
		RequiredCapabilities: []string{"analysis"},
	}, registry)

	names := plan.Capabilities()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["lookup"] || !found["analysis"] {
		t.Errorf("expected closure to pull in lookup, got %v", names)
	}
}

func TestPlan_TwoOrFewerIsSequential(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
		capstan.CapabilityDescriptor{Name: "news", Priority: 2},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexitySimple,
		RequiredCapabilities: []string{"lookup", "news"},
	}, registry)

	if plan.Strategy != capstan.StrategySequential {
		t.Errorf("expected sequential, got %s", plan.Strategy)
	}
	for i, group := range plan.Groups {
		if len(group) != 1 {
			t.Errorf("sequential group %d has %d members: %v", i, len(group), group)
		}
	}
}

func TestPlan_IndependentComplexSetIsParallel(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
		capstan.CapabilityDescriptor{Name: "news", Priority: 2},
		capstan.CapabilityDescriptor{Name: "knowledge", Priority: 3},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexityMultiFaceted,
		RequiredCapabilities: []string{"lookup", "news", "knowledge"},
	}, registry)

	if plan.Strategy != capstan.StrategyParallel {
		t.Errorf("expected parallel, got %s", plan.Strategy)
	}
	if len(plan.Groups) != 1 || len(plan.Groups[0]) != 3 {
		t.Errorf("expected one group of three, got %v", plan.Groups)
	}
}

func TestPlan_EmptyProfileYieldsDefaultPlan(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "respond", Priority: 10},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{Level: capstan.ComplexitySimple}, registry)

	want := [][]string{{"respond"}}
	if !reflect.DeepEqual(plan.Groups, want) {
		t.Errorf("expected default plan %v, got %v", want, plan.Groups)
	}
	if plan.Strategy != capstan.StrategySequential {
		t.Errorf("expected sequential, got %s", plan.Strategy)
	}
}

func TestPlan_UnknownCapabilityDropped(t *testing.T) {
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
	)
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexitySimple,
		RequiredCapabilities: []string{"lookup", "nonexistent"},
	}, registry)

	for _, name := range plan.Capabilities() {
		if name == "nonexistent" {
			t.Errorf("unregistered capability survived planning: %v", plan.Groups)
		}
	}
}

func TestPlan_DeadlockForceSelectTerminates(t *testing.T) {
	// a and b depend on each other. Registration-time validation would
	// normally reject this; build the cycle through a registry the planner
	// still has to survive.
	registry := capstan.NewRegistry()
	if err := registry.Register(capstan.CapabilityDescriptor{
		Name: "a", DependsOn: []string{"b"}, Priority: 1,
		Capability: &noopCapability{name: "a"},
	}); err != nil {
		t.Fatalf("Register(a) failed: %v", err)
	}
	if err := registry.Register(capstan.CapabilityDescriptor{
		Name: "b", DependsOn: []string{"a"}, Priority: 2,
		Capability: &noopCapability{name: "b"},
	}); err != nil {
		t.Fatalf("Register(b) failed: %v", err)
	}
	p := New(capstan.DefaultPolicy())

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexitySimple,
		RequiredCapabilities: []string{"a", "b"},
	}, registry)

	names := plan.Capabilities()
	if len(names) != 2 {
		t.Fatalf("expected both capabilities scheduled, got %v", plan.Groups)
	}
	// The least-important member of the cycle (greatest priority value) is
	// force-selected first.
	if plan.Groups[0][0] != "b" {
		t.Errorf("expected b force-selected first, got %v", plan.Groups)
	}
}

func TestPlan_DurationEstimates(t *testing.T) {
	policy := capstan.DefaultPolicy()
	registry := buildRegistry(t,
		capstan.CapabilityDescriptor{Name: "lookup", Priority: 1},
		capstan.CapabilityDescriptor{Name: "news", Priority: 2},
	)
	p := New(policy)

	plan := p.Plan(capstan.RequestProfile{
		Level:                capstan.ComplexitySimple,
		RequiredCapabilities: []string{"lookup", "news"},
	}, registry)

	want := 2 * policy.PerCapabilityCost
	if plan.EstimatedDuration != want {
		t.Errorf("expected sequential estimate %v, got %v", want, plan.EstimatedDuration)
	}
}
