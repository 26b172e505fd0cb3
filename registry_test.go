package capstan

import (
	"context"
	"testing"
)

type stubCapability struct{ name string }

func (c *stubCapability) Execute(ctx context.Context, input CapabilityInput) (map[string]interface{}, error) {
	return map[string]interface{}{"output": c.name}, nil
}
func (c *stubCapability) Validate(input CapabilityInput) error { return nil }
func (c *stubCapability) Name() string                         { return c.name }

func descriptor(name string, deps ...string) CapabilityDescriptor {
	return CapabilityDescriptor{
		Name:       name,
		DependsOn:  deps,
		Priority:   1,
		Capability: &stubCapability{name: name},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(descriptor("lookup")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	desc, ok := r.Get("lookup")
	if !ok || desc.Name != "lookup" {
		t.Errorf("Get returned %+v, %v", desc, ok)
	}
	if !r.Has("lookup") || r.Has("missing") {
		t.Error("Has misreported membership")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 capability, got %d", r.Len())
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(descriptor("lookup")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(descriptor("lookup")); err == nil {
		t.Error("expected an error re-registering the same name")
	}
}

func TestRegistry_EmptyNameAndNilCapabilityRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(CapabilityDescriptor{Name: "", Capability: &stubCapability{}}); err == nil {
		t.Error("expected an error for an empty name")
	}
	if err := r.Register(CapabilityDescriptor{Name: "x"}); err == nil {
		t.Error("expected an error for a nil capability")
	}
}

func TestRegistry_ValidateMissingDependency(t *testing.T) {
	r := NewRegistry()
	r.Register(descriptor("analysis", "lookup"))

	if err := r.Validate(); err == nil {
		t.Error("expected an error for a dependency on an unregistered capability")
	}

	r.Register(descriptor("lookup"))
	if err := r.Validate(); err != nil {
		t.Errorf("Validate failed after the dependency was registered: %v", err)
	}
}

func TestRegistry_ValidateCycle(t *testing.T) {
	r := NewRegistry()
	r.Register(descriptor("a", "b"))
	r.Register(descriptor("b", "c"))
	r.Register(descriptor("c", "a"))

	if err := r.Validate(); err == nil {
		t.Error("expected an error for a dependency cycle")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(descriptor("news"))
	r.Register(descriptor("analysis"))
	r.Register(descriptor("lookup"))

	names := r.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}
