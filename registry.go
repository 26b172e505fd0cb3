package capstan

import (
	"fmt"
	"sort"
)

// CapabilityDescriptor ties a Capability implementation to its scheduling
// metadata. Descriptors are registered at process start and shared read-only
// across requests.
type CapabilityDescriptor struct {
	// Name is the unique capability name referenced by plans and triggers.
	Name string

	// DependsOn lists capabilities whose results must exist before this one runs.
	DependsOn []string

	// Priority orders tie-breaks during planning. Smaller means more
	// important and scheduled earlier.
	Priority int

	// Weight is the capability's importance in confidence scoring, in [0,1].
	Weight float64

	// Bindings map argument names to expressions over upstream results,
	// e.g. {"subject": "$lookup.symbol"}. Resolved by the task runner
	// before invocation.
	Bindings map[string]string

	// Capability performs the work.
	Capability Capability
}

// Registry is the static map of capability name to descriptor. Populate it
// during startup, call Validate, then treat it as read-only; concurrent
// reads need no locking after that.
type Registry struct {
	caps map[string]CapabilityDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]CapabilityDescriptor)}
}

// Register adds a descriptor. Registering a duplicate name, an empty name,
// or a nil implementation is a configuration error.
func (r *Registry) Register(d CapabilityDescriptor) error {
	if d.Name == "" {
		return NewConfigurationError("capability name must not be empty", nil)
	}
	if d.Capability == nil {
		return NewConfigurationError(fmt.Sprintf("capability '%s' has no implementation", d.Name), nil)
	}
	if _, exists := r.caps[d.Name]; exists {
		return NewConfigurationError(fmt.Sprintf("capability '%s' is already registered", d.Name), nil)
	}
	r.caps[d.Name] = d
	return nil
}

// Get returns the descriptor for a capability name.
func (r *Registry) Get(name string) (CapabilityDescriptor, bool) {
	d, ok := r.caps[name]
	return d, ok
}

// Has reports whether a capability name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.caps[name]
	return ok
}

// Names returns all registered capability names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int { return len(r.caps) }

// Validate checks the whole registry for missing dependencies and dependency
// cycles. Both are fatal configuration errors: call this once at startup,
// before the registry is shared.
func (r *Registry) Validate() error {
	for name, d := range r.caps {
		for _, dep := range d.DependsOn {
			if _, ok := r.caps[dep]; !ok {
				return NewConfigurationError(
					fmt.Sprintf("capability '%s' depends on unregistered capability '%s'", name, dep), nil)
			}
		}
	}

	// Cycle check via DFS with an explicit recursion stack.
	visited := make(map[string]bool, len(r.caps))
	stack := make(map[string]bool, len(r.caps))
	var hasCycle func(name string) bool
	hasCycle = func(name string) bool {
		if stack[name] {
			return true
		}
		if visited[name] {
			return false
		}
		visited[name] = true
		stack[name] = true
		for _, dep := range r.caps[name].DependsOn {
			if hasCycle(dep) {
				return true
			}
		}
		stack[name] = false
		return false
	}
	for _, name := range r.Names() {
		if hasCycle(name) {
			return NewConfigurationError(
				fmt.Sprintf("dependency cycle detected at capability '%s'", name), nil)
		}
	}
	return nil
}
