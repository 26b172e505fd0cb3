// Package adapters bridges plain Go functions and Genkit primitives into the
// interfaces the orchestration core consumes.
package adapters

import (
	"context"
	"fmt"

	"github.com/solightly/capstan"
)

// CapabilityFunc is the plain-function shape adapted into a Capability.
type CapabilityFunc func(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error)

// GoCapabilityAdapter adapts a standard Go function to the capstan.Capability
// interface, with an optional custom validator and a descriptive schema for
// diagnostics.
type GoCapabilityAdapter struct {
	fn          CapabilityFunc
	schema      map[string]interface{}
	name        string
	validator   func(capstan.CapabilityInput) error
	description string
}

// CapabilityOption configures a GoCapabilityAdapter.
type CapabilityOption func(*GoCapabilityAdapter)

// WithValidator sets a custom input validator for the capability.
func WithValidator(validator func(capstan.CapabilityInput) error) CapabilityOption {
	return func(adapter *GoCapabilityAdapter) {
		adapter.validator = validator
	}
}

// WithDescription sets a detailed description for the capability.
func WithDescription(description string) CapabilityOption {
	return func(adapter *GoCapabilityAdapter) {
		adapter.description = description
		if adapter.schema != nil {
			adapter.schema["description"] = description
		}
	}
}

// WithArguments documents the argument names the capability expects after
// binding resolution.
func WithArguments(arguments map[string]string) CapabilityOption {
	return func(adapter *GoCapabilityAdapter) {
		if adapter.schema != nil {
			adapter.schema["arguments"] = arguments
		}
	}
}

// NewGoCapabilityAdapter creates a new adapter for a Go function.
func NewGoCapabilityAdapter(name string, fn CapabilityFunc, options ...CapabilityOption) *GoCapabilityAdapter {
	adapter := &GoCapabilityAdapter{
		fn:     fn,
		schema: map[string]interface{}{"name": name},
		name:   name,
		validator: func(input capstan.CapabilityInput) error {
			if input.Request.Text == "" {
				return fmt.Errorf("request text cannot be empty")
			}
			return nil
		},
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// Execute implements the capstan.Capability interface.
func (a *GoCapabilityAdapter) Execute(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	if a.fn == nil {
		return nil, fmt.Errorf("capability function is nil")
	}
	return a.fn(ctx, input)
}

// Validate implements the capstan.Capability interface.
func (a *GoCapabilityAdapter) Validate(input capstan.CapabilityInput) error {
	if a.validator != nil {
		return a.validator(input)
	}
	return nil
}

// Name implements the capstan.Capability interface.
func (a *GoCapabilityAdapter) Name() string {
	return a.name
}

// Schema returns the capability's descriptive schema.
func (a *GoCapabilityAdapter) Schema() map[string]interface{} {
	return a.schema
}
