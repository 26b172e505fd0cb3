package adapters

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/core"

	"github.com/solightly/capstan"
)

// GenkitGeneratorAdapter exposes a Genkit flow as the capstan.Generator
// interface, keeping the reasoning engine fully external to the core.
type GenkitGeneratorAdapter struct {
	generateFlow *core.Flow[*string, string, struct{}]
}

var _ capstan.Generator = (*GenkitGeneratorAdapter)(nil)

// NewGenkitGeneratorAdapter creates an adapter around a prompt-in, prose-out
// flow.
func NewGenkitGeneratorAdapter(flow *core.Flow[*string, string, struct{}]) *GenkitGeneratorAdapter {
	return &GenkitGeneratorAdapter{generateFlow: flow}
}

// Generate implements capstan.Generator.
func (a *GenkitGeneratorAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	if a.generateFlow == nil {
		return "", fmt.Errorf("generator flow is not configured")
	}
	input := prompt
	text, err := a.generateFlow.Run(ctx, &input)
	if err != nil {
		return "", fmt.Errorf("generator flow execution failed: %w", err)
	}
	return text, nil
}
