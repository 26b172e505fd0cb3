package capstan

import (
	"context"
	"time"
)

// CapabilityInput is the resolved input handed to one capability invocation.
type CapabilityInput struct {
	// Request is the caller's original request.
	Request Request

	// Args holds binding expressions resolved against upstream results.
	Args map[string]interface{}

	// Upstream is a snapshot of results from earlier plan groups.
	Upstream map[string]CapabilityResult
}

// Capability is one independently invocable unit of work. Implementations
// must not mutate shared state beyond the Cache contract and must tolerate
// being retried or raced by a fallback chain.
type Capability interface {
	// Execute performs the capability's work. The returned map is the
	// capability's opaque payload; the "output" key conventionally holds
	// the human-readable body.
	Execute(ctx context.Context, input CapabilityInput) (map[string]interface{}, error)

	// Validate checks the input before execution. Returns nil if valid.
	Validate(input CapabilityInput) error

	// Name returns the capability's registered name.
	Name() string
}

// Profiler classifies a raw request. Implementations never fail: any
// internal error yields the most conservative profile.
type Profiler interface {
	Profile(request string) RequestProfile
}

// Planner builds a dependency-respecting execution plan. Implementations
// never fail: any internal error yields the degenerate single-capability plan.
type Planner interface {
	Plan(profile RequestProfile, registry *Registry) *ExecutionPlan
}

// Executor walks a plan group by group and collects results. Capability
// failures are recorded in the ResultSet, never returned as errors.
type Executor interface {
	Execute(ctx context.Context, plan *ExecutionPlan, registry *Registry, req Request) *ResultSet
}

// Aggregator merges a ResultSet into one answer. Never returns an empty body.
// The context bounds any external collaborator consulted during assembly;
// on expiry the aggregate falls back to its deterministic form.
type Aggregator interface {
	Combine(ctx context.Context, req Request, results *ResultSet, profile RequestProfile) CombinedAnswer
}

// Scorer computes a confidence evaluation. Any internal fault yields the
// neutral evaluation rather than an error.
type Scorer interface {
	Score(results *ResultSet, profile RequestProfile) ConfidenceEvaluation
}

// Cache memoizes expensive capability calls by request fingerprint. A miss
// is reported as a non-nil error so callers can distinguish "absent" from a
// cached nil. Writes are last-writer-wins per key with TTL expiry.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetWithEmbedding(ctx context.Context, key string, value interface{}, embedding []float64, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	FindSimilar(ctx context.Context, embedding []float64, threshold float64) (interface{}, error)
}

// Generator is the external reasoning engine: prose in, prose out. Possibly
// slow, possibly failing; the orchestration core only depends on this shape.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Hit is one knowledge-store match.
type Hit struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// KnowledgeStore is a black-box similarity or graph store consulted from
// inside capability invocations, never by the scheduler itself.
type KnowledgeStore interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}
