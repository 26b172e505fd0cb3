// Package capstan provides the orchestration core for answering
// natural-language requests by fanning work out to capability providers and
// merging their outputs into one confidence-scored answer.
package capstan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solightly/capstan/internal/eventbus"
)

// Orchestrator is the top-level entry point. It sequences profiling,
// planning, plan execution, aggregation, and scoring for each request and
// applies the final confidence-floor decision.
type Orchestrator struct {
	profiler   Profiler
	planner    Planner
	executor   Executor
	aggregator Aggregator
	scorer     Scorer
	registry   *Registry
	bus        eventbus.Bus

	policy Policy
	config Config

	asyncRequests map[string]*ProcessContext
	asyncMutex    sync.RWMutex
}

// Config holds the runtime knobs of the orchestrator. The scoring and
// planning numbers live in Policy instead; Config is about resources.
type Config struct {
	// Maximum number of concurrent capability invocations per group
	MaxConcurrentInvocations int

	// Per-invocation timeout
	InvocationTimeout time.Duration

	// Total request deadline; zero disables truncation
	RequestDeadline time.Duration

	// Cache entry lifetime for memoized capability payloads
	CacheTTL time.Duration

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentInvocations: 5,
		InvocationTimeout:        10 * time.Second,
		RequestDeadline:          45 * time.Second,
		CacheTTL:                 10 * time.Minute,
		EnableEventBus:           true,
		EventBusBufferSize:       100,
		EventBusWorkerCount:      4,
	}
}

// Option is a function that configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the runtime configuration.
func WithConfig(config Config) Option {
	return func(o *Orchestrator) { o.config = config }
}

// WithPolicy sets the scoring and planning policy table.
func WithPolicy(policy Policy) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// WithProfiler sets the request profiler.
func WithProfiler(profiler Profiler) Option {
	return func(o *Orchestrator) { o.profiler = profiler }
}

// WithPlanner sets the execution planner.
func WithPlanner(planner Planner) Option {
	return func(o *Orchestrator) { o.planner = planner }
}

// WithExecutor sets the plan executor.
func WithExecutor(executor Executor) Option {
	return func(o *Orchestrator) { o.executor = executor }
}

// WithAggregator sets the result aggregator.
func WithAggregator(aggregator Aggregator) Option {
	return func(o *Orchestrator) { o.aggregator = aggregator }
}

// WithScorer sets the confidence scorer.
func WithScorer(scorer Scorer) Option {
	return func(o *Orchestrator) { o.scorer = scorer }
}

// WithRegistry sets the capability registry.
func WithRegistry(registry *Registry) Option {
	return func(o *Orchestrator) { o.registry = registry }
}

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// New creates an Orchestrator from explicitly injected components. There are
// no process-wide globals: the registry and cache are constructed by the
// caller at startup and torn down at shutdown.
func New(options ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		policy:        DefaultPolicy(),
		config:        DefaultConfig(),
		asyncRequests: make(map[string]*ProcessContext),
	}
	for _, option := range options {
		option(o)
	}

	if o.registry == nil || o.registry.Len() == 0 {
		return nil, NewConfigurationError("a registry with at least one capability is required", nil)
	}
	if err := o.registry.Validate(); err != nil {
		return nil, err
	}
	if o.profiler == nil {
		return nil, NewConfigurationError("profiler is required", nil)
	}
	if o.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if o.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}
	if o.aggregator == nil {
		return nil, NewConfigurationError("aggregator is required", nil)
	}
	if o.scorer == nil {
		return nil, NewConfigurationError("scorer is required", nil)
	}
	if err := o.policy.Validate(); err != nil {
		return nil, err
	}
	if !o.registry.Has(o.policy.DefaultCapability) {
		return nil, NewConfigurationError("default capability is not registered", nil)
	}

	if o.config.EnableEventBus && o.bus == nil {
		o.bus = eventbus.NewChannelBus(
			eventbus.WithBufferSize(o.config.EventBusBufferSize),
			eventbus.WithWorkerCount(o.config.EventBusWorkerCount),
		)
	}

	return o, nil
}

// Ask answers one request. It always returns a well-formed Response; the
// error is non-nil only when ctx is cancelled before the pipeline finishes.
func (o *Orchestrator) Ask(ctx context.Context, query string) (Response, error) {
	return o.AskRequest(ctx, Request{ID: uuid.New().String(), Text: query})
}

// AskRequest is Ask with full caller identity attached.
func (o *Orchestrator) AskRequest(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	sm := o.createStateMachine()
	pCtx := NewProcessContext(req)
	return sm.Execute(ctx, pCtx)
}

// Registry exposes the capability registry for introspection.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Close releases orchestrator resources, draining the event bus.
func (o *Orchestrator) Close() error {
	if o.bus != nil {
		return o.bus.Close()
	}
	return nil
}

func (o *Orchestrator) createStateMachine() *StateMachine {
	var bus eventbus.Bus
	if o.config.EnableEventBus {
		bus = o.bus
	}
	components := Components{
		Profiler:   o.profiler,
		Planner:    o.planner,
		Executor:   o.executor,
		Aggregator: o.aggregator,
		Scorer:     o.scorer,
		Registry:   o.registry,
		Policy:     o.policy,
		Config:     o.config,
	}
	return CreateProcessStateMachine(components, bus)
}
