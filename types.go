package capstan

import (
	"sort"
	"sync"
	"time"
)

// ComplexityLevel classifies how demanding a request is.
type ComplexityLevel string

const (
	// ComplexitySimple indicates a single-fact request.
	ComplexitySimple ComplexityLevel = "simple"
	// ComplexityModerate indicates a request needing one primary and maybe one supporting capability.
	ComplexityModerate ComplexityLevel = "moderate"
	// ComplexityComplex indicates a compound request spanning several capabilities.
	ComplexityComplex ComplexityLevel = "complex"
	// ComplexityMultiFaceted indicates a request with several independent facets.
	ComplexityMultiFaceted ComplexityLevel = "multi_faceted"
)

// RequestProfile is the profiler's classification of a raw request.
// Built once per request, never mutated afterwards.
type RequestProfile struct {
	Level                ComplexityLevel `json:"level"`
	Score                int             `json:"score"`
	Factors              []string        `json:"factors"`
	RequiredCapabilities []string        `json:"required_capabilities"`
	EstimatedCost        time.Duration   `json:"estimated_cost"`
}

// PlanStrategy selects how a plan's groups were partitioned.
type PlanStrategy string

const (
	// StrategySequential runs one capability per group.
	StrategySequential PlanStrategy = "sequential"
	// StrategyParallel collapses every capability into a single concurrent group.
	StrategyParallel PlanStrategy = "parallel"
	// StrategyHybrid batches independent capabilities into wide groups followed by dependent stages.
	StrategyHybrid PlanStrategy = "hybrid"
)

// ExecutionPlan is an ordered sequence of capability groups. Every member of
// group i may run concurrently with its group-mates, but only after every
// group before i has fully settled. Immutable once built.
type ExecutionPlan struct {
	Strategy          PlanStrategy  `json:"strategy"`
	Groups            [][]string    `json:"groups"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// Capabilities returns every capability named in the plan, in group order.
func (p *ExecutionPlan) Capabilities() []string {
	var names []string
	for _, group := range p.Groups {
		names = append(names, group...)
	}
	return names
}

// GroupCount returns the number of barrier-separated groups.
func (p *ExecutionPlan) GroupCount() int { return len(p.Groups) }

// CapabilityResult is the outcome of one capability invocation.
type CapabilityResult struct {
	Capability string                 `json:"capability"`
	Success    bool                   `json:"success"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Latency    time.Duration          `json:"latency"`
}

// ResultSet collects CapabilityResults keyed by capability name. Safe for
// concurrent writes while a plan executes; treated as read-only once the
// plan finishes.
type ResultSet struct {
	mu      sync.RWMutex
	results map[string]CapabilityResult
}

// NewResultSet returns an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{results: make(map[string]CapabilityResult)}
}

// Put records a result. A capability name maps to at most one entry; a
// second Put for the same name replaces the first.
func (rs *ResultSet) Put(result CapabilityResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.results[result.Capability] = result
}

// Get returns the result for a capability, if present.
func (rs *ResultSet) Get(capability string) (CapabilityResult, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.results[capability]
	return r, ok
}

// Snapshot returns a copy of the current contents. Later groups read earlier
// groups' data through snapshots, so a running group never observes its
// siblings' partial writes.
func (rs *ResultSet) Snapshot() map[string]CapabilityResult {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]CapabilityResult, len(rs.results))
	for k, v := range rs.results {
		out[k] = v
	}
	return out
}

// Len returns the number of recorded results.
func (rs *ResultSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.results)
}

// SuccessCount returns how many recorded results succeeded.
func (rs *ResultSet) SuccessCount() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	n := 0
	for _, r := range rs.results {
		if r.Success {
			n++
		}
	}
	return n
}

// Names returns the recorded capability names in sorted order.
func (rs *ResultSet) Names() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	names := make([]string, 0, len(rs.results))
	for name := range rs.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CombinedAnswer is the aggregate answer assembled from a ResultSet. Derived
// data, recomputable from the set it was built from.
type CombinedAnswer struct {
	Text         string   `json:"text"`
	Sources      []string `json:"sources"`
	StrategyUsed string   `json:"strategy_used"`
}

// ConfidenceGrade buckets an overall confidence value.
type ConfidenceGrade string

const (
	GradeHigh     ConfidenceGrade = "high"
	GradeModerate ConfidenceGrade = "moderate"
	GradeLow      ConfidenceGrade = "low"
	GradeVeryLow  ConfidenceGrade = "very_low"
)

// ConfidenceEvaluation reports how much the aggregate answer can be trusted.
// Overall is always within [0,1], clamped.
type ConfidenceEvaluation struct {
	Overall    float64            `json:"overall"`
	Components map[string]float64 `json:"components"`
	Grade      ConfidenceGrade    `json:"grade"`
}

// Request carries the caller's question plus opaque identity data handed in
// by the presentation layer.
type Request struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Caller  string `json:"caller,omitempty"`
	Session string `json:"session,omitempty"`
}

// Response is what the orchestrator hands back to the caller: always a
// well-formed answer, never a raw error or an empty payload. Degraded marks
// the low-confidence disclaimer and internal-fault paths.
type Response struct {
	Answer     CombinedAnswer       `json:"answer"`
	Confidence ConfidenceEvaluation `json:"confidence"`
	Degraded   bool                 `json:"degraded"`
	Fault      string               `json:"fault,omitempty"`
}
