// Package executor runs execution plans group by group with bounded
// concurrency, per-invocation timeouts, and full failure absorption: no
// capability failure ever escapes as an error.
package executor

import (
	"context"
	"log"

	"github.com/sourcegraph/conc/pool"

	"github.com/solightly/capstan"
)

// PlanExecutor walks a plan's groups in order. Groups are strict barriers: a
// group starts only after every capability of the previous group has
// finished, succeeded or not.
type PlanExecutor struct {
	runner     *TaskRunner
	maxWorkers int
	metrics    *metricsTable
}

// Option configures a PlanExecutor.
type Option func(*PlanExecutor)

// WithMaxWorkers bounds per-group concurrency. Values below 1 are ignored.
func WithMaxWorkers(n int) Option {
	return func(e *PlanExecutor) {
		if n >= 1 {
			e.maxWorkers = n
		}
	}
}

// New creates a PlanExecutor around a TaskRunner.
func New(runner *TaskRunner, opts ...Option) *PlanExecutor {
	e := &PlanExecutor{
		runner:     runner,
		maxWorkers: 5,
		metrics:    newMetricsTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements capstan.Executor. The returned ResultSet holds exactly
// one entry per capability named by the plan: ran, failed, or skipped.
func (e *PlanExecutor) Execute(ctx context.Context, plan *capstan.ExecutionPlan, registry *capstan.Registry, req capstan.Request) *capstan.ResultSet {
	results := capstan.NewResultSet()

	for groupIdx, group := range plan.Groups {
		if ctx.Err() != nil {
			// Budget exhausted: everything not yet started is recorded as
			// skipped so downstream stages see the full capability set.
			e.skipFrom(plan, groupIdx, results)
			log.Printf("Execution budget exhausted, skipping remaining groups (request_id: %s, group: %d): %v",
				req.ID, groupIdx, ctx.Err())
			break
		}

		upstream := results.Snapshot()
		p := pool.New().WithMaxGoroutines(e.maxWorkers)
		for _, name := range group {
			name := name
			desc, ok := registry.Get(name)
			if !ok {
				results.Put(capstan.CapabilityResult{
					Capability: name,
					Success:    false,
					Error:      "capability not registered",
				})
				continue
			}
			p.Go(func() {
				result := e.runner.Run(ctx, desc, req, upstream)
				e.metrics.record(name, result.Success, result.Latency)
				results.Put(result)
			})
		}
		p.Wait()
	}

	return results
}

// Stats returns a copy of the per-capability counters.
func (e *PlanExecutor) Stats() map[string]CapabilityStats {
	return e.metrics.snapshot()
}

func (e *PlanExecutor) skipFrom(plan *capstan.ExecutionPlan, groupIdx int, results *capstan.ResultSet) {
	for _, group := range plan.Groups[groupIdx:] {
		for _, name := range group {
			if _, done := results.Get(name); done {
				continue
			}
			results.Put(capstan.CapabilityResult{
				Capability: name,
				Success:    false,
				Error:      "skipped",
			})
		}
	}
}
