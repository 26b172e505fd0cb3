package capstan

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/solightly/capstan/internal/eventbus"
)

// LowConfidenceDisclaimer replaces the aggregate answer when the confidence
// evaluation lands below the configured floor.
const LowConfidenceDisclaimer = "The available information was not reliable enough to answer " +
	"this request with confidence. Treat any partial findings with caution and consider " +
	"rephrasing or narrowing the question."

// Components bundles the injected collaborators the transitions need.
// Everything is constructed once at startup and shared read-only.
type Components struct {
	Profiler   Profiler
	Planner    Planner
	Executor   Executor
	Aggregator Aggregator
	Scorer     Scorer
	Registry   *Registry
	Policy     Policy
	Config     Config
}

// CreateProcessStateMachine wires every pipeline transition into a state
// machine: Init -> Profiling -> Planning -> Executing -> Aggregating ->
// Scoring -> Done, with Errored reachable from any stage on an internal
// fault.
func CreateProcessStateMachine(components Components, bus eventbus.Bus) *StateMachine {
	sm := NewStateMachine(bus)

	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StateProfiling, createProfilingTransition(components))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(components))
	sm.RegisterTransition(StateExecuting, createExecutingTransition(components))
	sm.RegisterTransition(StateAggregating, createAggregatingTransition(components))
	sm.RegisterTransition(StateScoring, createScoringTransition(components))

	return sm
}

func publish(ctx context.Context, bus eventbus.Bus, event *eventbus.BaseEvent) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish event (type: %s): %v", event.Type(), err)
	}
}

// createInitTransition announces the request and applies the total deadline.
func createInitTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventRequestStarted,
			pCtx.Request.Text,
			"StateMachine.Init",
			map[string]interface{}{
				"request_id": pCtx.Request.ID,
				"timestamp":  time.Now().Format(time.RFC3339),
			},
		))
		return StateProfiling, nil
	}
}

// createProfilingTransition classifies the request. The profiler contract
// guarantees it never fails, so this transition cannot error.
func createProfilingTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		pCtx.Profile = components.Profiler.Profile(pCtx.Request.Text)

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventProfileCompleted,
			pCtx.Profile,
			"StateMachine.Profiling",
			map[string]interface{}{
				"level": string(pCtx.Profile.Level),
				"score": pCtx.Profile.Score,
			},
		))
		return StatePlanning, nil
	}
}

// createPlanningTransition builds the plan and sanity-checks it against the
// registry. A plan referencing an unregistered capability is an
// orchestration bug, the one fault class that reaches StateErrored.
func createPlanningTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		plan := components.Planner.Plan(pCtx.Profile, components.Registry)
		if plan == nil || len(plan.Groups) == 0 {
			return StateErrored, NewInternalError("planning", "planner returned an empty plan", nil)
		}
		for _, name := range plan.Capabilities() {
			if !components.Registry.Has(name) {
				return StateErrored, NewCapabilityNotFoundError("planning", name)
			}
		}
		pCtx.Plan = plan
		log.Printf("Plan built (request_id: %s, plan: %s)", pCtx.Request.ID, describePlan(plan))

		// A plan that dropped required capabilities (unknown names, planner
		// fallback) still runs, but observers get told it is degenerate.
		planned := make(map[string]bool, len(plan.Capabilities()))
		for _, name := range plan.Capabilities() {
			planned[name] = true
		}
		for _, name := range pCtx.Profile.RequiredCapabilities {
			if !planned[name] {
				publish(ctx, bus, eventbus.NewEvent(
					eventbus.EventPlanDegenerate,
					plan,
					"StateMachine.Planning",
					map[string]interface{}{"dropped_capability": name},
				))
				break
			}
		}

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventPlanBuilt,
			plan,
			"StateMachine.Planning",
			map[string]interface{}{
				"strategy":    string(plan.Strategy),
				"group_count": plan.GroupCount(),
			},
		))
		return StateExecuting, nil
	}
}

// createExecutingTransition runs the plan. The executor absorbs every
// capability failure into the result set, so this transition cannot error
// either; a fully failed run still moves forward with an all-failed set.
func createExecutingTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventExecutionStarted,
			pCtx.Plan,
			"StateMachine.Executing",
			map[string]interface{}{"group_count": pCtx.Plan.GroupCount()},
		))

		execCtx := ctx
		var cancel context.CancelFunc
		if components.Config.RequestDeadline > 0 {
			remaining := components.Config.RequestDeadline - pCtx.TotalDuration()
			if remaining < 0 {
				remaining = 0
			}
			execCtx, cancel = context.WithTimeout(ctx, remaining)
			defer cancel()
		}

		pCtx.Results = components.Executor.Execute(execCtx, pCtx.Plan, components.Registry, pCtx.Request)

		for name, result := range pCtx.Results.Snapshot() {
			if result.Success {
				continue
			}
			publish(ctx, bus, eventbus.NewEvent(
				eventbus.EventCapabilityFailed,
				result,
				"StateMachine.Executing",
				map[string]interface{}{
					"capability": name,
					"error":      result.Error,
				},
			))
		}
		if pCtx.Results.SuccessCount() == 0 {
			publish(ctx, bus, eventbus.NewEvent(
				eventbus.EventSystemWarning,
				"all capabilities failed; continuing with an empty result set",
				"StateMachine.Executing",
				map[string]interface{}{"request_id": pCtx.Request.ID},
			))
		}

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventExecutionCompleted,
			pCtx.Results.Snapshot(),
			"StateMachine.Executing",
			map[string]interface{}{
				"result_count":  pCtx.Results.Len(),
				"success_count": pCtx.Results.SuccessCount(),
			},
		))
		return StateAggregating, nil
	}
}

// createAggregatingTransition merges the result set into one answer. The
// total request deadline keeps applying here: a slow reasoning engine inside
// the aggregator must not outlive it.
func createAggregatingTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		aggCtx := ctx
		var cancel context.CancelFunc
		if components.Config.RequestDeadline > 0 {
			remaining := components.Config.RequestDeadline - pCtx.TotalDuration()
			if remaining < 0 {
				remaining = 0
			}
			aggCtx, cancel = context.WithTimeout(ctx, remaining)
			defer cancel()
		}

		pCtx.Answer = components.Aggregator.Combine(aggCtx, pCtx.Request, pCtx.Results, pCtx.Profile)
		if pCtx.Answer.Text == "" {
			// The aggregator contract forbids an empty body; reaching this
			// line is an orchestration bug.
			return StateErrored, NewInternalError("aggregating", "aggregator produced an empty answer", nil)
		}

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventAggregationCompleted,
			pCtx.Answer,
			"StateMachine.Aggregating",
			map[string]interface{}{
				"strategy_used": pCtx.Answer.StrategyUsed,
				"source_count":  len(pCtx.Answer.Sources),
			},
		))
		return StateScoring, nil
	}
}

// createScoringTransition computes confidence and applies the only place
// where scorer output gates aggregator output: below the configured floor
// the aggregate is discarded for the canned disclaimer.
func createScoringTransition(components Components) StateTransition {
	return func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error) {
		pCtx.Confidence = components.Scorer.Score(pCtx.Results, pCtx.Profile)

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventScoreComputed,
			pCtx.Confidence,
			"StateMachine.Scoring",
			map[string]interface{}{
				"overall": pCtx.Confidence.Overall,
				"grade":   string(pCtx.Confidence.Grade),
			},
		))

		var response Response
		if pCtx.Confidence.Overall < components.Policy.ConfidenceFloor {
			publish(ctx, bus, eventbus.NewEvent(
				eventbus.EventLowConfidence,
				pCtx.Confidence.Overall,
				"StateMachine.Scoring",
				map[string]interface{}{
					"floor": components.Policy.ConfidenceFloor,
				},
			))
			response = Response{
				Answer: CombinedAnswer{
					Text:         LowConfidenceDisclaimer,
					Sources:      pCtx.Answer.Sources,
					StrategyUsed: "low_confidence_disclaimer",
				},
				Confidence: pCtx.Confidence,
				Degraded:   true,
			}
		} else {
			response = Response{
				Answer:     pCtx.Answer,
				Confidence: pCtx.Confidence,
			}
		}
		pCtx.SetResponse(response)

		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventAnswerSelected,
			response,
			"StateMachine.Scoring",
			map[string]interface{}{
				"degraded":    response.Degraded,
				"duration_ms": pCtx.TotalDuration().Milliseconds(),
			},
		))
		publish(ctx, bus, eventbus.NewEvent(
			eventbus.EventRequestSucceeded,
			pCtx.Request.Text,
			"StateMachine.Scoring",
			map[string]interface{}{"request_id": pCtx.Request.ID},
		))

		pCtx.Complete()
		return StateDone, nil
	}
}

// describePlan renders the plan's groups for log lines.
func describePlan(plan *ExecutionPlan) string {
	return fmt.Sprintf("%s %v", plan.Strategy, plan.Groups)
}
