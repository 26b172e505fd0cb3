// Package planner turns a request profile into an ordered execution plan
// that respects registered capability dependencies.
package planner

import (
	"log"
	"sort"
	"time"

	"github.com/solightly/capstan"
)

// GroupPlanner builds plans by expanding the profiled capability set to its
// transitive dependency closure and layering it into dependency rounds.
type GroupPlanner struct {
	policy capstan.Policy
}

// New creates a planner over the given policy.
func New(policy capstan.Policy) *GroupPlanner {
	return &GroupPlanner{policy: policy}
}

// Plan implements capstan.Planner. Planning never fails: any internal fault
// degrades to a single-group plan around the default capability, so the
// executor always has something to run.
func (p *GroupPlanner) Plan(profile capstan.RequestProfile, registry *capstan.Registry) (plan *capstan.ExecutionPlan) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Planning panicked, using degenerate plan: %v", r)
			plan = p.defaultPlan()
		}
	}()

	selected := p.closure(profile.RequiredCapabilities, registry)
	if len(selected) == 0 {
		return p.defaultPlan()
	}

	groups := p.layer(selected)
	strategy := p.strategy(profile, selected, groups)
	if strategy == capstan.StrategyParallel {
		// No interdependencies among the selected set: run them all at once.
		single := make([]string, 0, len(selected))
		for name := range selected {
			single = append(single, name)
		}
		sort.Strings(single)
		groups = [][]string{single}
	}
	if strategy == capstan.StrategySequential {
		var flat [][]string
		for _, group := range groups {
			for _, name := range group {
				flat = append(flat, []string{name})
			}
		}
		groups = flat
	}

	return &capstan.ExecutionPlan{
		Strategy:          strategy,
		Groups:            groups,
		EstimatedDuration: p.estimate(strategy, groups),
	}
}

// closure expands the requested names to include every transitive dependency.
// Names missing from the registry are dropped with a warning rather than
// failing the plan.
func (p *GroupPlanner) closure(required []string, registry *capstan.Registry) map[string]capstan.CapabilityDescriptor {
	selected := make(map[string]capstan.CapabilityDescriptor)
	var visit func(name string)
	visit = func(name string) {
		if _, done := selected[name]; done {
			return
		}
		desc, ok := registry.Get(name)
		if !ok {
			log.Printf("Planner dropping unregistered capability (capability: %s)", name)
			return
		}
		selected[name] = desc
		for _, dep := range desc.DependsOn {
			visit(dep)
		}
	}
	for _, name := range required {
		visit(name)
	}
	return selected
}

// layer runs Kahn's algorithm round by round: each round takes every
// capability whose in-set dependencies are already scheduled. Rounds are
// ordered by priority then name so plans are deterministic. If a round
// produces nothing while work remains (a dependency cycle inside the selected
// set), the lowest-priority remaining capability is force-selected so
// planning always terminates.
func (p *GroupPlanner) layer(selected map[string]capstan.CapabilityDescriptor) [][]string {
	remaining := make(map[string]capstan.CapabilityDescriptor, len(selected))
	for name, desc := range selected {
		remaining[name] = desc
	}
	scheduled := make(map[string]bool, len(selected))

	var groups [][]string
	for len(remaining) > 0 {
		var round []string
		for name, desc := range remaining {
			ready := true
			for _, dep := range desc.DependsOn {
				if _, inSet := selected[dep]; inSet && !scheduled[dep] {
					ready = false
					break
				}
			}
			if ready {
				round = append(round, name)
			}
		}
		if len(round) == 0 {
			forced := p.forceSelect(remaining)
			log.Printf("Dependency cycle among remaining capabilities, force-selecting (capability: %s)", forced)
			round = []string{forced}
		}
		sort.Slice(round, func(i, j int) bool {
			a, b := remaining[round[i]], remaining[round[j]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return round[i] < round[j]
		})
		for _, name := range round {
			scheduled[name] = true
			delete(remaining, name)
		}
		groups = append(groups, round)
	}
	return groups
}

// forceSelect breaks a cycle by picking the least-important remaining
// capability (greatest priority value), name as tie-break.
func (p *GroupPlanner) forceSelect(remaining map[string]capstan.CapabilityDescriptor) string {
	var pick string
	pickPriority := 0
	for name, desc := range remaining {
		if pick == "" || desc.Priority > pickPriority ||
			(desc.Priority == pickPriority && name < pick) {
			pick = name
			pickPriority = desc.Priority
		}
	}
	return pick
}

func (p *GroupPlanner) strategy(profile capstan.RequestProfile, selected map[string]capstan.CapabilityDescriptor, groups [][]string) capstan.PlanStrategy {
	if len(selected) <= 2 {
		return capstan.StrategySequential
	}
	independent := len(groups) == 1
	heavy := profile.Level == capstan.ComplexityComplex || profile.Level == capstan.ComplexityMultiFaceted
	if heavy && independent && len(selected) >= p.policy.ParallelMinCapabilities {
		return capstan.StrategyParallel
	}
	return capstan.StrategyHybrid
}

func (p *GroupPlanner) estimate(strategy capstan.PlanStrategy, groups [][]string) time.Duration {
	cost := p.policy.PerCapabilityCost
	switch strategy {
	case capstan.StrategySequential:
		total := 0
		for _, group := range groups {
			total += len(group)
		}
		return time.Duration(total) * cost
	case capstan.StrategyParallel:
		widest := 0
		for _, group := range groups {
			if len(group) > widest {
				widest = len(group)
			}
		}
		return time.Duration(widest) * cost
	default:
		var total time.Duration
		for _, group := range groups {
			total += time.Duration(float64(len(group)) * float64(cost) * p.policy.ParallelDiscount)
		}
		return total
	}
}

// defaultPlan is the degenerate single-capability plan used when profiling
// produced nothing usable or planning itself failed.
func (p *GroupPlanner) defaultPlan() *capstan.ExecutionPlan {
	return &capstan.ExecutionPlan{
		Strategy:          capstan.StrategySequential,
		Groups:            [][]string{{p.policy.DefaultCapability}},
		EstimatedDuration: p.policy.PerCapabilityCost,
	}
}
