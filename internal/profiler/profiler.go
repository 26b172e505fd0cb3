// Package profiler classifies raw requests into complexity and capability
// profiles using an additive keyword policy table.
package profiler

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/solightly/capstan"
)

// KeywordProfiler scores a request with fixed per-category keyword weights
// plus length, question-mark, and connective bonuses. Profiling is a pure
// function of the request text and the policy table, so the same input
// always yields the same profile.
type KeywordProfiler struct {
	policy capstan.Policy
}

// New creates a profiler over the given policy table.
func New(policy capstan.Policy) *KeywordProfiler {
	return &KeywordProfiler{policy: policy}
}

// Profile implements capstan.Profiler. It never fails: a panic anywhere in
// scoring yields the most conservative profile, since everything downstream
// depends on having some profile.
func (p *KeywordProfiler) Profile(request string) (profile capstan.RequestProfile) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Profiling panicked, falling back to conservative profile: %v", r)
			profile = p.conservativeProfile()
		}
	}()

	lower := strings.ToLower(request)
	score := 0
	var factors []string

	addKeywords := func(keywords []string, weight int, label string) {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score += weight
				factors = append(factors, fmt.Sprintf("%s:%s", label, kw))
			}
		}
	}
	addKeywords(p.policy.HighSignalKeywords, p.policy.HighSignalWeight, "high_signal")
	addKeywords(p.policy.MediumSignalKeywords, p.policy.MediumSignalWeight, "medium_signal")
	addKeywords(p.policy.LowSignalKeywords, p.policy.LowSignalWeight, "low_signal")

	if len([]rune(request)) > p.policy.LengthThreshold {
		score += p.policy.LengthBonus
		factors = append(factors, "length")
	}

	// Each question mark beyond the first signals an extra ask.
	if marks := strings.Count(request, "?"); marks > 1 {
		score += (marks - 1) * p.policy.QuestionBonus
		factors = append(factors, fmt.Sprintf("questions:%d", marks))
	}

	for _, connective := range p.policy.Connectives {
		if n := strings.Count(lower, connective); n > 0 {
			score += n * p.policy.ConnectiveBonus
			factors = append(factors, fmt.Sprintf("connective:%s", connective))
		}
	}

	required := p.requiredCapabilities(lower)
	cost := time.Duration(len(required)) * p.policy.PerCapabilityCost

	return capstan.RequestProfile{
		Level:                p.level(score),
		Score:                score,
		Factors:              factors,
		RequiredCapabilities: required,
		EstimatedCost:        cost,
	}
}

// level maps a score onto the threshold ladder for pivot T.
func (p *KeywordProfiler) level(score int) capstan.ComplexityLevel {
	t := p.policy.ComplexityThreshold
	if t <= 0 {
		t = 1
	}
	switch {
	case score >= 2*t:
		return capstan.ComplexityMultiFaceted
	case score >= t:
		return capstan.ComplexityComplex
	case score >= t/2:
		return capstan.ComplexityModerate
	default:
		return capstan.ComplexitySimple
	}
}

// requiredCapabilities derives the capability set by independent keyword
// membership per capability. When nothing matches, the default capability is
// injected so the plan is never empty.
func (p *KeywordProfiler) requiredCapabilities(lower string) []string {
	var required []string
	names := make([]string, 0, len(p.policy.CapabilityTriggers))
	for name := range p.policy.CapabilityTriggers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, trigger := range p.policy.CapabilityTriggers[name] {
			if strings.Contains(lower, trigger) {
				required = append(required, name)
				break
			}
		}
	}
	if len(required) == 0 {
		required = []string{p.policy.DefaultCapability}
	}
	return required
}

func (p *KeywordProfiler) conservativeProfile() capstan.RequestProfile {
	return capstan.RequestProfile{
		Level:                capstan.ComplexitySimple,
		Score:                0,
		Factors:              []string{"fallback"},
		RequiredCapabilities: []string{p.policy.DefaultCapability},
		EstimatedCost:        p.policy.PerCapabilityCost,
	}
}
