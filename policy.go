package capstan

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the tunable scoring and planning table shared by the profiler,
// planner, aggregator, scorer, and orchestrator. The numbers are swappable
// policy, not structure: load them from a YAML file or start from
// DefaultPolicy and adjust.
type Policy struct {
	// Profiling
	ComplexityThreshold  int      `yaml:"complexity_threshold"` // ladder pivot T: 2T multi-faceted, T complex, T/2 moderate
	LengthThreshold      int      `yaml:"length_threshold"`     // request length (runes) above which the length bonus applies
	LengthBonus          int      `yaml:"length_bonus"`
	QuestionBonus        int      `yaml:"question_bonus"` // per question mark beyond the first
	ConnectiveBonus      int      `yaml:"connective_bonus"`
	HighSignalWeight     int      `yaml:"high_signal_weight"`
	MediumSignalWeight   int      `yaml:"medium_signal_weight"`
	LowSignalWeight      int      `yaml:"low_signal_weight"` // usually negative
	HighSignalKeywords   []string `yaml:"high_signal_keywords"`
	MediumSignalKeywords []string `yaml:"medium_signal_keywords"`
	LowSignalKeywords    []string `yaml:"low_signal_keywords"`
	Connectives          []string `yaml:"connectives"`

	// Capability derivation
	CapabilityTriggers map[string][]string `yaml:"capability_triggers"`
	DefaultCapability  string              `yaml:"default_capability"`

	// Planning
	ParallelMinCapabilities int           `yaml:"parallel_min_capabilities"`
	PerCapabilityCost       time.Duration `yaml:"per_capability_cost"`
	ParallelDiscount        float64       `yaml:"parallel_discount"`

	// Aggregation
	ExcerptLimit int `yaml:"excerpt_limit"` // max runes pulled from one result into a section

	// Scoring
	SuccessConfidence     float64                     `yaml:"success_confidence"`
	FailureConfidence     float64                     `yaml:"failure_confidence"`
	ImportanceWeights     map[string]float64          `yaml:"importance_weights"`
	DefaultWeight         float64                     `yaml:"default_weight"`
	ComplexityFactors     map[ComplexityLevel]float64 `yaml:"complexity_factors"`
	ScoreDampingThreshold int                         `yaml:"score_damping_threshold"` // profile scores at or above this damp confidence
	ScoreDampingFactor    float64                     `yaml:"score_damping_factor"`
	RichnessCap           int                         `yaml:"richness_cap"`      // combined payload length where richness saturates
	CompletenessKeys      map[string][]string         `yaml:"completeness_keys"` // per-capability keys a complete payload must carry

	// Final answer selection
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// DefaultPolicy returns the policy table used when no file is supplied.
func DefaultPolicy() Policy {
	return Policy{
		ComplexityThreshold: 6,
		LengthThreshold:     120,
		LengthBonus:         2,
		QuestionBonus:       1,
		ConnectiveBonus:     2,
		HighSignalWeight:    3,
		MediumSignalWeight:  1,
		LowSignalWeight:     -1,
		HighSignalKeywords: []string{
			"compare", "analyze", "analysis", "forecast", "trend", "correlate",
			"evaluate", "breakdown", "versus",
		},
		MediumSignalKeywords: []string{
			"why", "how", "explain", "history", "impact", "summary", "detail",
		},
		LowSignalKeywords: []string{
			"hi", "hello", "thanks", "please",
		},
		Connectives: []string{
			"and also", "as well as", "in addition", "but", "meanwhile", "furthermore",
		},
		CapabilityTriggers: map[string][]string{
			"lookup":    {"price", "quote", "value", "rate", "lookup", "current"},
			"analysis":  {"analyze", "analysis", "trend", "compare", "forecast", "evaluate"},
			"news":      {"news", "headline", "announcement", "report", "latest"},
			"knowledge": {"what is", "explain", "define", "history", "background"},
			"visualize": {"chart", "plot", "graph", "visualize", "visualise"},
		},
		DefaultCapability:       "respond",
		ParallelMinCapabilities: 3,
		PerCapabilityCost:       400 * time.Millisecond,
		ParallelDiscount:        0.6,
		ExcerptLimit:            480,
		SuccessConfidence:       0.8,
		FailureConfidence:       0.2,
		ImportanceWeights: map[string]float64{
			"lookup":    0.30,
			"analysis":  0.25,
			"news":      0.15,
			"knowledge": 0.15,
			"visualize": 0.05,
		},
		DefaultWeight: 0.05,
		ComplexityFactors: map[ComplexityLevel]float64{
			ComplexitySimple:       0.95,
			ComplexityModerate:     0.85,
			ComplexityComplex:      0.75,
			ComplexityMultiFaceted: 0.65,
		},
		ScoreDampingThreshold: 20,
		ScoreDampingFactor:    0.9,
		RichnessCap:           1200,
		CompletenessKeys: map[string][]string{
			"lookup":    {"output", "symbol"},
			"analysis":  {"output"},
			"news":      {"output"},
			"knowledge": {"output", "hits"},
			"visualize": {"output", "sparkline"},
			"respond":   {"output"},
		},
		ConfidenceFloor: 0.35,
	}
}

// UnmarshalYAML decodes a policy table, accepting durations either as Go
// duration strings ("400ms") or as integer nanoseconds.
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value != "per_capability_cost" {
			continue
		}
		node := value.Content[i+1]
		if node.Tag == "!!str" {
			d, err := time.ParseDuration(node.Value)
			if err != nil {
				return fmt.Errorf("per_capability_cost: %w", err)
			}
			node.Tag = "!!int"
			node.Value = strconv.FormatInt(int64(d), 10)
		}
	}
	type alias Policy
	return value.Decode((*alias)(p))
}

// LoadPolicy reads and validates a YAML policy file.
func LoadPolicy(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, NewConfigurationError("failed to open policy file", err)
	}
	defer f.Close()

	policy := DefaultPolicy() // file overrides defaults field by field
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&policy); err != nil {
		return Policy{}, NewConfigurationError("failed to parse policy YAML", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks the table for values that would break downstream
// invariants (division by zero, confidence escaping [0,1]).
func (p Policy) Validate() error {
	if p.ComplexityThreshold <= 0 {
		return NewConfigurationError("complexity_threshold must be positive", nil)
	}
	if p.DefaultCapability == "" {
		return NewConfigurationError("default_capability must be set", nil)
	}
	if p.PerCapabilityCost < 0 {
		return NewConfigurationError("per_capability_cost must not be negative", nil)
	}
	if p.ParallelDiscount <= 0 || p.ParallelDiscount > 1 {
		return NewConfigurationError("parallel_discount must be in (0,1]", nil)
	}
	if p.SuccessConfidence < 0 || p.SuccessConfidence > 1 ||
		p.FailureConfidence < 0 || p.FailureConfidence > 1 {
		return NewConfigurationError("success/failure confidence must be in [0,1]", nil)
	}
	if p.ConfidenceFloor < 0 || p.ConfidenceFloor > 1 {
		return NewConfigurationError("confidence_floor must be in [0,1]", nil)
	}
	total := 0.0
	for name, w := range p.ImportanceWeights {
		if w < 0 || w > 1 {
			return NewConfigurationError(fmt.Sprintf("importance weight for '%s' must be in [0,1]", name), nil)
		}
		total += w
	}
	if total > 1.0+1e-9 {
		return NewConfigurationError("importance weights must sum to at most 1", nil)
	}
	if p.ExcerptLimit <= 0 {
		return NewConfigurationError("excerpt_limit must be positive", nil)
	}
	if p.RichnessCap <= 0 {
		return NewConfigurationError("richness_cap must be positive", nil)
	}
	return nil
}

// ComplexityFactor returns the confidence factor for a level, with a
// conservative default for unknown levels.
func (p Policy) ComplexityFactor(level ComplexityLevel) float64 {
	if f, ok := p.ComplexityFactors[level]; ok {
		return f
	}
	return 0.7
}

// ImportanceWeight returns the scoring weight for a capability, falling back
// to the small default for unmapped names.
func (p Policy) ImportanceWeight(capability string) float64 {
	if w, ok := p.ImportanceWeights[capability]; ok {
		return w
	}
	return p.DefaultWeight
}
