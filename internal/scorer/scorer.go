// Package scorer computes the confidence evaluation for a finished request:
// a weighted success base damped by complexity and answer quality, always
// clamped to [0,1].
package scorer

import (
	"log"

	"github.com/solightly/capstan"
)

// WeightedScorer implements capstan.Scorer over the shared policy table.
type WeightedScorer struct {
	policy capstan.Policy
}

// New creates a scorer over the given policy.
func New(policy capstan.Policy) *WeightedScorer {
	return &WeightedScorer{policy: policy}
}

// Score computes Overall = clamp01(base x complexityFactor x qualityFactor).
// An empty result set or a panic anywhere in the math yields the neutral
// evaluation rather than an error: scoring annotates the answer, it must
// never block it.
func (s *WeightedScorer) Score(results *capstan.ResultSet, profile capstan.RequestProfile) (eval capstan.ConfidenceEvaluation) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Scoring panicked, returning neutral evaluation: %v", r)
			eval = neutral()
		}
	}()

	if results == nil || results.Len() == 0 {
		return neutral()
	}

	base := s.weightedBase(results)
	cf := s.complexityFactor(profile)
	qf := s.qualityFactor(results)
	overall := clamp01(base * cf * qf)

	return capstan.ConfidenceEvaluation{
		Overall: overall,
		Components: map[string]float64{
			"base":              base,
			"complexity_factor": cf,
			"quality_factor":    qf,
		},
		Grade: grade(overall),
	}
}

// weightedBase is the importance-weighted mean of per-capability confidence:
// a fixed success value for results that succeeded, a fixed failure value for
// those that did not.
func (s *WeightedScorer) weightedBase(results *capstan.ResultSet) float64 {
	var weighted, totalWeight float64
	for _, r := range results.Snapshot() {
		conf := s.policy.FailureConfidence
		if r.Success {
			conf = s.policy.SuccessConfidence
		}
		w := s.policy.ImportanceWeight(r.Capability)
		weighted += w * conf
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0.5
	}
	return weighted / totalWeight
}

// complexityFactor discounts confidence for harder requests, with extra
// damping once the raw profile score crosses the damping threshold.
func (s *WeightedScorer) complexityFactor(profile capstan.RequestProfile) float64 {
	f := s.policy.ComplexityFactor(profile.Level)
	if profile.Score >= s.policy.ScoreDampingThreshold {
		f *= s.policy.ScoreDampingFactor
	}
	return f
}

// qualityFactor is the mean of four [0,1] signals over the result set:
// payload completeness, textual richness, success rate, and inverse error
// density.
func (s *WeightedScorer) qualityFactor(results *capstan.ResultSet) float64 {
	snapshot := results.Snapshot()
	total := len(snapshot)
	if total == 0 {
		return 0.5
	}

	complete := 0
	failures := 0
	payloadRunes := 0
	for _, r := range snapshot {
		if r.Success {
			if s.isComplete(r) {
				complete++
			}
			if out, ok := r.Data["output"].(string); ok {
				payloadRunes += len([]rune(out))
			}
		} else {
			failures++
		}
	}

	completeness := float64(complete) / float64(total)
	successRate := float64(total-failures) / float64(total)
	errorDensity := errorDensityScore(failures, total)
	richness := richnessScore(payloadRunes, s.policy.RichnessCap)

	return (completeness + richness + successRate + errorDensity) / 4
}

// isComplete checks a successful payload against the shape the policy
// declares for its capability. Capabilities without a declared shape fall
// back to requiring a non-empty payload.
func (s *WeightedScorer) isComplete(r capstan.CapabilityResult) bool {
	required, ok := s.policy.CompletenessKeys[r.Capability]
	if !ok {
		return len(r.Data) > 0
	}
	for _, key := range required {
		if _, present := r.Data[key]; !present {
			return false
		}
	}
	return true
}

// richnessScore maps combined payload length onto tiers that saturate at the
// policy cap: longer answers read as better-supported, up to a point.
func richnessScore(runes, limit int) float64 {
	switch {
	case runes >= limit:
		return 1.0
	case runes >= limit/2:
		return 0.8
	case runes >= limit/4:
		return 0.6
	case runes > 0:
		return 0.4
	default:
		return 0.1
	}
}

// errorDensityScore penalizes failure-heavy result sets in tiers rather than
// linearly, so one flaky capability does not crater the evaluation.
func errorDensityScore(failures, total int) float64 {
	density := float64(failures) / float64(total)
	switch {
	case density == 0:
		return 1.0
	case density <= 0.25:
		return 0.75
	case density <= 0.5:
		return 0.5
	case density < 1.0:
		return 0.25
	default:
		return 0.0
	}
}

func grade(overall float64) capstan.ConfidenceGrade {
	switch {
	case overall >= 0.8:
		return capstan.GradeHigh
	case overall >= 0.6:
		return capstan.GradeModerate
	case overall >= 0.4:
		return capstan.GradeLow
	default:
		return capstan.GradeVeryLow
	}
}

func neutral() capstan.ConfidenceEvaluation {
	return capstan.ConfidenceEvaluation{
		Overall:    0.5,
		Components: map[string]float64{"fallback": 1},
		Grade:      capstan.GradeModerate,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
