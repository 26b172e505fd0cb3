package scorer

import (
	"strings"
	"testing"

	"github.com/solightly/capstan"
)

func resultSet(results ...capstan.CapabilityResult) *capstan.ResultSet {
	rs := capstan.NewResultSet()
	for _, r := range results {
		rs.Put(r)
	}
	return rs
}

func success(name string, outputLen int) capstan.CapabilityResult {
	return capstan.CapabilityResult{
		Capability: name,
		Success:    true,
		Data:       map[string]interface{}{"output": strings.Repeat("a", outputLen)},
	}
}

func failure(name string) capstan.CapabilityResult {
	return capstan.CapabilityResult{Capability: name, Success: false, Error: "boom"}
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	// Adversarial policies must not let Overall escape [0,1].
	policy := capstan.DefaultPolicy()
	policy.SuccessConfidence = 1.0
	policy.ImportanceWeights = map[string]float64{"lookup": 1.0}
	policy.ComplexityFactors = map[capstan.ComplexityLevel]float64{
		capstan.ComplexitySimple: 3.0, // deliberately out of range
	}
	s := New(policy)

	eval := s.Score(resultSet(success("lookup", 5000)),
		capstan.RequestProfile{Level: capstan.ComplexitySimple})
	if eval.Overall < 0 || eval.Overall > 1 {
		t.Errorf("overall escaped [0,1]: %f", eval.Overall)
	}

	policy.ComplexityFactors[capstan.ComplexitySimple] = -2.0
	s = New(policy)
	eval = s.Score(resultSet(success("lookup", 10)),
		capstan.RequestProfile{Level: capstan.ComplexitySimple})
	if eval.Overall < 0 || eval.Overall > 1 {
		t.Errorf("overall escaped [0,1]: %f", eval.Overall)
	}
}

func TestScore_AllSuccessScoresHigherThanAllFailed(t *testing.T) {
	s := New(capstan.DefaultPolicy())
	profile := capstan.RequestProfile{Level: capstan.ComplexityModerate}

	good := s.Score(resultSet(success("lookup", 800), success("news", 800)), profile)
	bad := s.Score(resultSet(failure("lookup"), failure("news")), profile)

	if good.Overall <= bad.Overall {
		t.Errorf("all-success (%f) should outscore all-failed (%f)", good.Overall, bad.Overall)
	}
}

func TestScore_EmptySetIsNeutral(t *testing.T) {
	s := New(capstan.DefaultPolicy())

	eval := s.Score(capstan.NewResultSet(), capstan.RequestProfile{Level: capstan.ComplexitySimple})
	if eval.Overall != 0.5 {
		t.Errorf("expected neutral 0.5, got %f", eval.Overall)
	}
	if eval.Grade != capstan.GradeModerate {
		t.Errorf("expected moderate grade, got %s", eval.Grade)
	}

	eval = s.Score(nil, capstan.RequestProfile{Level: capstan.ComplexitySimple})
	if eval.Overall != 0.5 {
		t.Errorf("expected neutral 0.5 for nil set, got %f", eval.Overall)
	}
}

func TestScore_ComplexityDampensConfidence(t *testing.T) {
	s := New(capstan.DefaultPolicy())
	rs := resultSet(success("lookup", 800), success("news", 800))

	simple := s.Score(rs, capstan.RequestProfile{Level: capstan.ComplexitySimple})
	multi := s.Score(rs, capstan.RequestProfile{Level: capstan.ComplexityMultiFaceted})

	if multi.Overall >= simple.Overall {
		t.Errorf("multi-faceted (%f) should score below simple (%f) on identical results",
			multi.Overall, simple.Overall)
	}
}

func TestScore_HighRawScoreDampens(t *testing.T) {
	policy := capstan.DefaultPolicy()
	s := New(policy)
	rs := resultSet(success("lookup", 800))

	calm := s.Score(rs, capstan.RequestProfile{Level: capstan.ComplexityComplex, Score: 5})
	wild := s.Score(rs, capstan.RequestProfile{
		Level: capstan.ComplexityComplex,
		Score: policy.ScoreDampingThreshold,
	})

	if wild.Overall >= calm.Overall {
		t.Errorf("damped score (%f) should fall below undamped (%f)", wild.Overall, calm.Overall)
	}
}

func TestScore_CompletenessRequiresDeclaredKeys(t *testing.T) {
	s := New(capstan.DefaultPolicy())
	profile := capstan.RequestProfile{Level: capstan.ComplexitySimple}
	payload := strings.Repeat("a", 200)

	shaped := s.Score(resultSet(capstan.CapabilityResult{
		Capability: "lookup",
		Success:    true,
		Data:       map[string]interface{}{"output": payload, "symbol": "ACME"},
	}), profile)
	bare := s.Score(resultSet(capstan.CapabilityResult{
		Capability: "lookup",
		Success:    true,
		Data:       map[string]interface{}{"output": payload},
	}), profile)

	if shaped.Overall <= bare.Overall {
		t.Errorf("payload with the declared keys (%f) should outscore one missing them (%f)",
			shaped.Overall, bare.Overall)
	}
}

func TestScore_UndeclaredCapabilityFallsBackToNonEmpty(t *testing.T) {
	s := New(capstan.DefaultPolicy())

	if !s.isComplete(capstan.CapabilityResult{
		Capability: "custom",
		Success:    true,
		Data:       map[string]interface{}{"anything": 1},
	}) {
		t.Error("a non-empty payload should be complete for an undeclared capability")
	}
	if s.isComplete(capstan.CapabilityResult{
		Capability: "custom",
		Success:    true,
		Data:       map[string]interface{}{},
	}) {
		t.Error("an empty payload should be incomplete")
	}
}

func TestScore_GradeLadder(t *testing.T) {
	cases := []struct {
		overall float64
		want    capstan.ConfidenceGrade
	}{
		{0.85, capstan.GradeHigh},
		{0.80, capstan.GradeHigh},
		{0.65, capstan.GradeModerate},
		{0.45, capstan.GradeLow},
		{0.10, capstan.GradeVeryLow},
	}
	for _, tc := range cases {
		if got := grade(tc.overall); got != tc.want {
			t.Errorf("grade(%f): expected %s, got %s", tc.overall, tc.want, got)
		}
	}
}

func TestScore_ComponentsExposed(t *testing.T) {
	s := New(capstan.DefaultPolicy())
	eval := s.Score(resultSet(success("lookup", 100)),
		capstan.RequestProfile{Level: capstan.ComplexitySimple})

	for _, key := range []string{"base", "complexity_factor", "quality_factor"} {
		if _, ok := eval.Components[key]; !ok {
			t.Errorf("missing component %s: %v", key, eval.Components)
		}
	}
}
