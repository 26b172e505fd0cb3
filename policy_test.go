package capstan

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPolicy_Valid(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy must validate: %v", err)
	}
}

func TestLoadPolicy_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := []byte("complexity_threshold: 10\nconfidence_floor: 0.5\nper_capability_cost: 250ms\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.ComplexityThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", policy.ComplexityThreshold)
	}
	if policy.ConfidenceFloor != 0.5 {
		t.Errorf("expected floor 0.5, got %f", policy.ConfidenceFloor)
	}
	if policy.PerCapabilityCost != 250*time.Millisecond {
		t.Errorf("expected 250ms cost, got %v", policy.PerCapabilityCost)
	}
	// Untouched fields keep their defaults.
	if policy.DefaultCapability != DefaultPolicy().DefaultCapability {
		t.Errorf("default capability changed: %s", policy.DefaultCapability)
	}
}

func TestLoadPolicy_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("complexity_threshold: -3\n"), 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Error("expected an error for a non-positive threshold")
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	if _, err := LoadPolicy("/nonexistent/policy.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPolicy_ImportanceWeightFallback(t *testing.T) {
	policy := DefaultPolicy()
	if w := policy.ImportanceWeight("lookup"); w != 0.30 {
		t.Errorf("expected 0.30 for lookup, got %f", w)
	}
	if w := policy.ImportanceWeight("unmapped"); w != policy.DefaultWeight {
		t.Errorf("expected the default weight, got %f", w)
	}
}

func TestPolicy_WeightSumValidation(t *testing.T) {
	policy := DefaultPolicy()
	policy.ImportanceWeights = map[string]float64{"a": 0.7, "b": 0.7}
	if err := policy.Validate(); err == nil {
		t.Error("expected an error when importance weights sum above 1")
	}
}
