package profiler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/solightly/capstan"
)

func TestProfile_SimpleRequest(t *testing.T) {
	p := New(capstan.DefaultPolicy())

	profile := p.Profile("hello")
	if profile.Level != capstan.ComplexitySimple {
		t.Errorf("expected simple, got %s", profile.Level)
	}
	if !reflect.DeepEqual(profile.RequiredCapabilities, []string{"respond"}) {
		t.Errorf("expected default capability, got %v", profile.RequiredCapabilities)
	}
}

func TestProfile_ComplexityLadder(t *testing.T) {
	p := New(capstan.DefaultPolicy())

	cases := []struct {
		name  string
		text  string
		level capstan.ComplexityLevel
	}{
		{"greeting", "hello", capstan.ComplexitySimple},
		{"single question", "explain how and why it impacts the summary", capstan.ComplexityModerate},
		{
			"compound analytical",
			"compare the trend for ACME and explain why",
			capstan.ComplexityComplex,
		},
		{
			"many facets",
			"compare and analyze the trend, forecast the impact, evaluate the breakdown " +
				"and also correlate this versus last year? what changed? why? " +
				strings.Repeat("give me every detail. ", 10),
			capstan.ComplexityMultiFaceted,
		},
	}
	for _, tc := range cases {
		profile := p.Profile(tc.text)
		if profile.Level != tc.level {
			t.Errorf("%s: expected %s, got %s (score %d, factors %v)",
				tc.name, tc.level, profile.Level, profile.Score, profile.Factors)
		}
	}
}

func TestProfile_Idempotent(t *testing.T) {
	p := New(capstan.DefaultPolicy())
	text := "compare the price trend for ACME and also the latest news?"

	first := p.Profile(text)
	for i := 0; i < 5; i++ {
		again := p.Profile(text)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("profile changed between runs: %+v vs %+v", first, again)
		}
	}
}

func TestProfile_CapabilityTriggers(t *testing.T) {
	p := New(capstan.DefaultPolicy())

	profile := p.Profile("what is the current price of ACME and any latest news? please chart it")
	want := map[string]bool{"lookup": true, "news": true, "knowledge": true, "visualize": true}
	if len(profile.RequiredCapabilities) != len(want) {
		t.Fatalf("expected %d capabilities, got %v", len(want), profile.RequiredCapabilities)
	}
	for _, name := range profile.RequiredCapabilities {
		if !want[name] {
			t.Errorf("unexpected capability %s", name)
		}
	}

	// Capability names come back sorted so plans are deterministic.
	for i := 1; i < len(profile.RequiredCapabilities); i++ {
		if profile.RequiredCapabilities[i-1] >= profile.RequiredCapabilities[i] {
			t.Errorf("capabilities not sorted: %v", profile.RequiredCapabilities)
		}
	}
}

func TestProfile_EstimatedCostTracksCapabilityCount(t *testing.T) {
	policy := capstan.DefaultPolicy()
	p := New(policy)

	profile := p.Profile("current price and latest news")
	wantCost := policy.PerCapabilityCost * 2
	if profile.EstimatedCost != wantCost {
		t.Errorf("expected cost %v for %v, got %v",
			wantCost, profile.RequiredCapabilities, profile.EstimatedCost)
	}
}
