package executor

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func failingSource(name string) Source {
	return Source{Name: name, Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("%s is down", name)
	}}
}

func okSource(name, payload string) Source {
	return Source{Name: name, Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return payload, nil
	}}
}

func TestRunWithFallback_ThirdSourceWins(t *testing.T) {
	// All sources unnamed: the first is auto-named primary, the rest
	// fallback_N.
	sources := []Source{
		{Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, fmt.Errorf("primary is down")
		}},
		{Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "", nil // empty result counts as a failure
		}},
		{Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "third time lucky", nil
		}},
	}

	outcome := RunWithFallback(context.Background(), sources, nil)
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.Source != "fallback_2" {
		t.Errorf("expected source fallback_2, got %s", outcome.Source)
	}
	if outcome.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", outcome.Attempts)
	}
	if len(outcome.Errors) != 2 {
		t.Errorf("expected 2 accumulated errors, got %v", outcome.Errors)
	}
}

func TestRunWithFallback_AllFail(t *testing.T) {
	outcome := RunWithFallback(context.Background(), []Source{
		failingSource("alpha"),
		failingSource("beta"),
	}, nil)

	if outcome.Success {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if outcome.Attempts != 2 || len(outcome.Errors) != 2 {
		t.Errorf("expected every source attempted and recorded, got %+v", outcome)
	}
}

func TestRunWithFallback_FirstValidStopsChain(t *testing.T) {
	called := false
	outcome := RunWithFallback(context.Background(), []Source{
		okSource("primary", "data"),
		{Name: "never", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			called = true
			return "unused", nil
		}},
	}, nil)

	if !outcome.Success || outcome.Source != "primary" || outcome.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if called {
		t.Error("later source ran after a valid result")
	}
}

func TestRunWithFallback_PanickingSourceCounts(t *testing.T) {
	outcome := RunWithFallback(context.Background(), []Source{
		{Name: "crashy", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			panic("source blew up")
		}},
		okSource("steady", "payload"),
	}, nil)

	if !outcome.Success || outcome.Source != "steady" {
		t.Fatalf("expected the second source to win: %+v", outcome)
	}
	if len(outcome.Errors) != 1 {
		t.Errorf("expected the panic recorded as an error, got %v", outcome.Errors)
	}
}

func TestRunParallel_FirstValidWins(t *testing.T) {
	slow := Source{Name: "slow", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return "slow payload", nil
	}}
	fast := okSource("fast", "fast payload")

	start := time.Now()
	outcome := RunParallel(context.Background(), []Source{slow, fast}, nil)
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.Source != "fast" {
		t.Errorf("expected fast to win, got %s", outcome.Source)
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Errorf("winner should return without waiting for the loser")
	}
}

func TestRunParallel_AllFail(t *testing.T) {
	outcome := RunParallel(context.Background(), []Source{
		failingSource("alpha"),
		failingSource("beta"),
	}, nil)

	if outcome.Success {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if len(outcome.Errors) != 2 {
		t.Errorf("expected both errors recorded, got %v", outcome.Errors)
	}
}

func TestRunParallel_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := Source{Name: "blocked", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	done := make(chan Outcome, 1)
	go func() { done <- RunParallel(ctx, []Source{blocked}, nil) }()
	cancel()

	select {
	case outcome := <-done:
		if outcome.Success {
			t.Errorf("expected failure after cancellation, got %+v", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("RunParallel did not return after cancellation")
	}
}

func TestValidResult(t *testing.T) {
	cases := []struct {
		name string
		data interface{}
		want bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"string", "x", true},
		{"empty map", map[string]interface{}{}, false},
		{"map", map[string]interface{}{"k": 1}, true},
		{"empty slice", []int{}, false},
		{"slice", []int{1}, true},
		{"number", 0, true},
		{"bool", false, true},
	}
	for _, tc := range cases {
		if got := validResult(tc.data); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
