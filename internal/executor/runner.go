package executor

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/solightly/capstan"
)

// bindingVarPattern matches $dep, $dep.field, and $dep.field[0] references
// inside binding expressions.
var bindingVarPattern = regexp.MustCompile(`\$([a-zA-Z0-9_]+)((?:\.[a-zA-Z0-9_]+|\[[0-9]+\])*)`)

var bindingAccessorPattern = regexp.MustCompile(`(\.[a-zA-Z0-9_]+|\[[0-9]+\])`)

// TaskRunner invokes a single capability: cache check, binding resolution,
// timeout-bounded execution, panic recovery, cache write-back. Every failure
// mode is absorbed into the returned CapabilityResult.
type TaskRunner struct {
	cache    capstan.Cache
	timeout  time.Duration
	cacheTTL time.Duration

	embed               func(text string) []float64
	similarityThreshold float64
}

// RunnerOption configures a TaskRunner.
type RunnerOption func(*TaskRunner)

// WithSimilarityLookup enables the secondary cache path: when the exact key
// misses, entries stored by earlier invocations are matched by embedding, and
// successful results are written back with their embedding so near-identical
// requests can reuse them.
func WithSimilarityLookup(embed func(text string) []float64, threshold float64) RunnerOption {
	return func(r *TaskRunner) {
		r.embed = embed
		r.similarityThreshold = threshold
	}
}

// NewTaskRunner creates a runner. cache may be nil, which disables
// memoization. timeout <= 0 disables the per-invocation deadline.
func NewTaskRunner(cache capstan.Cache, timeout, cacheTTL time.Duration, options ...RunnerOption) *TaskRunner {
	r := &TaskRunner{cache: cache, timeout: timeout, cacheTTL: cacheTTL}
	for _, option := range options {
		option(r)
	}
	return r
}

// Fingerprint derives the cache key for one capability invocation. The key
// covers the capability name and the request text, so identical questions
// share cached work across requests.
func Fingerprint(capability, requestText string) string {
	h := sha1.New()
	h.Write([]byte(capability))
	h.Write([]byte{0})
	h.Write([]byte(requestText))
	return fmt.Sprintf("capability:%s:%x", capability, h.Sum(nil))
}

// Run executes one capability invocation and always returns a well-formed
// result. It never returns an error and never panics.
func (r *TaskRunner) Run(ctx context.Context, desc capstan.CapabilityDescriptor, req capstan.Request, upstream map[string]capstan.CapabilityResult) capstan.CapabilityResult {
	started := time.Now()

	key := Fingerprint(desc.Name, req.Text)
	var embedding []float64
	if r.cache != nil && r.embed != nil {
		embedding = r.embed(desc.Name + " " + req.Text)
	}
	if r.cache != nil {
		if data, ok := r.cacheLookup(ctx, key, embedding); ok {
			log.Printf("Cache hit (capability: %s, request_id: %s)", desc.Name, req.ID)
			return capstan.CapabilityResult{
				Capability: desc.Name,
				Success:    true,
				Data:       data,
				Latency:    time.Since(started),
			}
		}
	}

	args, err := r.resolveBindings(desc, upstream)
	if err != nil {
		return failed(desc.Name, fmt.Sprintf("binding resolution failed: %v", err), started)
	}

	input := capstan.CapabilityInput{Request: req, Args: args, Upstream: upstream}
	if err := desc.Capability.Validate(input); err != nil {
		return failed(desc.Name, fmt.Sprintf("input validation failed: %v", err), started)
	}

	invokeCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type outcome struct {
		data map[string]interface{}
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("capability panicked: %v", rec)}
			}
		}()
		data, err := desc.Capability.Execute(invokeCtx, input)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return failed(desc.Name, "timeout", started)
			}
			if errors.Is(out.err, context.Canceled) {
				return failed(desc.Name, "cancelled", started)
			}
			return failed(desc.Name, out.err.Error(), started)
		}
		if out.data == nil {
			return failed(desc.Name, "capability returned no data", started)
		}
		if r.cache != nil {
			var writeErr error
			if len(embedding) > 0 {
				writeErr = r.cache.SetWithEmbedding(ctx, key, out.data, embedding, r.cacheTTL)
			} else {
				writeErr = r.cache.Set(ctx, key, out.data, r.cacheTTL)
			}
			if writeErr != nil {
				log.Printf("Cache write failed (capability: %s): %v", desc.Name, writeErr)
			}
		}
		return capstan.CapabilityResult{
			Capability: desc.Name,
			Success:    true,
			Data:       out.data,
			Latency:    time.Since(started),
		}
	case <-invokeCtx.Done():
		// The invocation goroutine is abandoned; it drains into the buffered
		// channel whenever it finishes.
		if errors.Is(invokeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return failed(desc.Name, "timeout", started)
		}
		return failed(desc.Name, "cancelled", started)
	}
}

// cacheLookup tries the exact key first. On a miss, with an embedder
// configured, it falls back to the nearest stored entry above the similarity
// threshold.
func (r *TaskRunner) cacheLookup(ctx context.Context, key string, embedding []float64) (map[string]interface{}, bool) {
	if cached, err := r.cache.Get(ctx, key); err == nil {
		if data, ok := cached.(map[string]interface{}); ok {
			return data, true
		}
	}
	if len(embedding) == 0 {
		return nil, false
	}
	cached, err := r.cache.FindSimilar(ctx, embedding, r.similarityThreshold)
	if err != nil {
		return nil, false
	}
	data, ok := cached.(map[string]interface{})
	return data, ok
}

func failed(capability, message string, started time.Time) capstan.CapabilityResult {
	return capstan.CapabilityResult{
		Capability: capability,
		Success:    false,
		Error:      message,
		Latency:    time.Since(started),
	}
}

// resolveBindings evaluates the descriptor's binding expressions against the
// upstream results. A bare reference like "$lookup.symbol" resolves directly;
// anything richer goes through govaluate with variable substitution.
func (r *TaskRunner) resolveBindings(desc capstan.CapabilityDescriptor, upstream map[string]capstan.CapabilityResult) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(desc.Bindings))
	for name, expr := range desc.Bindings {
		if !strings.Contains(expr, "$") {
			args[name] = expr
			continue
		}
		value, err := evaluateBinding(expr, upstream)
		if err != nil {
			return nil, fmt.Errorf("argument '%s': %w", name, err)
		}
		args[name] = value
	}
	return args, nil
}

// evaluateBinding substitutes $dep accessors with values from upstream
// results and evaluates the rest with govaluate. Missing dependencies and
// missing fields resolve to nil rather than failing the whole invocation.
func evaluateBinding(expr string, upstream map[string]capstan.CapabilityResult) (interface{}, error) {
	variables := map[string]interface{}{}
	replaced := bindingVarPattern.ReplaceAllStringFunc(expr, func(matched string) string {
		matches := bindingVarPattern.FindStringSubmatch(matched)
		depName := matches[1]
		accessors := bindingAccessorPattern.FindAllString(matches[2], -1)

		varName := depName
		for _, acc := range accessors {
			varName += strings.NewReplacer(".", "_", "[", "_", "]", "").Replace(acc)
		}

		depResult, ok := upstream[depName]
		if !ok || !depResult.Success {
			variables[varName] = nil
			return varName
		}

		var val interface{} = depResult.Data
		for _, acc := range accessors {
			switch {
			case strings.HasPrefix(acc, "."):
				m, ok := val.(map[string]interface{})
				if !ok {
					variables[varName] = nil
					return varName
				}
				val, ok = m[acc[1:]]
				if !ok {
					variables[varName] = nil
					return varName
				}
			case strings.HasPrefix(acc, "["):
				idx, err := strconv.Atoi(acc[1 : len(acc)-1])
				if err != nil {
					variables[varName] = nil
					return varName
				}
				arr, ok := val.([]interface{})
				if !ok || idx < 0 || idx >= len(arr) {
					variables[varName] = nil
					return varName
				}
				val = arr[idx]
			}
		}
		variables[varName] = val
		return varName
	})

	// A bare reference needs no expression machinery.
	if val, ok := variables[strings.TrimSpace(replaced)]; ok {
		return val, nil
	}

	evalExpr, err := govaluate.NewEvaluableExpressionWithFunctions(replaced, whitelistedFunctions())
	if err != nil {
		return nil, fmt.Errorf("failed to parse binding expression '%s': %w", expr, err)
	}
	result, err := evalExpr.Evaluate(variables)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate binding expression '%s': %w", expr, err)
	}
	return result, nil
}
