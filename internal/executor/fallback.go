package executor

import (
	"context"
	"fmt"
	"log"
	"reflect"
)

// Source is one data source in a fallback chain: a name for diagnostics and
// a function that fetches from it.
type Source struct {
	Name string
	Run  func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Outcome reports how a fallback chain resolved: which source won, how many
// were attempted, and the error from each source that did not.
type Outcome struct {
	Success  bool
	Data     interface{}
	Source   string
	Attempts int
	Errors   []string
}

// RunWithFallback tries the sources in order and returns the first valid
// result. Unnamed sources get positional names: the first is "primary", the
// rest "fallback_1", "fallback_2" and so on. The chain itself never errors;
// total failure is an unsuccessful Outcome carrying every source's error.
func RunWithFallback(ctx context.Context, sources []Source, args map[string]interface{}) Outcome {
	outcome := Outcome{}
	for i, source := range sources {
		name := sourceName(source, i)
		if ctx.Err() != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, ctx.Err()))
			break
		}
		outcome.Attempts++

		data, err := runSource(ctx, source, args)
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, err))
			log.Printf("Fallback source failed, trying next (source: %s): %v", name, err)
			continue
		}
		if !validResult(data) {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: empty result", name))
			log.Printf("Fallback source returned empty result, trying next (source: %s)", name)
			continue
		}

		outcome.Success = true
		outcome.Data = data
		outcome.Source = name
		return outcome
	}
	return outcome
}

// RunParallel races every source at once and returns the first valid result.
// Losing sources keep running until they finish or the caller's context ends;
// their results are discarded.
func RunParallel(ctx context.Context, sources []Source, args map[string]interface{}) Outcome {
	if len(sources) == 0 {
		return Outcome{}
	}

	type attempt struct {
		name string
		data interface{}
		err  error
	}
	resultCh := make(chan attempt, len(sources))
	for i, source := range sources {
		source, name := source, sourceName(source, i)
		go func() {
			data, err := runSource(ctx, source, args)
			resultCh <- attempt{name: name, data: data, err: err}
		}()
	}

	outcome := Outcome{Attempts: len(sources)}
	for range sources {
		select {
		case a := <-resultCh:
			if a.err != nil {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", a.name, a.err))
				continue
			}
			if !validResult(a.data) {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: empty result", a.name))
				continue
			}
			outcome.Success = true
			outcome.Data = a.data
			outcome.Source = a.name
			return outcome
		case <-ctx.Done():
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("race aborted: %v", ctx.Err()))
			return outcome
		}
	}
	return outcome
}

func sourceName(source Source, index int) string {
	if source.Name != "" {
		return source.Name
	}
	if index == 0 {
		return "primary"
	}
	return fmt.Sprintf("fallback_%d", index)
}

// runSource invokes one source with panic recovery so a crashing source
// counts as a failed attempt rather than killing the chain.
func runSource(ctx context.Context, source Source, args map[string]interface{}) (data interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("source panicked: %v", rec)
		}
	}()
	return source.Run(ctx, args)
}

// validResult rejects nil and empty strings, maps, and slices. Anything else
// non-nil counts as usable data.
func validResult(data interface{}) bool {
	if data == nil {
		return false
	}
	switch v := reflect.ValueOf(data); v.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !v.IsNil()
	default:
		return true
	}
}
