// Package capabilities provides the built-in capability set: simulated data
// feeds wired through fallback chains, a knowledge lookup, a dependent
// analysis stage, a series visualizer, and the default responder.
package capabilities

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solightly/capstan"
	"github.com/solightly/capstan/internal/adapters"
	"github.com/solightly/capstan/internal/aggregator"
	"github.com/solightly/capstan/internal/executor"
)

// sparklineLevels renders a numeric series as a compact trend glyph.
var sparklineLevels = []rune("▁▂▃▄▅▆▇█")

// Setup creates the built-in capability descriptors. cache, knowledge, and
// generator may each be nil; the affected capabilities degrade to canned
// behavior instead of failing.
func Setup(knowledge capstan.KnowledgeStore, generator capstan.Generator) []capstan.CapabilityDescriptor {
	return []capstan.CapabilityDescriptor{
		{
			Name:     "lookup",
			Priority: 1,
			Weight:   0.30,
			Capability: adapters.NewGoCapabilityAdapter(
				"lookup",
				performLookup,
				adapters.WithDescription("Fetches the current value for the subject of the request, with feed fallback."),
			),
		},
		{
			Name:     "news",
			Priority: 3,
			Weight:   0.15,
			Capability: adapters.NewGoCapabilityAdapter(
				"news",
				fetchNews,
				adapters.WithDescription("Races two headline feeds and returns whichever answers first."),
			),
		},
		{
			Name:      "analysis",
			DependsOn: []string{"lookup"},
			Priority:  2,
			Weight:    0.25,
			Bindings:  map[string]string{"subject": "$lookup.symbol", "series": "$lookup.series"},
			Capability: adapters.NewGoCapabilityAdapter(
				"analysis",
				analyzeSeries,
				adapters.WithDescription("Derives trend and spread statistics from the lookup series."),
				adapters.WithArguments(map[string]string{
					"subject": "Subject resolved from the lookup result",
					"series":  "Numeric series resolved from the lookup result",
				}),
			),
		},
		{
			Name:     "knowledge",
			Priority: 4,
			Weight:   0.15,
			Capability: adapters.NewGoCapabilityAdapter(
				"knowledge",
				knowledgeCapability(knowledge),
				adapters.WithDescription("Answers background questions from the knowledge store."),
			),
		},
		{
			Name:      "visualize",
			DependsOn: []string{"lookup"},
			Priority:  5,
			Weight:    0.05,
			Bindings:  map[string]string{"series": "$lookup.series"},
			Capability: adapters.NewGoCapabilityAdapter(
				"visualize",
				renderSparkline,
				adapters.WithDescription("Renders the lookup series as a text sparkline."),
			),
		},
		{
			Name:     "respond",
			Priority: 10,
			Weight:   0.05,
			Capability: adapters.NewGoCapabilityAdapter(
				"respond",
				responder(generator),
				adapters.WithDescription("Answers directly, via the reasoning engine when configured."),
			),
		},
	}
}

// performLookup resolves the request subject through a two-feed sequential
// fallback chain.
func performLookup(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	symbol := extractSubject(input.Request.Text)

	outcome := executor.RunWithFallback(ctx, []executor.Source{
		{Name: "primary_feed", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return simulateFeed(ctx, symbol, 30*time.Millisecond, 0.85)
		}},
		{Name: "secondary_feed", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return simulateFeed(ctx, symbol, 60*time.Millisecond, 0.98)
		}},
	}, input.Args)

	if !outcome.Success {
		return nil, fmt.Errorf("all lookup feeds failed: %s", strings.Join(outcome.Errors, "; "))
	}

	feed := outcome.Data.(map[string]interface{})
	feed["source"] = outcome.Source
	return feed, nil
}

// simulateFeed stands in for an external quote feed. Deterministic series
// per symbol, small latency, and a tunable success rate.
func simulateFeed(ctx context.Context, symbol string, latency time.Duration, successRate float64) (interface{}, error) {
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if rand.Float64() > successRate {
		return nil, fmt.Errorf("feed unavailable")
	}

	seed := int64(0)
	for _, r := range symbol {
		seed = seed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed))
	series := make([]interface{}, 8)
	value := 50 + rng.Float64()*100
	for i := range series {
		value += rng.Float64()*10 - 5
		series[i] = value
	}
	current := series[len(series)-1].(float64)

	return map[string]interface{}{
		"output": fmt.Sprintf("Current value for %s: %.2f", symbol, current),
		"symbol": symbol,
		"value":  current,
		"series": series,
	}, nil
}

// fetchNews races two headline feeds; the first valid response wins.
func fetchNews(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	subject := extractSubject(input.Request.Text)

	outcome := executor.RunParallel(ctx, []executor.Source{
		{Name: "wire_feed", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return simulateHeadlines(ctx, subject, "wire", 40*time.Millisecond)
		}},
		{Name: "digest_feed", Run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return simulateHeadlines(ctx, subject, "digest", 70*time.Millisecond)
		}},
	}, input.Args)

	if !outcome.Success {
		return nil, fmt.Errorf("all news feeds failed: %s", strings.Join(outcome.Errors, "; "))
	}

	records := outcome.Data.([]interface{})
	lines := make([]string, 0, len(records))
	headlines := make([]interface{}, 0, len(records))
	for _, r := range records {
		record, _ := r.(string)
		fields := aggregator.Decode(record, map[string]string{
			"headline":  "untitled item",
			"source":    outcome.Source,
			"published": "recently",
		})
		lines = append(lines, fmt.Sprintf("- %s (%s, %s)", fields["headline"], fields["source"], fields["published"]))
		headlines = append(headlines, fields["headline"])
	}
	return map[string]interface{}{
		"output":    fmt.Sprintf("Latest on %s:\n%s", subject, strings.Join(lines, "\n")),
		"headlines": headlines,
		"source":    outcome.Source,
	}, nil
}

// simulateHeadlines stands in for an external headline feed. Each item comes
// back as a loose "key: value" record the way wire feeds deliver them.
func simulateHeadlines(ctx context.Context, subject, feed string, latency time.Duration) (interface{}, error) {
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	published := time.Now().Format("2006-01-02")
	return []interface{}{
		fmt.Sprintf("headline: activity around %s picked up this week\nsource: %s\npublished: %s", subject, feed, published),
		fmt.Sprintf("headline: analysts split on the outlook for %s\nsource: %s\npublished: %s", subject, feed, published),
	}, nil
}

// analyzeSeries derives direction and spread from the numeric series bound
// from the lookup result.
func analyzeSeries(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	series, err := floatSeries(input.Args["series"])
	if err != nil {
		return nil, fmt.Errorf("analysis needs a numeric series from lookup: %w", err)
	}

	subject, _ := input.Args["subject"].(string)
	if subject == "" {
		subject = extractSubject(input.Request.Text)
	}

	first, last := series[0], series[len(series)-1]
	low, high := series[0], series[0]
	for _, v := range series {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}

	direction := "flat"
	change := 0.0
	if first != 0 {
		change = (last - first) / first * 100
	}
	switch {
	case change > 1:
		direction = "rising"
	case change < -1:
		direction = "falling"
	}

	return map[string]interface{}{
		"output": fmt.Sprintf("%s is %s: %.2f%% over the observed window (range %.2f to %.2f).",
			subject, direction, change, low, high),
		"direction": direction,
		"change":    change,
		"low":       low,
		"high":      high,
	}, nil
}

// knowledgeCapability answers background questions. With a store configured
// it fans two sub-queries out concurrently and merges the hits; without one
// it degrades to a canned acknowledgment.
func knowledgeCapability(store capstan.KnowledgeStore) adapters.CapabilityFunc {
	return func(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
		if store == nil {
			return map[string]interface{}{
				"output": fmt.Sprintf("No knowledge store is configured; cannot expand on %q beyond the other findings.",
					extractSubject(input.Request.Text)),
				"hits": []interface{}{},
			}, nil
		}

		queries := []string{
			input.Request.Text,
			"background: " + extractSubject(input.Request.Text),
		}

		results := make([][]capstan.Hit, len(queries))
		g, gctx := errgroup.WithContext(ctx)
		for i, q := range queries {
			i, q := i, q
			g.Go(func() error {
				hits, err := store.Search(gctx, q, 3)
				if err != nil {
					return fmt.Errorf("query %q: %w", q, err)
				}
				results[i] = hits
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var lines []string
		var hits []interface{}
		seen := map[string]bool{}
		for _, batch := range results {
			for _, hit := range batch {
				if seen[hit.Text] {
					continue
				}
				seen[hit.Text] = true
				lines = append(lines, "- "+hit.Text)
				hits = append(hits, map[string]interface{}{"text": hit.Text, "score": hit.Score})
			}
		}
		if len(lines) == 0 {
			return map[string]interface{}{
				"output": "The knowledge store returned no relevant background for this request.",
				"hits":   []interface{}{},
			}, nil
		}
		return map[string]interface{}{
			"output": "Background:\n" + strings.Join(lines, "\n"),
			"hits":   hits,
		}, nil
	}
}

// renderSparkline turns the bound numeric series into a one-line trend glyph.
func renderSparkline(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
	series, err := floatSeries(input.Args["series"])
	if err != nil {
		return nil, fmt.Errorf("visualize needs a numeric series from lookup: %w", err)
	}

	low, high := series[0], series[0]
	for _, v := range series {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}

	var b strings.Builder
	for _, v := range series {
		idx := 0
		if high > low {
			idx = int((v - low) / (high - low) * float64(len(sparklineLevels)-1))
		}
		b.WriteRune(sparklineLevels[idx])
	}

	return map[string]interface{}{
		"output":    fmt.Sprintf("Trend: %s (%.2f to %.2f)", b.String(), low, high),
		"sparkline": b.String(),
	}, nil
}

// responder is the default capability: engine-backed prose when a generator
// is configured, a canned echo otherwise.
func responder(generator capstan.Generator) adapters.CapabilityFunc {
	return func(ctx context.Context, input capstan.CapabilityInput) (map[string]interface{}, error) {
		if generator != nil {
			text, err := generator.Generate(ctx, input.Request.Text)
			if err == nil && strings.TrimSpace(text) != "" {
				return map[string]interface{}{"output": strings.TrimSpace(text)}, nil
			}
			if err != nil {
				log.Printf("Generator failed, using canned response: %v", err)
			}
		}
		return map[string]interface{}{
			"output": fmt.Sprintf("Acknowledged: %q. No specialized capability matched this request, so only a direct response is available.",
				input.Request.Text),
		}, nil
	}
}

// extractSubject pulls a crude subject token out of the request: the longest
// capitalized or all-caps word, falling back to the longest word.
func extractSubject(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	best := ""
	bestUpper := ""
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if w == strings.ToUpper(w) && len(w) > len(bestUpper) {
			bestUpper = w
		}
		if len(w) > len(best) {
			best = w
		}
	}
	if bestUpper != "" {
		return bestUpper
	}
	if best != "" {
		return best
	}
	return "the request"
}

// floatSeries coerces the loosely typed bound series into []float64.
func floatSeries(raw interface{}) ([]float64, error) {
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("expected a non-empty series, got %T", raw)
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		default:
			return nil, fmt.Errorf("series element is %T, expected a number", item)
		}
	}
	return out, nil
}
