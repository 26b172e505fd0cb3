// Package aggregator merges capability results into one combined answer,
// with a merge template chosen by the request's complexity level.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/solightly/capstan"
)

// InsufficientInformation is the aggregate body when no capability produced
// usable data. The aggregator never returns an empty answer.
const InsufficientInformation = "No capability produced usable information for this request. " +
	"The question could not be answered from the available sources."

// Extractor pulls the display text out of one capability's payload. Custom
// extractors let capabilities with unusual payload shapes still contribute
// prose to the aggregate.
type Extractor func(result capstan.CapabilityResult) string

// Combiner assembles combined answers. The merge shape escalates with
// complexity: a single best result for simple requests up to a multi-section
// report with cross-cutting synthesis for multi-faceted ones.
type Combiner struct {
	policy     capstan.Policy
	registry   *capstan.Registry
	generator  capstan.Generator
	extractors map[string]Extractor
}

// Option configures a Combiner.
type Option func(*Combiner)

// WithGenerator supplies a reasoning engine used to write the cross-cutting
// synthesis for multi-faceted answers. Without one (or when it fails) the
// synthesis is assembled deterministically.
func WithGenerator(g capstan.Generator) Option {
	return func(c *Combiner) { c.generator = g }
}

// WithExtractor overrides text extraction for one capability's payloads.
func WithExtractor(capability string, fn Extractor) Option {
	return func(c *Combiner) { c.extractors[capability] = fn }
}

// New creates a Combiner over the policy and registry.
func New(policy capstan.Policy, registry *capstan.Registry, opts ...Option) *Combiner {
	c := &Combiner{
		policy:     policy,
		registry:   registry,
		extractors: make(map[string]Extractor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine implements capstan.Aggregator. It always returns a non-empty body:
// total capability failure yields the insufficient-information answer, and a
// panic anywhere in assembly yields a recovered variant of the same. The
// context bounds the generator call on the multi-faceted path.
func (c *Combiner) Combine(ctx context.Context, req capstan.Request, results *capstan.ResultSet, profile capstan.RequestProfile) (answer capstan.CombinedAnswer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Aggregation panicked, returning insufficient-information answer: %v", r)
			answer = capstan.CombinedAnswer{
				Text:         InsufficientInformation,
				Sources:      results.Names(),
				StrategyUsed: "recovered",
			}
		}
	}()

	succeeded, failed := c.partition(results)
	if len(succeeded) == 0 {
		return capstan.CombinedAnswer{
			Text:         InsufficientInformation,
			Sources:      unavailableSources(failed),
			StrategyUsed: "insufficient_information",
		}
	}

	sources := make([]string, 0, len(succeeded)+len(failed))
	for _, r := range succeeded {
		sources = append(sources, r.Capability)
	}
	sources = append(sources, unavailableSources(failed)...)

	var text, strategy string
	switch profile.Level {
	case capstan.ComplexitySimple:
		text = c.simpleBody(succeeded)
		strategy = "single_best"
	case capstan.ComplexityModerate:
		text = c.moderateBody(succeeded)
		strategy = "primary_with_support"
	case capstan.ComplexityComplex:
		text = c.sectionedBody(succeeded, failed)
		strategy = "sectioned_report"
	case capstan.ComplexityMultiFaceted:
		text = c.sectionedBody(succeeded, failed) + "\n\n" + c.synthesis(ctx, req, succeeded)
		strategy = "sectioned_report_with_synthesis"
	default:
		text = c.simpleBody(succeeded)
		strategy = "single_best"
	}

	return capstan.CombinedAnswer{Text: text, Sources: sources, StrategyUsed: strategy}
}

// partition splits results into successes and failures, successes ordered by
// descriptor priority (most important first), name as tie-break.
func (c *Combiner) partition(results *capstan.ResultSet) (succeeded, failed []capstan.CapabilityResult) {
	for _, name := range results.Names() {
		r, _ := results.Get(name)
		if r.Success {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}
	sort.SliceStable(succeeded, func(i, j int) bool {
		pi, pj := c.priority(succeeded[i].Capability), c.priority(succeeded[j].Capability)
		if pi != pj {
			return pi < pj
		}
		return succeeded[i].Capability < succeeded[j].Capability
	})
	return succeeded, failed
}

func (c *Combiner) priority(capability string) int {
	if desc, ok := c.registry.Get(capability); ok {
		return desc.Priority
	}
	return int(^uint(0) >> 1)
}

// simpleBody returns the most important successful result's text, untouched.
func (c *Combiner) simpleBody(succeeded []capstan.CapabilityResult) string {
	return c.extract(succeeded[0])
}

// moderateBody keeps the primary result as the lead and appends at most one
// supporting section.
func (c *Combiner) moderateBody(succeeded []capstan.CapabilityResult) string {
	var b strings.Builder
	b.WriteString(c.extract(succeeded[0]))
	if len(succeeded) > 1 {
		b.WriteString("\n\nSupporting information (")
		b.WriteString(succeeded[1].Capability)
		b.WriteString("):\n")
		b.WriteString(c.excerpt(succeeded[1]))
	}
	return b.String()
}

// sectionedBody builds the complex-request report: primary findings first,
// then one supporting section per remaining result, then a note listing
// anything that failed.
func (c *Combiner) sectionedBody(succeeded, failed []capstan.CapabilityResult) string {
	var b strings.Builder
	b.WriteString("Primary findings (")
	b.WriteString(succeeded[0].Capability)
	b.WriteString("):\n")
	b.WriteString(c.excerpt(succeeded[0]))

	for _, r := range succeeded[1:] {
		b.WriteString("\n\nSupporting findings (")
		b.WriteString(r.Capability)
		b.WriteString("):\n")
		b.WriteString(c.excerpt(r))
	}

	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, r.Capability)
		}
		b.WriteString("\n\nNote: no data was available from ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// synthesis writes the cross-cutting closing section for multi-faceted
// answers. Generator-backed when available; the deterministic fallback still
// references at least two contributing sections.
func (c *Combiner) synthesis(ctx context.Context, req capstan.Request, succeeded []capstan.CapabilityResult) string {
	names := make([]string, 0, len(succeeded))
	for _, r := range succeeded {
		names = append(names, r.Capability)
	}

	if c.generator != nil {
		prompt := fmt.Sprintf(
			"Write a short synthesis connecting the findings below, answering: %s\n\n%s",
			req.Text, c.promptSections(succeeded))
		if text, err := c.generate(ctx, prompt); err == nil && strings.TrimSpace(text) != "" {
			return "Synthesis:\n" + strings.TrimSpace(text)
		} else if err != nil {
			log.Printf("Synthesis generation failed, using deterministic fallback: %v", err)
		}
	}

	return fmt.Sprintf("Synthesis:\nTaken together, the %s findings above address the different facets of the request; see the %s sections for the individual details.",
		strings.Join(names, ", "), strings.Join(names, " and "))
}

// generate runs the generator under the request context. A generator that
// ignores cancellation is abandoned when the context expires; its late result
// drains into the buffered channel.
func (c *Combiner) generate(ctx context.Context, prompt string) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := c.generator.Generate(ctx, prompt)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		return out.text, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Combiner) promptSections(succeeded []capstan.CapabilityResult) string {
	var b strings.Builder
	for _, r := range succeeded {
		b.WriteString(r.Capability)
		b.WriteString(": ")
		b.WriteString(c.excerpt(r))
		b.WriteString("\n")
	}
	return b.String()
}

// extract pulls the display text from a payload, preferring a registered
// extractor, then the conventional "output" key, then a loose key/value dump.
func (c *Combiner) extract(result capstan.CapabilityResult) string {
	if fn, ok := c.extractors[result.Capability]; ok {
		if text := fn(result); text != "" {
			return text
		}
	}
	if out, ok := result.Data["output"].(string); ok && out != "" {
		return out
	}
	return flatten(result.Data)
}

// excerpt is extract truncated to the policy's per-section limit.
func (c *Combiner) excerpt(result capstan.CapabilityResult) string {
	text := c.extract(result)
	runes := []rune(text)
	if len(runes) <= c.policy.ExcerptLimit {
		return text
	}
	return string(runes[:c.policy.ExcerptLimit]) + "…"
}

func flatten(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, data[k]))
	}
	return strings.Join(parts, "\n")
}

func unavailableSources(failed []capstan.CapabilityResult) []string {
	out := make([]string, 0, len(failed))
	for _, r := range failed {
		out = append(out, r.Capability+" (unavailable)")
	}
	return out
}
