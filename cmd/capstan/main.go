package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/solightly/capstan"
	"github.com/solightly/capstan/internal/aggregator"
	"github.com/solightly/capstan/internal/cache"
	"github.com/solightly/capstan/internal/capabilities"
	"github.com/solightly/capstan/internal/executor"
	"github.com/solightly/capstan/internal/planner"
	"github.com/solightly/capstan/internal/profiler"
	"github.com/solightly/capstan/internal/scorer"
)

func main() {
	policyPath := flag.String("policy", "", "path to a YAML policy file (defaults apply when empty)")
	timeout := flag.Duration("timeout", 45*time.Second, "total request deadline")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: capstan [-policy file.yaml] [-timeout 45s] <question>")
		os.Exit(2)
	}

	policy := capstan.DefaultPolicy()
	if *policyPath != "" {
		loaded, err := capstan.LoadPolicy(*policyPath)
		if err != nil {
			log.Fatalf("Failed to load policy: %v", err)
		}
		policy = loaded
	}

	config := capstan.DefaultConfig()
	config.RequestDeadline = *timeout

	registry := capstan.NewRegistry()
	// No knowledge store or reasoning engine on the CLI; those capabilities
	// degrade to their canned behavior.
	for _, desc := range capabilities.Setup(nil, nil) {
		if err := registry.Register(desc); err != nil {
			log.Fatalf("Failed to register capability: %v", err)
		}
	}

	resultCache := cache.New(config.CacheTTL)
	runner := executor.NewTaskRunner(resultCache, config.InvocationTimeout, config.CacheTTL,
		executor.WithSimilarityLookup(func(text string) []float64 {
			return cache.HashEmbedding(text, 64)
		}, 0.9))

	orch, err := capstan.New(
		capstan.WithConfig(config),
		capstan.WithPolicy(policy),
		capstan.WithRegistry(registry),
		capstan.WithProfiler(profiler.New(policy)),
		capstan.WithPlanner(planner.New(policy)),
		capstan.WithExecutor(executor.New(runner, executor.WithMaxWorkers(config.MaxConcurrentInvocations))),
		capstan.WithAggregator(aggregator.New(policy, registry)),
		capstan.WithScorer(scorer.New(policy)),
	)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}
	defer orch.Close()

	resp, err := orch.Ask(context.Background(), query)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}

	fmt.Println(resp.Answer.Text)
	fmt.Println()
	fmt.Printf("confidence: %.2f (%s)", resp.Confidence.Overall, resp.Confidence.Grade)
	if resp.Degraded {
		fmt.Printf("  [degraded]")
	}
	fmt.Println()
	if len(resp.Answer.Sources) > 0 {
		fmt.Printf("sources: %s\n", strings.Join(resp.Answer.Sources, ", "))
	}
}
