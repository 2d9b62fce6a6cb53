package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"soup/config"
	"soup/internal/adapter/embedding"
	"soup/internal/adapter/store"
	"soup/internal/port"
	"soup/internal/usecase"
)

func main() {
	dataDir := flag.String("dir", ".", "Path to the soup data directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	runs := flag.Int("n", 20, "Search repetitions for latency measurement")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir . -q \"query\"")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding infrastructure (provider connection, phrase store)")
		fmt.Println("  2. Semantic similarity (query vs stored phrases)")
		fmt.Println("  3. Search latency (embedding plus nearest-neighbour scan)")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(cfg, *dataDir, embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening phrase store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := usecase.NewPhraseService(st, st, embedder, usecase.ServiceOptions{Limit: *topK})
	ctx := context.Background()

	fmt.Println("PHRASE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	total, _ := st.Count(ctx)
	fmt.Printf("Phrases stored:   %d\n", total)
	fmt.Printf("Phrases embedded: %d\n", st.ReadyCount())
	fmt.Printf("Model: %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", embedder.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	results, err := svc.Search(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No embedded phrases to compare against.")
		return
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		totalScore += r.Score

		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %3d%%  %s\n", i+1, rating, r.Score, r.Percent(), r.Text)
	}

	// the embedding of the query is recomputed on every run
	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := svc.Search(ctx, *query); err != nil {
			fmt.Fprintf(os.Stderr, "Search error on run %d: %v\n", i+1, err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	avgScore := totalScore / float64(len(results))
	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - closely related phrases found")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - few related phrases stored, or a weak model")
	}

	if len(latencies) > 0 {
		fmt.Printf("\nLATENCY (%d runs):\n", len(latencies))
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// openStore opens the configured persistent store. A memory backend holds
// nothing between runs, so there is nothing to benchmark.
func openStore(cfg *config.Config, dir string, embedder port.Embedder) (*store.BoltStore, error) {
	if cfg.Store.Backend != config.BackendBolt {
		return nil, fmt.Errorf("store backend %q keeps no phrases between runs; benchmark needs %q", cfg.Store.Backend, config.BackendBolt)
	}
	path := cfg.StorePath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no phrase store at %s: %w", path, err)
	}
	return store.NewBoltStore(path, store.Options{
		Dimension: embedder.Dimension(),
		Model:     embedder.ModelName(),
	})
}
