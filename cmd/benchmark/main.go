// ABOUTME: Command-line runner for the anonymization leakage benchmark
// ABOUTME: Runs scenarios through the configured model and writes JSON results
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/harper/anonymizer/benchmarks/leakage"
	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/logging"
)

func main() {
	scenarioID := flag.String("test", "", "Run one scenario (clinical, minutes, journal). If empty, runs all.")
	outputPath := flag.String("output", "benchmark_results.json", "Output path for JSON results")
	verbose := flag.Bool("verbose", false, "Print anonymized output for each scenario")
	flag.Parse()

	_ = godotenv.Load()

	logger := logging.New(os.Stderr, "warn")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	// benchmark runs must not pollute the user's history
	cfg.HistoryEnabled = false
	cfg.Preflight = true

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", "error", err)
	}
	defer a.Close()

	settings, err := a.RunSettings()
	if err != nil {
		logger.Fatal("failed to load examples", "error", err)
	}

	scenarios := leakage.Scenarios()
	if *scenarioID != "" {
		s, ok := leakage.ScenarioByID(*scenarioID)
		if !ok {
			ids := make([]string, 0, len(scenarios))
			for _, s := range scenarios {
				ids = append(ids, s.ID)
			}
			logger.Fatal("unknown scenario", "id", *scenarioID, "valid", strings.Join(ids, ", "))
		}
		scenarios = []leakage.Scenario{s}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("========================================")
	fmt.Println("Anonymizer Leakage Benchmark")
	fmt.Printf("Model: %s/%s\n", cfg.Backend, cfg.ModelLabel())
	fmt.Println("========================================")
	fmt.Println()

	runner := leakage.NewRunner(a.Pipeline, settings, os.Stdout, *verbose)
	results := runner.RunAll(ctx, scenarios)
	summary := leakage.Summarize(results, cfg.Backend, cfg.ModelLabel())

	fmt.Println("========================================")
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println("========================================")

	for _, result := range results {
		fmt.Printf("\n%s: %s\n", result.ScenarioID, result.ScenarioName)
		if result.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", result.ErrorMessage)
		}
		fmt.Printf("  Leakage: %.2f\n", result.LeakageRate)
		fmt.Printf("  Preservation: %.2f\n", result.PreservationRate)
		fmt.Printf("  Headers intact: %v\n", result.HeadersIntact)
		if len(result.FailedSections) > 0 {
			fmt.Printf("  Sections kept original: %v\n", result.FailedSections)
		}
		fmt.Printf("  Status: %s\n", result.Status)
	}

	fmt.Println("\n========================================")
	fmt.Printf("Total Tests: %d\n", summary.TotalTests)
	fmt.Printf("Passed: %d\n", summary.Passed)
	fmt.Printf("Failed: %d\n", summary.Failed)
	fmt.Printf("Mean leakage: %.2f\n", summary.MeanLeakage)
	fmt.Println("========================================")

	if err := leakage.ExportResults(summary, *outputPath); err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Results exported to: %s\n", *outputPath)

	if summary.Failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
