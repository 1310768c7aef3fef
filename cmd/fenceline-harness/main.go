// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/fenceline-dev/fenceline/lib/harness"
	"github.com/fenceline-dev/fenceline/lib/service"
	"github.com/fenceline-dev/fenceline/lib/version"
)

func main() {
	breached, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if breached {
		os.Exit(1)
	}
}

func run() (breached bool, err error) {
	var (
		baseURL     string
		fixturePath string
		timeout     time.Duration
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("fenceline-harness", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "base-url", "http://127.0.0.1:8472", "target server")
	flagSet.StringVar(&fixturePath, "fixtures", "", "JSONC fixture file (built-in two-tenant fixture when empty)")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "overall run deadline")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return false, err
	}

	if showVersion {
		fmt.Printf("fenceline-harness %s\n", version.Info())
		return false, nil
	}

	fixture := harness.DefaultFixture()
	if fixturePath != "" {
		fixture, err = harness.LoadFixture(fixturePath)
		if err != nil {
			return false, err
		}
	}

	logger := service.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := harness.NewRunner(harness.RunnerConfig{
		BaseURL:    baseURL,
		Fixture:    fixture,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	})

	env, err := runner.Setup(ctx)
	if err != nil {
		return false, fmt.Errorf("preparing the attack surface: %w", err)
	}

	results := runner.Run(ctx, env, harness.DefaultScenarios())
	return report(os.Stdout, results), nil
}

// report prints the verdict table and returns whether any scenario
// breached.
func report(out io.Writer, results []harness.Result) bool {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "CLASS\tSCENARIO\tVERDICT\tDURATION")

	breached := false
	for _, result := range results {
		verdict := "held"
		if !result.Passed() {
			verdict = "BREACH"
			breached = true
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			result.Scenario.Class,
			result.Scenario.Name,
			verdict,
			result.Duration.Round(time.Millisecond))
	}
	writer.Flush()

	if breached {
		fmt.Fprintln(out)
		for _, result := range results {
			if !result.Passed() {
				fmt.Fprintf(out, "%s/%s:\n  %v\n", result.Scenario.Class, result.Scenario.Name, result.Err)
			}
		}
	}
	return breached
}
