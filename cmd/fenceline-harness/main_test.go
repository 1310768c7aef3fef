// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fenceline-dev/fenceline/lib/harness"
)

func TestReport(t *testing.T) {
	results := []harness.Result{
		{
			Scenario: harness.Scenario{Name: "foreign record by id", Class: "direct-reference"},
			Duration: 12 * time.Millisecond,
		},
		{
			Scenario: harness.Scenario{Name: "negated code filter", Class: "filter-inversion"},
			Err:      errors.New("BREACH: inverted filter surfaced foreign record"),
			Duration: 3 * time.Millisecond,
		},
	}

	var out bytes.Buffer
	if !report(&out, results) {
		t.Fatal("report did not flag the breach")
	}

	text := out.String()
	if !strings.Contains(text, "held") || !strings.Contains(text, "BREACH") {
		t.Errorf("verdicts missing from report:\n%s", text)
	}
	if !strings.Contains(text, "inverted filter surfaced foreign record") {
		t.Errorf("breach detail missing from report:\n%s", text)
	}
}

func TestReportAllHeld(t *testing.T) {
	results := []harness.Result{
		{Scenario: harness.Scenario{Name: "a", Class: "c"}},
		{Scenario: harness.Scenario{Name: "b", Class: "c"}},
	}
	var out bytes.Buffer
	if report(&out, results) {
		t.Fatal("clean run reported a breach")
	}
}
