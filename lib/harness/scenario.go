// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Scenario is one adversarial probe. Run returns nil when the server
// held the line and an error describing the breach when it did not.
type Scenario struct {
	// Name identifies the scenario in reports.
	Name string

	// Class groups scenarios by attack family.
	Class string

	// Run executes the probe against the prepared environment.
	Run func(ctx context.Context, env *Env) error
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario Scenario
	Err      error
	Duration time.Duration
}

// Passed reports whether the server withstood the scenario.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Tenant is a signed-in fixture tenant with the resources the setup
// phase created for it.
type Tenant struct {
	Fixture FixtureTenant
	Client  *Client

	// Records maps fixture codes to the created records.
	Records map[string]Record
}

// Env is the prepared attack surface: every fixture tenant signed in
// and seeded. Scenarios read it; only token-misuse scenarios mutate
// client state, and they restore it.
type Env struct {
	BaseURL string
	HTTP    *http.Client
	Tenants []*Tenant
	Logger  *slog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// BaseURL is the target server, e.g. "http://127.0.0.1:8472".
	// Required.
	BaseURL string

	// Fixture declares tenants and seed data. Required.
	Fixture *Fixture

	// HTTPClient may be nil for http.DefaultClient.
	HTTPClient *http.Client

	// Logger is required.
	Logger *slog.Logger
}

// Runner seeds the environment and executes scenarios against it.
type Runner struct {
	baseURL string
	fixture *Fixture
	http    *http.Client
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(config RunnerConfig) *Runner {
	if config.BaseURL == "" {
		panic("harness.Runner: BaseURL is required")
	}
	if config.Fixture == nil {
		panic("harness.Runner: Fixture is required")
	}
	if config.Logger == nil {
		panic("harness.Runner: Logger is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Runner{
		baseURL: config.BaseURL,
		fixture: config.Fixture,
		http:    httpClient,
		logger:  config.Logger,
	}
}

// Setup signs in every fixture tenant and creates its records,
// entries, and blobs through the public API. Re-running against a
// server that already holds the fixture is fine: conflicts on records
// and blobs are treated as "already seeded".
func (r *Runner) Setup(ctx context.Context) (*Env, error) {
	env := &Env{
		BaseURL: r.baseURL,
		HTTP:    r.http,
		Logger:  r.logger,
	}

	for _, fixtureTenant := range r.fixture.Tenants {
		client := NewClient(r.baseURL, r.http)
		if err := client.SignIn(ctx, fixtureTenant.Login, fixtureTenant.Secret); err != nil {
			return nil, fmt.Errorf("signing in %q (is the principal provisioned?): %w", fixtureTenant.Login, err)
		}

		tenant := &Tenant{
			Fixture: fixtureTenant,
			Client:  client,
			Records: make(map[string]Record),
		}

		for _, fixtureRecord := range fixtureTenant.Records {
			record, err := r.seedRecord(ctx, client, fixtureRecord)
			if err != nil {
				return nil, fmt.Errorf("seeding record %q for %q: %w", fixtureRecord.Code, fixtureTenant.Login, err)
			}
			tenant.Records[record.Code] = record
		}

		env.Tenants = append(env.Tenants, tenant)
		r.logger.Info("tenant seeded",
			"login", fixtureTenant.Login,
			"records", len(tenant.Records))
	}

	return env, nil
}

// seedRecord creates one fixture record with its entries and blobs,
// reusing an existing record on conflict.
func (r *Runner) seedRecord(ctx context.Context, client *Client, fixtureRecord FixtureRecord) (Record, error) {
	record, err := client.CreateRecord(ctx, fixtureRecord.Code, fixtureRecord.Label)
	if IsStatus(err, http.StatusConflict) {
		// Already seeded by a previous run. The code is unique, so
		// the listing yields exactly the row we want. If the
		// code belongs to another tenant the list comes back empty,
		// which is a real setup failure.
		existing, listErr := client.ListRecords(ctx, fixtureRecord.Code, "")
		if listErr != nil {
			return Record{}, listErr
		}
		if len(existing) != 1 {
			return Record{}, fmt.Errorf("code %q is taken by another tenant", fixtureRecord.Code)
		}
		record, err = existing[0], nil
	}
	if err != nil {
		return Record{}, err
	}

	for _, fixtureEntry := range fixtureRecord.Entries {
		if _, err := client.CreateEntry(ctx, record.ID, fixtureEntry.BlobKey, fixtureEntry.Note); err != nil {
			return Record{}, fmt.Errorf("creating entry: %w", err)
		}
	}
	for _, fixtureBlob := range fixtureRecord.Blobs {
		_, err := client.PutBlob(ctx, fixtureBlob.Key, []byte(fixtureBlob.Content))
		if err != nil && !IsStatus(err, http.StatusConflict) {
			return Record{}, fmt.Errorf("uploading blob %q: %w", fixtureBlob.Key, err)
		}
	}
	return record, nil
}

// Run executes the scenarios in order and returns one result each.
// Scenario errors are breaches, not run failures; Run only returns an
// error when the environment itself breaks.
func (r *Runner) Run(ctx context.Context, env *Env, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, scenario := range scenarios {
		start := time.Now()
		err := scenario.Run(ctx, env)
		duration := time.Since(start)

		if err != nil {
			r.logger.Error("scenario failed",
				"class", scenario.Class,
				"scenario", scenario.Name,
				"error", err)
		} else {
			r.logger.Info("scenario held",
				"class", scenario.Class,
				"scenario", scenario.Name,
				"duration", duration)
		}
		results = append(results, Result{Scenario: scenario, Err: err, Duration: duration})
	}
	return results
}

// breach builds the error a scenario returns when an adversarial
// request was not refused the way the policy demands.
func breach(format string, args ...any) error {
	return fmt.Errorf("BREACH: "+format, args...)
}

// expectNotFound asserts the uniform denial. Any outcome other than a
// 404 is a breach: a success leaks data, and any other status leaks
// the existence distinction.
func expectNotFound(err error, what string) error {
	if err == nil {
		return breach("%s succeeded", what)
	}
	if !IsStatus(err, http.StatusNotFound) {
		return breach("%s returned %v, want uniform not-found", what, err)
	}
	return nil
}

// expectUnauthorized asserts credential rejection.
func expectUnauthorized(err error, what string) error {
	if err == nil {
		return breach("%s succeeded", what)
	}
	if !IsStatus(err, http.StatusUnauthorized) {
		return breach("%s returned %v, want 401", what, err)
	}
	return nil
}

// collectBreaches joins the non-nil errors from a set of probes.
func collectBreaches(errs ...error) error {
	return errors.Join(errs...)
}
