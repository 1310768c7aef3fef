// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Fixture declares the tenants and seed data for a validation run.
// The principals themselves must already be provisioned on the target
// server (fenceline-server --provision); the fixture only carries
// the credentials the harness signs in with and the resources it
// creates through the API.
type Fixture struct {
	Tenants []FixtureTenant `json:"tenants"`
}

// FixtureTenant is one tenant identity plus the resources seeded
// under it.
type FixtureTenant struct {
	Login   string          `json:"login"`
	Secret  string          `json:"secret"`
	Records []FixtureRecord `json:"records"`
}

// FixtureRecord is a record to create, with optional entries and
// blobs under it.
type FixtureRecord struct {
	Code    string         `json:"code"`
	Label   string         `json:"label"`
	Entries []FixtureEntry `json:"entries"`
	Blobs   []FixtureBlob  `json:"blobs"`
}

// FixtureEntry is an entry to create under its enclosing record.
type FixtureEntry struct {
	BlobKey string `json:"blob_key"`
	Note    string `json:"note"`
}

// FixtureBlob is a blob to upload. The key must live under the
// enclosing record's code.
type FixtureBlob struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// ParseFixture parses a JSONC fixture document. The format is JSON
// extended with // line comments, /* block comments */, and trailing
// commas.
func ParseFixture(data []byte) (*Fixture, error) {
	stripped := jsonc.ToJSON(data)

	var fixture Fixture
	if err := json.Unmarshal(stripped, &fixture); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	if err := fixture.validate(); err != nil {
		return nil, err
	}
	return &fixture, nil
}

// LoadFixture reads and parses a JSONC fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// DefaultFixture returns the built-in two-tenant fixture used when no
// fixture file is given. The logins must be provisioned with secrets
// matching these values before the run.
func DefaultFixture() *Fixture {
	return &Fixture{
		Tenants: []FixtureTenant{
			{
				Login:  "harness-alpha",
				Secret: "harness-alpha-secret",
				Records: []FixtureRecord{
					{
						Code:    "HX100",
						Label:   "alpha primary",
						Entries: []FixtureEntry{{Note: "seed entry", BlobKey: "HX100/seed.txt"}},
						Blobs:   []FixtureBlob{{Key: "HX100/seed.txt", Content: "alpha seed blob"}},
					},
					{Code: "HX101", Label: "alpha secondary"},
				},
			},
			{
				Login:  "harness-beta",
				Secret: "harness-beta-secret",
				Records: []FixtureRecord{
					{
						Code:  "HX200",
						Label: "beta primary",
						Blobs: []FixtureBlob{{Key: "HX200/seed.txt", Content: "beta seed blob"}},
					},
				},
			},
		},
	}
}

// validate checks the structural requirements the scenarios depend
// on: at least two tenants, each with at least one record.
func (f *Fixture) validate() error {
	if len(f.Tenants) < 2 {
		return fmt.Errorf("fixture needs at least 2 tenants, has %d", len(f.Tenants))
	}
	seen := make(map[string]bool)
	for i, tenant := range f.Tenants {
		if tenant.Login == "" || tenant.Secret == "" {
			return fmt.Errorf("tenant %d: login and secret are required", i)
		}
		if seen[tenant.Login] {
			return fmt.Errorf("duplicate tenant login %q", tenant.Login)
		}
		seen[tenant.Login] = true
		if len(tenant.Records) == 0 {
			return fmt.Errorf("tenant %q needs at least one record", tenant.Login)
		}
	}
	return nil
}
