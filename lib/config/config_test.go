// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fenceline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: development
storage:
  root: /tmp/fenceline-test
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:8472" {
		t.Errorf("ListenAddress = %q, want default", cfg.Server.ListenAddress)
	}
	if cfg.Storage.Root != "/tmp/fenceline-test" {
		t.Errorf("Root = %q", cfg.Storage.Root)
	}
	if cfg.SessionTTL() != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", cfg.SessionTTL())
	}
}

func TestRootVariableExpansion(t *testing.T) {
	path := writeConfig(t, `
environment: development
storage:
  root: /tmp/fenceline-test
  database_path: ${FENCELINE_ROOT}/db/records.db
  blob_root: ${FENCELINE_ROOT}/blobs
session:
  signing_key_dir: ${FENCELINE_ROOT}/keys
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Storage.DatabasePath != "/tmp/fenceline-test/db/records.db" {
		t.Errorf("DatabasePath = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Session.SigningKeyDir != "/tmp/fenceline-test/keys" {
		t.Errorf("SigningKeyDir = %q", cfg.Session.SigningKeyDir)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  listen_address: 127.0.0.1:8472
storage:
  root: /tmp/fenceline-test
production:
  server:
    listen_address: 0.0.0.0:8472
  session:
    ttl: 1h
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8472" {
		t.Errorf("ListenAddress = %q, production override not applied", cfg.Server.ListenAddress)
	}
	if cfg.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL())
	}
	// Sections the override does not mention keep their base values.
	if cfg.Storage.Root != "/tmp/fenceline-test" {
		t.Errorf("Root = %q", cfg.Storage.Root)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
environment: moon-base
server:
  shutdown_timeout: soon
session:
  ttl: "-1h"
storage:
  encrypt_blobs: true
  master_key_identity_file: /etc/fenceline/operator.key
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{
		"invalid environment",
		"shutdown_timeout",
		"session.ttl",
		"master_key_file",
		"master_key_identity_file",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q: %v", want, err)
		}
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("FENCELINE_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without FENCELINE_CONFIG")
	}
}
