// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Fenceline
// components.
//
// Configuration is loaded from a single file specified by:
//   - FENCELINE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Fenceline.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Storage configures the record database and blob store.
	Storage StorageConfig `yaml:"storage"`

	// Session configures token issuance and revocation.
	Session SessionConfig `yaml:"session"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the host:port the server binds.
	// Default: 127.0.0.1:8472
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// MaxBlobBytes caps an uploaded blob body.
	// Default: 33554432 (32 MiB)
	MaxBlobBytes int64 `yaml:"max_blob_bytes"`
}

// StorageConfig configures the record database and blob store.
type StorageConfig struct {
	// Root is the base directory for Fenceline data.
	Root string `yaml:"root"`

	// DatabasePath is the SQLite database file.
	// Default: ${FENCELINE_ROOT}/records.db
	DatabasePath string `yaml:"database_path"`

	// BlobRoot is the blob store directory.
	// Default: ${FENCELINE_ROOT}/blobs
	BlobRoot string `yaml:"blob_root"`

	// PoolSize is the SQLite connection pool size.
	// Default: 4
	PoolSize int `yaml:"pool_size"`

	// EncryptBlobs enables at-rest blob encryption. When true,
	// MasterKeyFile must point at a 32-byte key file.
	EncryptBlobs bool `yaml:"encrypt_blobs"`

	// MasterKeyFile is the path to the at-rest master key, or "-" to
	// read it from stdin at startup.
	MasterKeyFile string `yaml:"master_key_file"`

	// MasterKeyIdentityFile, when set, marks MasterKeyFile as an
	// age-sealed payload and names the identity file that unseals
	// it. Sealing keeps the raw key off disk entirely.
	MasterKeyIdentityFile string `yaml:"master_key_identity_file"`
}

// SessionConfig configures token issuance and revocation.
type SessionConfig struct {
	// SigningKeyDir is where the Ed25519 session signing keypair
	// lives. A keypair is generated on first start if missing.
	// Default: ${FENCELINE_ROOT}/keys
	SigningKeyDir string `yaml:"signing_key_dir"`

	// TTL is the session token lifetime.
	// Default: 12h
	TTL string `yaml:"ttl"`

	// BlacklistSweepInterval is how often expired revocations are
	// dropped from the in-memory blacklist.
	// Default: 10m
	BlacklistSweepInterval string `yaml:"blacklist_sweep_interval"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback; the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "fenceline")

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8472",
			ShutdownTimeout: "10s",
			MaxBlobBytes:    32 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Root:         defaultRoot,
			DatabasePath: filepath.Join(defaultRoot, "records.db"),
			BlobRoot:     filepath.Join(defaultRoot, "blobs"),
			PoolSize:     4,
		},
		Session: SessionConfig{
			SigningKeyDir:          filepath.Join(defaultRoot, "keys"),
			TTL:                    "12h",
			BlacklistSweepInterval: "10m",
		},
	}
}

// Load loads configuration from the FENCELINE_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults; if FENCELINE_CONFIG is
// not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FENCELINE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FENCELINE_CONFIG environment variable not set; " +
			"set it to the path of your fenceline.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific override
// section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.ListenAddress != "" {
			c.Server.ListenAddress = overrides.Server.ListenAddress
		}
		if overrides.Server.ShutdownTimeout != "" {
			c.Server.ShutdownTimeout = overrides.Server.ShutdownTimeout
		}
		if overrides.Server.MaxBlobBytes != 0 {
			c.Server.MaxBlobBytes = overrides.Server.MaxBlobBytes
		}
	}

	if overrides.Storage != nil {
		if overrides.Storage.Root != "" {
			c.Storage.Root = overrides.Storage.Root
		}
		if overrides.Storage.DatabasePath != "" {
			c.Storage.DatabasePath = overrides.Storage.DatabasePath
		}
		if overrides.Storage.BlobRoot != "" {
			c.Storage.BlobRoot = overrides.Storage.BlobRoot
		}
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
		// EncryptBlobs is a bool, so it is always applied from the
		// override section when present.
		c.Storage.EncryptBlobs = overrides.Storage.EncryptBlobs
		if overrides.Storage.MasterKeyFile != "" {
			c.Storage.MasterKeyFile = overrides.Storage.MasterKeyFile
		}
	}

	if overrides.Session != nil {
		if overrides.Session.SigningKeyDir != "" {
			c.Session.SigningKeyDir = overrides.Session.SigningKeyDir
		}
		if overrides.Session.TTL != "" {
			c.Session.TTL = overrides.Session.TTL
		}
		if overrides.Session.BlacklistSweepInterval != "" {
			c.Session.BlacklistSweepInterval = overrides.Session.BlacklistSweepInterval
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"FENCELINE_ROOT": c.Storage.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["FENCELINE_ROOT"] = c.Storage.Root // Update for dependent paths.

	c.Storage.DatabasePath = expandVars(c.Storage.DatabasePath, vars)
	c.Storage.BlobRoot = expandVars(c.Storage.BlobRoot, vars)
	c.Storage.MasterKeyFile = expandVars(c.Storage.MasterKeyFile, vars)
	c.Session.SigningKeyDir = expandVars(c.Session.SigningKeyDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	}
	if c.Server.MaxBlobBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_blob_bytes must be positive"))
	}

	if c.Storage.Root == "" {
		errs = append(errs, fmt.Errorf("storage.root is required"))
	}
	if c.Storage.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("storage.database_path is required"))
	}
	if c.Storage.BlobRoot == "" {
		errs = append(errs, fmt.Errorf("storage.blob_root is required"))
	}
	if c.Storage.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.pool_size must be positive"))
	}
	if c.Storage.EncryptBlobs && c.Storage.MasterKeyFile == "" {
		errs = append(errs, fmt.Errorf("storage.master_key_file is required when storage.encrypt_blobs is set"))
	}
	if c.Storage.MasterKeyIdentityFile != "" && c.Storage.MasterKeyFile == "" {
		errs = append(errs, fmt.Errorf("storage.master_key_identity_file is set but storage.master_key_file is not"))
	}

	if c.Session.SigningKeyDir == "" {
		errs = append(errs, fmt.Errorf("session.signing_key_dir is required"))
	}
	if ttl, err := time.ParseDuration(c.Session.TTL); err != nil {
		errs = append(errs, fmt.Errorf("session.ttl: %w", err))
	} else if ttl <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive"))
	}
	if _, err := time.ParseDuration(c.Session.BlacklistSweepInterval); err != nil {
		errs = append(errs, fmt.Errorf("session.blacklist_sweep_interval: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SessionTTL returns the parsed session token lifetime. Validate must
// have passed.
func (c *Config) SessionTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Session.TTL)
	if err != nil {
		panic("config: SessionTTL called on unvalidated config: " + err.Error())
	}
	return ttl
}

// ShutdownTimeout returns the parsed graceful shutdown bound.
// Validate must have passed.
func (c *Config) ShutdownTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		panic("config: ShutdownTimeout called on unvalidated config: " + err.Error())
	}
	return timeout
}

// BlacklistSweepInterval returns the parsed revocation sweep
// interval. Validate must have passed.
func (c *Config) BlacklistSweepInterval() time.Duration {
	interval, err := time.ParseDuration(c.Session.BlacklistSweepInterval)
	if err != nil {
		panic("config: BlacklistSweepInterval called on unvalidated config: " + err.Error())
	}
	return interval
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Storage.Root,
		c.Storage.BlobRoot,
		filepath.Dir(c.Storage.DatabasePath),
		c.Session.SigningKeyDir,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
