// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fenceline-dev/fenceline/lib/blobstore"
	"github.com/fenceline-dev/fenceline/lib/clock"
	"github.com/fenceline-dev/fenceline/lib/config"
	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/policy"
	"github.com/fenceline-dev/fenceline/lib/recordstore"
	"github.com/fenceline-dev/fenceline/lib/sealed"
	"github.com/fenceline-dev/fenceline/lib/secret"
	"github.com/fenceline-dev/fenceline/lib/service"
	"github.com/fenceline-dev/fenceline/lib/sessiontoken"
	"github.com/fenceline-dev/fenceline/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		provision       bool
		login           string
		role            string
		deactivate      string
		generateKeyPath string
		sealKey         bool
		recipients      []string
		showVersion     bool
	)

	flagSet := pflag.NewFlagSet("fenceline-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to fenceline.yaml (overrides FENCELINE_CONFIG)")
	flagSet.BoolVar(&provision, "provision", false, "create a principal and exit (no server)")
	flagSet.StringVar(&login, "login", "", "login for --provision")
	flagSet.StringVar(&role, "role", string(identity.RoleTenant), "role for --provision (tenant or operator)")
	flagSet.StringVar(&deactivate, "deactivate", "", "deactivate the principal with this login and exit")
	flagSet.StringVar(&generateKeyPath, "generate-operator-key", "", "write a new age identity to this path and print its public key")
	flagSet.BoolVar(&sealKey, "seal-master-key", false, "read a hex master key from stdin, seal it to --recipient keys, print the payload")
	flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key for --seal-master-key (repeatable)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("fenceline-server %s\n", version.Info())
		return nil
	}
	if generateKeyPath != "" {
		return generateOperatorKey(generateKeyPath)
	}
	if sealKey {
		return sealMasterKey(recipients)
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	logger := service.NewLogger()
	clk := clock.Real()

	records, err := recordstore.Open(recordstore.Config{
		Path:     cfg.Storage.DatabasePath,
		PoolSize: cfg.Storage.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer records.Close()

	if provision {
		return provisionPrincipal(records, login, identity.Role(role))
	}
	if deactivate != "" {
		return deactivatePrincipal(records, deactivate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publicKey, privateKey, generated, err := sessiontoken.LoadOrGenerateKeypair(cfg.Session.SigningKeyDir)
	if err != nil {
		return fmt.Errorf("loading session signing key: %w", err)
	}
	if generated {
		logger.Info("generated session signing keypair", "dir", cfg.Session.SigningKeyDir)
	}

	var keychain *blobstore.Keychain
	if cfg.Storage.EncryptBlobs {
		keychain, err = loadKeychain(cfg.Storage.MasterKeyFile, cfg.Storage.MasterKeyIdentityFile)
		if err != nil {
			return fmt.Errorf("loading at-rest master key: %w", err)
		}
	}

	blobs, err := blobstore.Open(blobstore.Config{
		Root:     cfg.Storage.BlobRoot,
		Keychain: keychain,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	defer blobs.Close()

	gate := policy.NewGate(policy.GateConfig{
		Resolver: records,
		Logger:   logger,
	})

	revoked := sessiontoken.NewBlacklist()
	go sweepBlacklist(ctx, revoked, clk, cfg.BlacklistSweepInterval())

	handler := newAPIHandler(apiHandlerConfig{
		Records:      records,
		Blobs:        blobs,
		Gate:         gate,
		PublicKey:    publicKey,
		PrivateKey:   privateKey,
		Revoked:      revoked,
		Clock:        clk,
		Logger:       logger,
		SessionTTL:   cfg.SessionTTL(),
		MaxBlobBytes: cfg.Server.MaxBlobBytes,
	})

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Server.ListenAddress,
		Handler:         handler,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
	})

	logger.Info("fenceline-server starting",
		"version", version.Short(),
		"environment", string(cfg.Environment),
		"encrypt_blobs", cfg.Storage.EncryptBlobs)
	return server.Serve(ctx)
}

// loadKeychain reads the hex-encoded 32-byte at-rest master key from
// path ("-" reads stdin) into guarded memory. With identityPath set,
// the key file is an age-sealed payload unsealed with that identity.
func loadKeychain(path, identityPath string) (*blobstore.Keychain, error) {
	hexKey, err := readMasterKey(path, identityPath)
	if err != nil {
		return nil, err
	}
	defer hexKey.Close()

	raw := make([]byte, hex.DecodedLen(hexKey.Len()))
	if _, err := hex.Decode(raw, hexKey.Bytes()); err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}

	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return blobstore.NewKeychain(buffer)
}

// readMasterKey returns the hex-encoded master key, unsealing it
// first when an identity file is configured.
func readMasterKey(path, identityPath string) (*secret.Buffer, error) {
	if identityPath == "" {
		return secret.ReadFromPath(path)
	}

	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading master key identity: %w", err)
	}
	defer identity.Close()

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed master key: %w", err)
	}
	return sealed.Unseal(strings.TrimSpace(string(ciphertext)), identity)
}

// sweepBlacklist drops expired revocations periodically. Revocations
// only need to outlive the tokens they cover.
func sweepBlacklist(ctx context.Context, revoked *sessiontoken.Blacklist, clk clock.Clock, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-clk.After(interval):
			revoked.Cleanup(clk.Now())
		}
	}
}
