// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fenceline-dev/fenceline/lib/blobstore"
	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/recordstore"
	"github.com/fenceline-dev/fenceline/lib/sealed"
	"github.com/fenceline-dev/fenceline/lib/secret"
)

// provisionPrincipal creates a principal directly against the
// database. This is the only way principals come into existence; the
// HTTP surface has no working provisioning route.
func provisionPrincipal(records *recordstore.Store, login string, role identity.Role) error {
	if login == "" {
		return fmt.Errorf("--login is required with --provision")
	}
	if !role.Valid() {
		return fmt.Errorf("--role must be %q or %q", identity.RoleTenant, identity.RoleOperator)
	}

	plaintext, err := promptSecret()
	if err != nil {
		return err
	}
	defer secret.Zero(plaintext)

	principal, err := records.CreatePrincipal(context.Background(), login, string(plaintext), role)
	if err != nil {
		return fmt.Errorf("creating principal: %w", err)
	}

	fmt.Printf("created principal %s (login %q, role %s)\n", principal.ID, principal.Login, principal.Role)
	return nil
}

// deactivatePrincipal clears a principal's active flag. Sessions the
// principal already holds stop working at the next request; the
// principal's records stay in place.
func deactivatePrincipal(records *recordstore.Store, login string) error {
	if err := records.DeactivatePrincipal(context.Background(), login); err != nil {
		return fmt.Errorf("deactivating principal: %w", err)
	}
	fmt.Printf("deactivated principal %q\n", login)
	return nil
}

// promptSecret reads the new principal's secret. On a terminal it
// prompts twice with echo disabled; with piped stdin it reads one
// line without prompting.
func promptSecret() ([]byte, error) {
	stdinFd := int(os.Stdin.Fd())

	if !term.IsTerminal(stdinFd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("reading secret from stdin: %w", err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			return nil, fmt.Errorf("secret is empty")
		}
		return []byte(trimmed), nil
	}

	fmt.Fprint(os.Stderr, "Secret: ")
	first, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm secret: ")
	second, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		secret.Zero(first)
		return nil, fmt.Errorf("reading secret confirmation: %w", err)
	}
	defer secret.Zero(second)

	if subtle.ConstantTimeCompare(first, second) != 1 {
		secret.Zero(first)
		return nil, fmt.Errorf("secrets do not match")
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return first, nil
}

// generateOperatorKey writes a fresh age identity to path and prints
// the public key. The identity file unseals sealed master keys; the
// public key goes into --seal-master-key invocations.
func generateOperatorKey(path string) error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	if _, err := file.Write(keypair.PrivateKey.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}

	fmt.Printf("wrote identity to %s\npublic key: %s\n", path, keypair.PublicKey)
	return nil
}

// sealMasterKey reads a hex-encoded 32-byte master key from stdin,
// seals it to the given recipients, and prints the payload for use
// as storage.master_key_file.
func sealMasterKey(recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("--recipient is required with --seal-master-key")
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}

	hexKey, err := secret.ReadFromPath("-")
	if err != nil {
		return fmt.Errorf("reading master key from stdin: %w", err)
	}
	defer hexKey.Close()

	raw := make([]byte, hex.DecodedLen(hexKey.Len()))
	if _, err := hex.Decode(raw, hexKey.Bytes()); err != nil {
		return fmt.Errorf("master key is not valid hex: %w", err)
	}
	defer secret.Zero(raw)
	if len(raw) != blobstore.KeySize {
		return fmt.Errorf("master key is %d bytes, want %d", len(raw), blobstore.KeySize)
	}

	payload, err := sealed.Seal(hexKey.Bytes(), recipients)
	if err != nil {
		return err
	}
	fmt.Println(payload)
	return nil
}
