// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/fenceline-dev/fenceline/lib/sealed"
)

func TestLoadKeychainPlainHex(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "master.key")
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	keychain, err := loadKeychain(keyPath, "")
	if err != nil {
		t.Fatalf("loading keychain: %v", err)
	}
	keychain.Close()
}

func TestLoadKeychainSealed(t *testing.T) {
	dir := t.TempDir()

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	identityPath := filepath.Join(dir, "operator.identity")
	if err := os.WriteFile(identityPath, keypair.PrivateKey.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0xA0 + i)
	}
	payload, err := sealed.Seal([]byte(hex.EncodeToString(key)), []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	sealedPath := filepath.Join(dir, "master.key.sealed")
	if err := os.WriteFile(sealedPath, []byte(payload+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	keychain, err := loadKeychain(sealedPath, identityPath)
	if err != nil {
		t.Fatalf("loading sealed keychain: %v", err)
	}
	keychain.Close()

	// The wrong identity must not unseal the key.
	stranger, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer stranger.Close()
	strangerPath := filepath.Join(dir, "stranger.identity")
	if err := os.WriteFile(strangerPath, stranger.PrivateKey.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadKeychain(sealedPath, strangerPath); err == nil {
		t.Fatal("sealed master key opened with the wrong identity")
	}
}

func TestLoadKeychainRejectsBadHex(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "master.key")
	if err := os.WriteFile(keyPath, []byte("not hex at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadKeychain(keyPath, ""); err == nil {
		t.Fatal("non-hex master key accepted")
	}
}
