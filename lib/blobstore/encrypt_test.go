// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"testing"

	"github.com/fenceline-dev/fenceline/lib/secret"
)

func keychainWithKey(t *testing.T, fill byte) *Keychain {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = fill
	}
	buffer, err := secret.NewFromBytes(key)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	keychain, err := NewKeychain(buffer)
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	t.Cleanup(func() { keychain.Close() })
	return keychain
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	keychain := keychainWithKey(t, 0x42)
	plaintext := []byte("the payload")
	hash := HashContent(plaintext)

	encrypted, err := keychain.encryptBlob(plaintext, "P001/a.txt", hash)
	if err != nil {
		t.Fatalf("encryptBlob: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Error("plaintext visible in ciphertext")
	}

	decrypted, err := keychain.decryptBlob(encrypted, "P001/a.txt", hash)
	if err != nil {
		t.Fatalf("decryptBlob: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("roundtrip mismatch")
	}
}

func TestDecryptRejectsWrongKeyOrContext(t *testing.T) {
	keychain := keychainWithKey(t, 0x42)
	other := keychainWithKey(t, 0x43)
	plaintext := []byte("the payload")
	hash := HashContent(plaintext)

	encrypted, err := keychain.encryptBlob(plaintext, "P001/a.txt", hash)
	if err != nil {
		t.Fatalf("encryptBlob: %v", err)
	}

	// Wrong master key.
	if _, err := other.decryptBlob(encrypted, "P001/a.txt", hash); err == nil {
		t.Error("decryption succeeded under a different master key")
	}

	// Same master key, different blob key: per-blob derivation must
	// make ciphertext unusable at any other key.
	if _, err := keychain.decryptBlob(encrypted, "P001/b.txt", hash); err == nil {
		t.Error("decryption succeeded under a different blob key")
	}

	// Mismatched content hash fails AAD authentication.
	wrongHash := HashContent([]byte("something else"))
	if _, err := keychain.decryptBlob(encrypted, "P001/a.txt", wrongHash); err == nil {
		t.Error("decryption succeeded with mismatched content hash")
	}

	// Tampered ciphertext.
	tampered := bytes.Clone(encrypted)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := keychain.decryptBlob(tampered, "P001/a.txt", hash); err == nil {
		t.Error("decryption succeeded on tampered ciphertext")
	}
}

func TestKeychainRequiresFullSizeKey(t *testing.T) {
	buffer, err := secret.NewFromBytes([]byte("short"))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if _, err := NewKeychain(buffer); err == nil {
		t.Error("short master key accepted")
	}
}
