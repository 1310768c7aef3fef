// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/fenceline-dev/fenceline/lib/identity"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return public, private
}

func testToken(t *testing.T, now time.Time, ttl time.Duration) *Token {
	t.Helper()
	id, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID: %v", err)
	}
	return &Token{
		Subject:   "3b9e6f0a4c1d8e2f3b9e6f0a4c1d8e2f",
		Role:      identity.RoleTenant,
		ID:        id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

func TestMintAndVerify(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()
	token := testToken(t, now, 5*time.Minute)

	bearer, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	verified, err := Verify(public, bearer)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Subject != token.Subject {
		t.Errorf("Subject = %q, want %q", verified.Subject, token.Subject)
	}
	if verified.Role != identity.RoleTenant {
		t.Errorf("Role = %q, want tenant", verified.Role)
	}
	if verified.ID != token.ID {
		t.Errorf("ID = %q, want %q", verified.ID, token.ID)
	}
	if verified.ExpiresAt != token.ExpiresAt {
		t.Errorf("ExpiresAt = %d, want %d", verified.ExpiresAt, token.ExpiresAt)
	}
}

func TestVerifyExpired(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()
	token := testToken(t, now, 5*time.Minute)

	bearer, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Exactly at expiry the token is already invalid.
	_, err = VerifyAt(public, bearer, now.Add(5*time.Minute))
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAt(expiry) error = %v, want ErrTokenExpired", err)
	}

	// One second before expiry it still verifies.
	if _, err := VerifyAt(public, bearer, now.Add(5*time.Minute-time.Second)); err != nil {
		t.Errorf("VerifyAt(expiry-1s): %v", err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	public, private := testKeypair(t)
	token := testToken(t, time.Now(), 5*time.Minute)

	bearer, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(bearer)
	if err != nil {
		t.Fatalf("decoding bearer: %v", err)
	}
	raw[0] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	if _, err := Verify(public, tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(tampered) error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, private := testKeypair(t)
	otherPublic, _ := testKeypair(t)

	bearer, err := Mint(private, testToken(t, time.Now(), 5*time.Minute))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := Verify(otherPublic, bearer); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(wrong key) error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	public, _ := testKeypair(t)

	for _, bearer := range []string{"", "not base64 %%%", base64.RawURLEncoding.EncodeToString([]byte("short"))} {
		if _, err := Verify(public, bearer); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) error = %v, want ErrTokenMalformed", bearer, err)
		}
	}
}

func TestKeypairRoundTrip(t *testing.T) {
	stateDir := t.TempDir()

	public, private, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair: %v", err)
	}
	if !generated {
		t.Error("first call should generate")
	}

	loadedPublic, loadedPrivate, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("second LoadOrGenerateKeypair: %v", err)
	}
	if generated {
		t.Error("second call should load, not generate")
	}
	if !public.Equal(loadedPublic) || !private.Equal(loadedPrivate) {
		t.Error("loaded keypair differs from generated")
	}
}

func TestBlacklist(t *testing.T) {
	blacklist := NewBlacklist()
	now := time.Now()

	if blacklist.IsRevoked("some-id") {
		t.Error("empty blacklist reports revoked")
	}

	blacklist.Revoke("some-id", now.Add(time.Minute))
	if !blacklist.IsRevoked("some-id") {
		t.Error("revoked token not reported")
	}

	// Idempotent revocation.
	blacklist.Revoke("some-id", now.Add(time.Minute))
	if blacklist.Len() != 1 {
		t.Errorf("Len = %d, want 1", blacklist.Len())
	}

	// Cleanup before natural expiry keeps the entry.
	if removed := blacklist.Cleanup(now.Add(30 * time.Second)); removed != 0 {
		t.Errorf("early Cleanup removed %d entries", removed)
	}

	// Cleanup at natural expiry drops it.
	if removed := blacklist.Cleanup(now.Add(time.Minute)); removed != 1 {
		t.Errorf("Cleanup removed %d entries, want 1", removed)
	}
	if blacklist.IsRevoked("some-id") {
		t.Error("entry survived Cleanup")
	}
}
