// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := HashSecret("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$") {
		t.Errorf("encoded hash = %q, want PHC argon2id prefix", encoded)
	}

	ok, err := VerifySecret(encoded, "correct horse battery staple")
	if err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if !ok {
		t.Error("correct secret did not verify")
	}

	ok, err = VerifySecret(encoded, "wrong secret")
	if err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if ok {
		t.Error("wrong secret verified")
	}
}

func TestHashUniqueSalt(t *testing.T) {
	first, err := HashSecret("same secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	second, err := HashSecret("same secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same secret are identical; salt is not random")
	}
}

func TestVerifyMalformed(t *testing.T) {
	malformed := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
	}
	for _, encoded := range malformed {
		if _, err := VerifySecret(encoded, "anything"); err == nil {
			t.Errorf("VerifySecret(%q): expected error", encoded)
		}
	}
}

func TestNewID(t *testing.T) {
	first, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if len(first) != 32 {
		t.Errorf("ID length = %d, want 32 hex chars", len(first))
	}
	second, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if first == second {
		t.Error("two IDs are identical")
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleTenant.Valid() || !RoleOperator.Valid() {
		t.Error("defined roles reported invalid")
	}
	if Role("admin").Valid() {
		t.Error("undefined role reported valid")
	}
}
