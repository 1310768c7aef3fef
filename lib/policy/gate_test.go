// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fenceline-dev/fenceline/lib/identity"
)

// fakeResolver serves ownership from in-memory maps. A nil map entry
// means "does not exist"; storeErr simulates a backing-store fault.
type fakeResolver struct {
	records  map[string]string // record ID → owner
	entries  map[string]string // entry ID → owner
	codes    map[string]string // code → owner
	storeErr error
}

func (f *fakeResolver) OwnerOfRecord(_ context.Context, recordID string) (string, bool, error) {
	if f.storeErr != nil {
		return "", false, f.storeErr
	}
	owner, exists := f.records[recordID]
	return owner, exists, nil
}

func (f *fakeResolver) OwnerOfEntry(_ context.Context, entryID string) (string, bool, error) {
	if f.storeErr != nil {
		return "", false, f.storeErr
	}
	owner, exists := f.entries[entryID]
	return owner, exists, nil
}

func (f *fakeResolver) OwnerOfCode(_ context.Context, code string) (string, bool, error) {
	if f.storeErr != nil {
		return "", false, f.storeErr
	}
	owner, exists := f.codes[code]
	return owner, exists, nil
}

func testGate(resolver *fakeResolver) *Gate {
	return NewGate(GateConfig{
		Resolver: resolver,
		Logger:   slog.New(slog.DiscardHandler),
	})
}

func TestAuthorizeRecordOwner(t *testing.T) {
	gate := testGate(&fakeResolver{records: map[string]string{"rec-1": "alice"}})

	result, err := gate.AuthorizeRecord(context.Background(), "alice", OpRead, "rec-1")
	if err != nil {
		t.Fatalf("AuthorizeRecord: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("owner denied: %v", result.Reason)
	}
	if result.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, want alice", result.OwnerID)
	}
}

func TestAuthorizeRecordCrossPrincipal(t *testing.T) {
	gate := testGate(&fakeResolver{records: map[string]string{"rec-1": "alice"}})

	result, err := gate.AuthorizeRecord(context.Background(), "bob", OpRead, "rec-1")
	if err != nil {
		t.Fatalf("AuthorizeRecord: %v", err)
	}
	if result.Allowed() {
		t.Fatal("cross-principal read allowed")
	}
	if result.Reason != ReasonNotOwner {
		t.Errorf("Reason = %v, want ReasonNotOwner", result.Reason)
	}
}

func TestAuthorizeRecordUnknown(t *testing.T) {
	gate := testGate(&fakeResolver{})

	result, err := gate.AuthorizeRecord(context.Background(), "alice", OpRead, "no-such")
	if err != nil {
		t.Fatalf("AuthorizeRecord: %v", err)
	}
	if result.Allowed() {
		t.Fatal("unknown resource allowed")
	}
	if result.Reason != ReasonUnknownResource {
		t.Errorf("Reason = %v, want ReasonUnknownResource", result.Reason)
	}
}

func TestAuthorizeRecordDenialIsRepeatable(t *testing.T) {
	// An unauthorized attempt must produce the same denial every
	// time, never intermittently succeed.
	gate := testGate(&fakeResolver{records: map[string]string{"rec-1": "alice"}})

	for i := 0; i < 10; i++ {
		result, err := gate.AuthorizeRecord(context.Background(), "bob", OpRead, "rec-1")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if result.Allowed() {
			t.Fatalf("attempt %d: denial was not stable", i)
		}
		if result.Reason != ReasonNotOwner {
			t.Fatalf("attempt %d: Reason = %v, want ReasonNotOwner", i, result.Reason)
		}
	}
}

func TestAuthorizeEntryTransitiveOwner(t *testing.T) {
	gate := testGate(&fakeResolver{entries: map[string]string{"entry-1": "alice"}})

	result, err := gate.AuthorizeEntry(context.Background(), "alice", OpRead, "entry-1")
	if err != nil {
		t.Fatalf("AuthorizeEntry: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("transitive owner denied: %v", result.Reason)
	}

	result, err = gate.AuthorizeEntry(context.Background(), "bob", OpRead, "entry-1")
	if err != nil {
		t.Fatalf("AuthorizeEntry: %v", err)
	}
	if result.Allowed() {
		t.Error("cross-principal entry read allowed")
	}
}

func TestAuthorizeBlobKey(t *testing.T) {
	gate := testGate(&fakeResolver{codes: map[string]string{"P001": "alice", "P002": "bob"}})
	ctx := context.Background()

	// Own prefix allows.
	result, err := gate.AuthorizeBlobKey(ctx, "alice", OpDownload, "P001/f.bin")
	if err != nil {
		t.Fatalf("AuthorizeBlobKey: %v", err)
	}
	if !result.Allowed() {
		t.Errorf("own prefix denied: %v", result.Reason)
	}

	// Foreign prefix denies, even though the key was legitimately
	// learned out of band.
	result, err = gate.AuthorizeBlobKey(ctx, "alice", OpDownload, "P002/x.bin")
	if err != nil {
		t.Fatalf("AuthorizeBlobKey: %v", err)
	}
	if result.Allowed() {
		t.Fatal("foreign prefix allowed")
	}
	if result.Reason != ReasonNotOwner {
		t.Errorf("Reason = %v, want ReasonNotOwner", result.Reason)
	}

	// Unknown prefix denies like a foreign one.
	result, err = gate.AuthorizeBlobKey(ctx, "alice", OpUpload, "P999/x.bin")
	if err != nil {
		t.Fatalf("AuthorizeBlobKey: %v", err)
	}
	if result.Allowed() || result.Reason != ReasonUnknownResource {
		t.Errorf("unknown prefix: allowed=%v reason=%v", result.Allowed(), result.Reason)
	}

	// Malformed key denies before any lookup.
	result, err = gate.AuthorizeBlobKey(ctx, "alice", OpUpload, "P001/../P002/x.bin")
	if err != nil {
		t.Fatalf("AuthorizeBlobKey: %v", err)
	}
	if result.Allowed() || result.Reason != ReasonInvalidKey {
		t.Errorf("traversal key: allowed=%v reason=%v", result.Allowed(), result.Reason)
	}
}

func TestAuthorizePrivilegedAlwaysDenies(t *testing.T) {
	gate := testGate(&fakeResolver{})

	for _, role := range []identity.Role{identity.RoleTenant, identity.RoleOperator, identity.Role("admin")} {
		result := gate.AuthorizePrivileged("whoever", role, OpProvision)
		if result.Allowed() {
			t.Errorf("role %q: privileged operation allowed", role)
		}
		if result.Reason != ReasonNotPrivileged {
			t.Errorf("role %q: Reason = %v, want ReasonNotPrivileged", role, result.Reason)
		}
	}
}

func TestBackingStoreFaultIsNotADenial(t *testing.T) {
	storeErr := errors.New("disk on fire")
	gate := testGate(&fakeResolver{storeErr: storeErr})

	_, err := gate.AuthorizeRecord(context.Background(), "alice", OpRead, "rec-1")
	if !errors.Is(err, storeErr) {
		t.Errorf("error = %v, want backing store fault passed through", err)
	}
}

func TestListScope(t *testing.T) {
	gate := testGate(&fakeResolver{})

	scope := gate.ListScope("alice")
	if scope.OwnerID() != "alice" {
		t.Errorf("OwnerID = %q, want alice", scope.OwnerID())
	}

	var zero Scope
	if zero.OwnerID() != "" {
		t.Error("zero Scope has a non-empty owner")
	}
}
