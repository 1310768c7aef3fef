// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"log/slog"

	"github.com/fenceline-dev/fenceline/lib/identity"
)

// OwnerResolver resolves a resource to its owning principal. The
// record store implements this; the gate is its only caller.
//
// Each method returns the owner's principal ID and whether the
// resource exists. A non-nil error is a backing-store fault, never a
// policy outcome.
type OwnerResolver interface {
	// OwnerOfRecord resolves a record ID to its owner.
	OwnerOfRecord(ctx context.Context, recordID string) (ownerID string, exists bool, err error)

	// OwnerOfEntry resolves an entry ID to its transitive owner (the
	// owner of the entry's parent record). Ownership is never stored
	// on the entry itself, so this cannot drift from the parent.
	OwnerOfEntry(ctx context.Context, entryID string) (ownerID string, exists bool, err error)

	// OwnerOfCode resolves a record code to its owner. Blob keys
	// derive ownership through this.
	OwnerOfCode(ctx context.Context, code string) (ownerID string, exists bool, err error)
}

// Scope is the mandatory owner constraint for list queries. Only this
// package can construct a non-zero Scope, and the stores refuse the
// zero value, so every bulk listing in the system carries a
// policy-issued owner predicate.
type Scope struct {
	ownerID string
}

// OwnerID returns the principal the scope is pinned to. Empty for the
// zero Scope, which stores reject.
func (s Scope) OwnerID() string {
	return s.ownerID
}

// GateConfig configures a Gate.
type GateConfig struct {
	// Resolver resolves resources to owners. Required.
	Resolver OwnerResolver

	// Logger receives the audit trail: one entry per denial with
	// principal, operation, resource, and reason. Required.
	Logger *slog.Logger
}

// Gate is the authorization decision point. All methods are safe for
// concurrent use; decisions are pure functions of (principal,
// resource ownership) with no cached state.
type Gate struct {
	resolver OwnerResolver
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(config GateConfig) *Gate {
	if config.Resolver == nil {
		panic("policy.Gate: Resolver is required")
	}
	if config.Logger == nil {
		panic("policy.Gate: Logger is required")
	}
	return &Gate{resolver: config.Resolver, logger: config.Logger}
}

// AuthorizeRecord decides whether principalID may perform op on the
// record with the given ID.
func (g *Gate) AuthorizeRecord(ctx context.Context, principalID string, op Operation, recordID string) (Result, error) {
	owner, exists, err := g.resolver.OwnerOfRecord(ctx, recordID)
	if err != nil {
		return Result{}, err
	}
	return g.decide(principalID, op, "record", recordID, owner, exists), nil
}

// AuthorizeEntry decides whether principalID may perform op on the
// entry with the given ID. The entry's owner is its parent record's
// owner.
func (g *Gate) AuthorizeEntry(ctx context.Context, principalID string, op Operation, entryID string) (Result, error) {
	owner, exists, err := g.resolver.OwnerOfEntry(ctx, entryID)
	if err != nil {
		return Result{}, err
	}
	return g.decide(principalID, op, "entry", entryID, owner, exists), nil
}

// AuthorizeBlobKey decides whether principalID may perform op on the
// blob addressed by key. The key's code prefix is parsed first; a
// malformed key denies without any lookup, and a prefix that matches
// no record denies exactly like a foreign prefix.
func (g *Gate) AuthorizeBlobKey(ctx context.Context, principalID string, op Operation, key string) (Result, error) {
	code, _, err := SplitKey(key)
	if err != nil {
		result := Result{Decision: Deny, Reason: ReasonInvalidKey}
		g.audit(principalID, op, "blob", key, result)
		return result, nil
	}

	owner, exists, err := g.resolver.OwnerOfCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	return g.decide(principalID, op, "blob", key, owner, exists), nil
}

// AuthorizePrivileged decides whether a session role may perform a
// provisioning-only operation. In the minimal model no API session
// has a privileged role, so this denies everything except the
// out-of-band operator path, which never holds a session at all.
func (g *Gate) AuthorizePrivileged(principalID string, role identity.Role, op Operation) Result {
	result := Result{Decision: Deny, Reason: ReasonNotPrivileged}
	g.audit(principalID, op, "privileged", string(op), result)
	_ = role // every session role denies; the parameter documents intent
	return result
}

// ListScope returns the owner predicate for bulk listings by
// principalID. The scope is computed here, server-side, on every
// call, never from anything the client sent.
func (g *Gate) ListScope(principalID string) Scope {
	return Scope{ownerID: principalID}
}

// decide applies the ownership predicate and audit-logs denials.
func (g *Gate) decide(principalID string, op Operation, kind, resource, owner string, exists bool) Result {
	var result Result
	switch {
	case !exists:
		result = Result{Decision: Deny, Reason: ReasonUnknownResource}
	case owner != principalID:
		result = Result{Decision: Deny, Reason: ReasonNotOwner, OwnerID: owner}
	default:
		return Result{Decision: Allow, OwnerID: owner}
	}
	g.audit(principalID, op, kind, resource, result)
	return result
}

// audit records a denial with full context. Denials are surfaced to
// callers as uniform not-found; the log is the only place the real
// reason appears.
func (g *Gate) audit(principalID string, op Operation, kind, resource string, result Result) {
	g.logger.Warn("access denied",
		"principal", principalID,
		"operation", string(op),
		"resource_kind", kind,
		"resource", resource,
		"reason", result.Reason.String(),
		"owner", result.OwnerID,
	)
}
