// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package policy

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny means the operation is not permitted.
	Deny Decision = iota

	// Allow means the operation is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why an authorization check was denied. The
// reason is for the audit log only; callers surface every denial as a
// uniform not-found.
type DenyReason int

const (
	// ReasonNotOwner means the resource exists but belongs to a
	// different principal.
	ReasonNotOwner DenyReason = iota

	// ReasonUnknownResource means the resource does not exist. The
	// caller must respond exactly as for ReasonNotOwner.
	ReasonUnknownResource

	// ReasonInvalidKey means a blob key failed syntactic validation
	// before any ownership lookup.
	ReasonInvalidKey

	// ReasonNotPrivileged means a session attempted an operation
	// reserved for out-of-band provisioning.
	ReasonNotPrivileged
)

// String returns a human-readable reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonNotOwner:
		return "resource owned by another principal"
	case ReasonUnknownResource:
		return "no such resource"
	case ReasonInvalidKey:
		return "malformed blob key"
	case ReasonNotPrivileged:
		return "operation reserved for provisioning"
	default:
		return "unknown"
	}
}

// Operation names the action being authorized. Used for audit logging
// and for the privileged-operation check.
type Operation string

const (
	OpRead     Operation = "read"
	OpCreate   Operation = "create"
	OpList     Operation = "list"
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"

	// OpProvision covers principal creation and any other
	// provisioning-only action. No API session is ever allowed it.
	OpProvision Operation = "provision"
)

// Result describes the outcome of an authorization check.
type Result struct {
	// Decision is Allow or Deny.
	Decision Decision

	// Reason describes why the check was denied. Only meaningful
	// when Decision is Deny.
	Reason DenyReason

	// OwnerID is the resolved owner of the resource, when resolution
	// got that far. Recorded in the audit log; never returned to the
	// caller.
	OwnerID string
}

// Allowed is shorthand for Decision == Allow.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}
