// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines principals, the authenticated actors of
// the system, and the credential verification used to resolve a
// login/secret pair to one of them.
//
// A principal's identity (ID, login) is immutable after provisioning;
// only the active flag changes. Principals are provisioned out of
// band by an operator, never through the tenant-facing API.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Role describes what class of operations a principal may attempt.
type Role string

const (
	// RoleTenant is the ordinary owner role: full access to resources
	// the principal owns, nothing else.
	RoleTenant Role = "tenant"

	// RoleOperator is the provisioning role. It exists only for the
	// out-of-band CLI; no operator principal is ever issued a session
	// token, so privileged operations always deny over the API.
	RoleOperator Role = "operator"
)

// Valid reports whether the role is one of the defined constants.
func (r Role) Valid() bool {
	return r == RoleTenant || r == RoleOperator
}

// Principal is an authenticated actor. The zero value is invalid.
type Principal struct {
	// ID is the unique principal identifier, a 16-byte random value
	// in hex. Assigned at provisioning, never reused.
	ID string

	// Login is the unique sign-in identifier. Unlike ID it is chosen
	// by the operator and may be meaningful (an email, a short name).
	Login string

	// Role classifies the principal. Tenant sessions can never reach
	// operator-only operations regardless of transport.
	Role Role

	// Active gates authentication. Deactivated principals keep their
	// rows and blobs but can no longer sign in.
	Active bool

	// CreatedAt is when the principal was provisioned.
	CreatedAt time.Time
}

// Errors returned by authentication.
var (
	// ErrInvalidCredentials is returned for every authentication
	// failure: unknown login, wrong secret, or deactivated principal.
	// One error for all three cases, so a caller cannot probe which
	// logins exist.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

// NewID returns a fresh 16-byte random identifier in hex. Used for
// principal IDs, record IDs, and entry IDs.
func NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
