// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness drives adversarial validation runs against a live
// Fenceline server. It signs in as multiple tenants, seeds fixture
// data through the public API, and then attempts the cross-tenant
// accesses the server must refuse: direct foreign references, filter
// inversion, blob prefix escapes, token misuse, owner spoofing, and
// privilege escalation.
//
// The harness inverts the usual test polarity: an adversarial request
// that SUCCEEDS is the failure. Every scenario returns nil only when
// the server denied the access in exactly the expected uniform way.
package harness
