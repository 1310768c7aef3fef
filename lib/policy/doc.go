// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy is the single authorization authority. Every data
// access (record, entry, or blob) routes through a [Gate]; nothing
// else in the codebase decides who may see what.
//
// The model is plain ownership: a record belongs to exactly one
// principal, an entry belongs to its record's owner transitively, and
// a blob belongs to whichever record's code prefixes its key. The
// gate allows an operation iff the requesting principal is that
// owner. There is no privileged bypass role; operations reserved for
// provisioning deny every API session unconditionally.
//
// Two mechanisms make the gate unavoidable rather than advisory:
//
//   - Single-resource checks return a [Result] that the HTTP layer
//     maps to a uniform not-found, so denial is indistinguishable
//     from absence (no existence leakage).
//   - List queries require a [Scope], which only this package can
//     construct and which pins the owner predicate. Stores refuse
//     unscoped lists, so a client filter can restrict results but can
//     never widen them: an "everything except mine" filter still
//     collapses to "only mine".
//
// Gate methods separate decision from fault: a Deny result is a
// policy outcome, a non-nil error is a backing-store problem. Callers
// must never conflate the two; the harness depends on telling
// "correctly denied" apart from "infrastructure broke".
package policy
