// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package recordstore persists principals, records, and entries in
// SQLite.
//
// The store is where the ownership boundary is physically enforced.
// Every tenant-facing query embeds the owner predicate in its SQL:
// single-resource reads match `id = ? AND owner_id = ?`, list queries
// require a [policy.Scope] (refusing the zero value), and entry
// creation is a single INSERT...SELECT that only fires when the
// parent record belongs to the caller. There is no tenant-facing
// store API that returns rows without an owner constraint, so no
// query shape, however phrased, can reach another principal's data.
//
// Entries never store an owner column. Their owner is the parent
// record's owner, resolved transitively on demand, which makes
// ownership drift structurally impossible.
//
// The store also implements [policy.OwnerResolver]; those methods
// return owners without a predicate and exist solely for the policy
// gate's own decisions.
//
// Denied and missing both surface as [ErrNotFound]. Callers cannot
// tell which, and must not try.
package recordstore
