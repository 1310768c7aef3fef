// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessiontoken implements the bearer credential issued at
// sign-in: a CBOR token payload signed with Ed25519, carried as a
// base64url string in the Authorization header.
//
// The wire format is CBOR payload || 64-byte Ed25519 signature. The
// payload uses integer struct keys (keyasint) for compactness and
// Core Deterministic Encoding so the signed bytes are reproducible.
//
// Verification is stateless (signature plus embedded expiry) with
// one exception: explicit sign-out. Expiry alone would leave a
// revoked session usable until its TTL ran out, so [Blacklist] holds
// the IDs of signed-out tokens and request handling checks it after
// signature verification. Blacklist entries expire with their token's
// natural TTL.
//
// [VerifyAt] takes an explicit time so tests can cross expiry
// boundaries without sleeping.
package sessiontoken
