// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Fenceline's standard CBOR encoding
// configuration.
//
// Fenceline uses two serialization formats with a clear boundary:
//
//   - JSON for the external HTTP API and for harness fixtures (JSONC).
//   - CBOR for internal binary artifacts: session token payloads and
//     blob metadata sidecars.
//
// This package holds the shared encoding and decoding modes so every
// package encodes identically. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2), which matters for session tokens: the
// signature covers the encoded payload, so the encoding must be
// byte-stable.
//
// Struct tag rules: types serialized only as CBOR carry `cbor` tags
// (keyasint for compact token payloads); types that also cross the
// JSON boundary carry `json` tags, which fxamacker/cbor reads as a
// fallback. Never both on one field.
package codec
