// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the blob master key
// lifecycle: generate an operator keypair, seal the master key to one
// or more operator public keys for storage on disk, and unseal it at
// server startup.
//
// Sealed payloads are base64-encoded age ciphertext, safe to keep in
// a config tree or ship in a backup. Private keys and unsealed
// plaintext live in secret.Buffer memory (mmap-backed, locked against
// swap, zeroed on close) and never touch the Go heap longer than the
// age API forces them to.
package sealed
