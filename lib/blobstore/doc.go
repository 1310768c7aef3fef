// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore implements the on-disk blob store backing record
// attachments. Blobs are addressed by a key of the form
// "<CODE>/<rest>", where CODE is a record code that ties the blob to
// an owner; the store itself is policy-free and expects callers to
// authorize the key before any bytes reach Put or leave Get.
//
// Blobs are immutable: a key is written exactly once, and a second
// Put to the same key fails with ErrBlobExists. At rest each blob is
// a compressed (and optionally encrypted) data file plus a CBOR
// metadata sidecar carrying the content hash, sizes, and compression
// tag. The BLAKE3 content hash is verified on every read.
package blobstore
