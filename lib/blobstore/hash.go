// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size in bytes of a blob content hash.
const HashSize = 32

// Hash is a BLAKE3-256 digest of a blob's uncompressed content. It is
// recorded in the metadata sidecar at write time and verified on every
// read.
type Hash [HashSize]byte

// HashContent computes the content hash of uncompressed blob data.
func HashContent(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing blob hash: %w", err)
	}
	if len(decoded) != HashSize {
		return h, fmt.Errorf("blob hash is %d bytes, expected %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return h, nil
}
