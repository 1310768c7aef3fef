// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"sync"
	"time"
)

// blacklistEntry tracks a revoked token ID and its natural expiry
// time. Once the token's own TTL has passed, keeping the entry is
// unnecessary; Verify rejects expired tokens regardless, so Cleanup
// drops it.
type blacklistEntry struct {
	tokenExpiresAt time.Time
}

// Blacklist is a thread-safe in-memory set of revoked token IDs.
// Explicit sign-out must take effect for all subsequent requests
// immediately, not after the token's TTL runs out, so DELETE
// /sessions/current adds the token ID here and every authenticated
// request checks it after signature verification.
//
// Revoking an already-revoked or unknown token ID is a no-op, which
// makes sign-out idempotent.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]blacklistEntry
}

// NewBlacklist creates an empty token blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]blacklistEntry)}
}

// Revoke adds a token ID to the blacklist. The tokenExpiresAt
// parameter is the token's natural expiry; the entry is removed after
// that time during Cleanup.
func (b *Blacklist) Revoke(tokenID string, tokenExpiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = blacklistEntry{tokenExpiresAt: tokenExpiresAt}
}

// IsRevoked checks whether a token ID has been revoked.
func (b *Blacklist) IsRevoked(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.entries[tokenID]
	return exists
}

// Cleanup removes entries whose token's natural expiry has passed and
// returns how many were removed. Call periodically; with short token
// TTLs the blacklist stays small.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for tokenID, entry := range b.entries {
		if !now.Before(entry.tokenExpiresAt) {
			delete(b.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries in the blacklist.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
