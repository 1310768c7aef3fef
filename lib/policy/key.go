// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"strings"
)

// ErrInvalidKey is returned by SplitKey for keys that fail syntactic
// validation.
var ErrInvalidKey = errors.New("policy: invalid blob key")

// maxKeyLength bounds the full key, matching common object-store
// limits.
const maxKeyLength = 512

// SplitKey parses a blob key into its owning record code (the first
// path segment) and the remainder. Ownership of a blob is derived
// entirely from this prefix, with no separate ACL entry, so the
// parse is strict: a key that does not cleanly split into
// "CODE/rest" has no owner and is rejected before any lookup.
//
// Rules: at least two non-empty segments separated by '/', no "." or
// ".." segments, no backslashes or control bytes. Codes additionally
// must satisfy ValidCode.
func SplitKey(key string) (code, rest string, err error) {
	if key == "" || len(key) > maxKeyLength {
		return "", "", ErrInvalidKey
	}
	if strings.ContainsAny(key, "\\\x00") {
		return "", "", ErrInvalidKey
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", "", ErrInvalidKey
		}
	}

	code, rest, found := strings.Cut(key, "/")
	if !found || rest == "" {
		return "", "", ErrInvalidKey
	}
	if !ValidCode(code) {
		return "", "", ErrInvalidKey
	}
	for _, segment := range strings.Split(rest, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", "", ErrInvalidKey
		}
	}
	return code, rest, nil
}

// ValidCode reports whether code is a well-formed record code: 1-64
// characters from [A-Za-z0-9_-], starting with a letter or digit.
// Codes form a global namespace (unique across all principals), so
// prefix-derived blob ownership cannot be spoofed by a colliding
// code.
func ValidCode(code string) bool {
	if code == "" || len(code) > 64 {
		return false
	}
	for i, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case (r == '-' || r == '_') && i > 0:
		default:
			return false
		}
	}
	return true
}
