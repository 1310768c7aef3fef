// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key      string
		wantCode string
		wantRest string
	}{
		{"P001/f.bin", "P001", "f.bin"},
		{"P001/sessions/2026-03-01.wav", "P001", "sessions/2026-03-01.wav"},
		{"p-2_x/deep/path/file", "p-2_x", "deep/path/file"},
	}
	for _, test := range tests {
		code, rest, err := SplitKey(test.key)
		if err != nil {
			t.Errorf("SplitKey(%q): %v", test.key, err)
			continue
		}
		if code != test.wantCode || rest != test.wantRest {
			t.Errorf("SplitKey(%q) = (%q, %q), want (%q, %q)",
				test.key, code, rest, test.wantCode, test.wantRest)
		}
	}
}

func TestSplitKeyRejects(t *testing.T) {
	bad := []string{
		"",
		"P001",          // no rest
		"P001/",         // empty rest
		"/f.bin",        // empty code
		"P001//f.bin",   // empty segment
		"P001/../f.bin", // traversal
		"P001/./f.bin",
		"../P001/f.bin",
		"P001/a\\b",        // backslash
		"P001/a\x00b",      // NUL
		"P001/a\nb",        // control byte
		"-P001/f.bin",      // code starts with dash
		"P 001/f.bin",      // space in code
		strings.Repeat("a", 600) + "/f", // over length cap
	}
	for _, key := range bad {
		if _, _, err := SplitKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("SplitKey(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestValidCode(t *testing.T) {
	valid := []string{"P001", "p1", "0abc", "a-b_c", strings.Repeat("x", 64)}
	for _, code := range valid {
		if !ValidCode(code) {
			t.Errorf("ValidCode(%q) = false, want true", code)
		}
	}

	invalid := []string{"", "-x", "_x", "a.b", "a/b", "a b", strings.Repeat("x", 65)}
	for _, code := range invalid {
		if ValidCode(code) {
			t.Errorf("ValidCode(%q) = true, want false", code)
		}
	}
}
