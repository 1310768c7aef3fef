// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx bounds HTTP response body reads. The helpers are for
// JSON API responses; large binary downloads should stream with
// io.Copy instead.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize caps JSON API response body reads at 16 MB. A
// conforming server sends responses orders of magnitude smaller; the
// cap only stops a misbehaving one from exhausting memory.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll on HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an error response body for diagnostics. Read
// failures yield whatever partial body came through.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
