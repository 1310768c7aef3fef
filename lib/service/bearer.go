// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoBearerToken is returned by BearerToken when the request
// carries no usable Authorization header.
var ErrNoBearerToken = errors.New("missing or malformed bearer token")

// BearerToken extracts the bearer credential from a request's
// Authorization header. The scheme comparison is case-insensitive
// per RFC 9110. The token itself is returned verbatim; verification
// is the caller's job.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoBearerToken
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearerToken
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearerToken
	}
	return token, nil
}
