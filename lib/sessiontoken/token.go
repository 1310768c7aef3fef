// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fenceline-dev/fenceline/lib/codec"
	"github.com/fenceline-dev/fenceline/lib/identity"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Token is the CBOR-encoded payload of a session token. A token binds
// one principal to one bounded-lifetime session; it carries exactly
// the identity established at authentication and nothing more.
type Token struct {
	// Subject is the principal ID the session was issued to.
	Subject string `cbor:"1,keyasint"`

	// Role is the principal's role at authentication time. A token
	// never carries a role the principal did not have when it signed
	// in.
	Role identity.Role `cbor:"2,keyasint"`

	// ID is a unique token identifier (hex string). Explicit sign-out
	// revokes by ID via the Blacklist.
	ID string `cbor:"3,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was
	// minted.
	IssuedAt int64 `cbor:"4,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"5,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenMalformed   = errors.New("sessiontoken: token is malformed")
	ErrInvalidSignature = errors.New("sessiontoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("sessiontoken: token has expired")
	ErrTokenRevoked     = errors.New("sessiontoken: token has been revoked")
)

// NewTokenID returns a fresh random token identifier (16 bytes, hex).
func NewTokenID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("sessiontoken: generating token ID: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Mint signs a Token with the service's private key and returns the
// bearer string: base64url of the CBOR-encoded payload followed by
// the 64-byte Ed25519 signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) (string, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("sessiontoken: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	raw := make([]byte, len(payload)+signatureSize)
	copy(raw, payload)
	copy(raw[len(payload):], signature)

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify decodes the bearer string, verifies the Ed25519 signature,
// CBOR-decodes the payload, and checks expiry. Returns the decoded
// Token on success.
//
// The caller should additionally consult the Blacklist for tokens
// revoked by explicit sign-out.
func Verify(publicKey ed25519.PublicKey, bearer string) (*Token, error) {
	return VerifyAt(publicKey, bearer, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry
// checks. This supports deterministic testing.
func VerifyAt(publicKey ed25519.PublicKey, bearer string, now time.Time) (*Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(bearer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if len(raw) <= signatureSize {
		return nil, ErrTokenMalformed
	}

	splitPoint := len(raw) - signatureSize
	payload := raw[:splitPoint]
	signature := raw[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrTokenMalformed, err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}
