// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/fenceline-dev/fenceline/lib/secret"
)

// KeySize is the size in bytes of the at-rest master key and of every
// derived per-blob key.
const KeySize = 32

// encryptedBlobVersion is the version byte prepended to every
// encrypted data file. It is included in the AEAD additional
// authenticated data, so tampering with it fails authentication.
const encryptedBlobVersion byte = 0x01

// encryptedBlobOverhead is the per-blob byte overhead:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const encryptedBlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoPerBlob is the HKDF-SHA256 info prefix for per-blob key
// derivation. The blob key string is appended, so every blob key
// derives a distinct encryption key. Changing this invalidates all
// existing ciphertext.
var hkdfInfoPerBlob = []byte("fenceline.blob.v1:")

// Keychain holds the at-rest master key in guarded memory and derives
// per-blob encryption keys. Derivation is a fresh HKDF run per call;
// no derived key is cached.
//
// Close zeroes and releases the master key. After Close, derivation
// panics via secret.Buffer's closed check.
type Keychain struct {
	masterKey *secret.Buffer
}

// NewKeychain creates a keychain from a 32-byte master key. The buffer
// is owned by the keychain and closed with it; the caller must not use
// masterKey afterward.
func NewKeychain(masterKey *secret.Buffer) (*Keychain, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("at-rest master key must be %d bytes, got %d", KeySize, masterKey.Len())
	}
	return &Keychain{masterKey: masterKey}, nil
}

// Close zeroes and releases the master key. Idempotent.
func (kc *Keychain) Close() error {
	return kc.masterKey.Close()
}

// deriveBlobKey derives the encryption key for a blob from the master
// key and the blob's key string. The salt is nil: the master key is
// already uniformly random, so HKDF's extract phase with a zero salt
// is appropriate per RFC 5869. The returned buffer must be closed by
// the caller.
func (kc *Keychain) deriveBlobKey(blobKey string) (*secret.Buffer, error) {
	info := make([]byte, 0, len(hkdfInfoPerBlob)+len(blobKey))
	info = append(info, hkdfInfoPerBlob...)
	info = append(info, blobKey...)

	reader := hkdf.New(sha256.New, kc.masterKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// encryptBlob encrypts a blob's compressed data file with
// XChaCha20-Poly1305 under a key derived from the blob key. The output
// layout is:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// The version byte and the content hash are authenticated as AAD,
// binding the ciphertext to this blob's content so data files cannot
// be swapped between keys on disk.
func (kc *Keychain) encryptBlob(plaintext []byte, blobKey string, contentHash Hash) ([]byte, error) {
	encryptionKey, err := kc.deriveBlobKey(blobKey)
	if err != nil {
		return nil, err
	}
	defer encryptionKey.Close()

	aead, err := chacha20poly1305.NewX(encryptionKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	aad := buildAAD(encryptedBlobVersion, contentHash)

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = encryptedBlobVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, aad), nil
}

// decryptBlob reverses encryptBlob. Authentication fails on a wrong
// key, tampered ciphertext, or a mismatched content hash.
func (kc *Keychain) decryptBlob(encrypted []byte, blobKey string, contentHash Hash) ([]byte, error) {
	if len(encrypted) < encryptedBlobOverhead {
		return nil, fmt.Errorf("encrypted blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(encrypted), encryptedBlobOverhead)
	}

	version := encrypted[0]
	if version != encryptedBlobVersion {
		return nil, fmt.Errorf("encrypted blob version %d is not supported (expected %d)",
			version, encryptedBlobVersion)
	}

	nonce := encrypted[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := encrypted[1+chacha20poly1305.NonceSizeX:]

	encryptionKey, err := kc.deriveBlobKey(blobKey)
	if err != nil {
		return nil, err
	}
	defer encryptionKey.Close()

	aead, err := chacha20poly1305.NewX(encryptionKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, buildAAD(version, contentHash))
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or mismatched content): %w", err)
	}
	return plaintext, nil
}

func buildAAD(version byte, contentHash Hash) []byte {
	aad := make([]byte, 1+len(contentHash))
	aad[0] = version
	copy(aad[1:], contentHash[:])
	return aad
}
