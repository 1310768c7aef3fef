// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fenceline-dev/fenceline/lib/clock"
	"github.com/fenceline-dev/fenceline/lib/codec"
	"github.com/fenceline-dev/fenceline/lib/policy"
)

// Directory names within the store root.
const (
	blobDir = "blobs"
	tmpDir  = "tmp"
)

// File name suffixes. Both the data file and the sidecar carry a
// suffix so a blob key can never collide with a directory created for
// a longer key sharing its prefix.
const (
	dataSuffix = ".blob"
	metaSuffix = ".meta"
)

var (
	// ErrBlobNotFound is returned when no blob exists at the given
	// key. Callers translating this onto the HTTP surface must not
	// distinguish it from a denied key.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobExists is returned by Put when the key is already
	// written. Blobs are immutable; there is no overwrite path.
	ErrBlobExists = errors.New("blob already exists")

	// ErrBlobCorrupted is returned by Get when the stored data fails
	// hash verification or cannot be decoded.
	ErrBlobCorrupted = errors.New("blob corrupted")
)

// Metadata is the per-blob sidecar record, stored as CBOR next to the
// data file.
type Metadata struct {
	// Key is the full blob key, "<CODE>/<rest>".
	Key string `cbor:"key"`

	// Size is the uncompressed content size in bytes.
	Size int64 `cbor:"size"`

	// StoredSize is the on-disk data file size (after compression and
	// encryption).
	StoredSize int64 `cbor:"stored_size"`

	// Compression names the algorithm applied to the content.
	Compression CompressionTag `cbor:"compression"`

	// ContentHash is the BLAKE3 digest of the uncompressed content.
	ContentHash Hash `cbor:"content_hash"`

	// Encrypted records whether the data file is sealed with the
	// at-rest keychain.
	Encrypted bool `cbor:"encrypted"`

	// CreatedAt is when the blob was written.
	CreatedAt time.Time `cbor:"created_at"`
}

// Config carries the dependencies for a Store.
type Config struct {
	// Root is the store directory. Created if missing.
	Root string

	// Keychain enables at-rest encryption when non-nil. The store
	// takes ownership and closes it with Close.
	Keychain *Keychain

	// Clock stamps blob creation times. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Store is the on-disk blob store. Writes to distinct keys are safe
// concurrently; the immutability check on a single key is best-effort
// under concurrent writers, with the rename deciding the winner.
type Store struct {
	root     string
	keychain *Keychain
	clock    clock.Clock
	logger   *slog.Logger
}

// Open creates a Store rooted at cfg.Root, creating the directory
// structure if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		panic("blobstore: Config.Root is required")
	}
	if cfg.Clock == nil {
		panic("blobstore: Config.Clock is required")
	}
	if cfg.Logger == nil {
		panic("blobstore: Config.Logger is required")
	}

	for _, dir := range []string{
		cfg.Root,
		filepath.Join(cfg.Root, blobDir),
		filepath.Join(cfg.Root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	return &Store{
		root:     cfg.Root,
		keychain: cfg.Keychain,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Close releases the keychain, if any.
func (s *Store) Close() error {
	if s.keychain != nil {
		return s.keychain.Close()
	}
	return nil
}

// Put writes content under key. The key must already be authorized by
// the caller; Put re-validates its shape but performs no ownership
// check. Returns ErrBlobExists if the key is already written.
func (s *Store) Put(key string, content []byte) (Metadata, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Metadata{}, err
	}

	// The sidecar is the commit point: its presence means the blob
	// exists.
	if _, err := os.Stat(metaPath); err == nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrBlobExists, key)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Metadata{}, fmt.Errorf("checking blob %s: %w", key, err)
	}

	contentHash := HashContent(content)

	stored, tag, err := compressAuto(content)
	if err != nil {
		return Metadata{}, fmt.Errorf("compressing blob %s: %w", key, err)
	}

	encrypted := s.keychain != nil
	if encrypted {
		stored, err = s.keychain.encryptBlob(stored, key, contentHash)
		if err != nil {
			return Metadata{}, fmt.Errorf("encrypting blob %s: %w", key, err)
		}
	}

	meta := Metadata{
		Key:         key,
		Size:        int64(len(content)),
		StoredSize:  int64(len(stored)),
		Compression: tag,
		ContentHash: contentHash,
		Encrypted:   encrypted,
		CreatedAt:   s.clock.Now().UTC(),
	}

	metaBytes, err := codec.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("encoding metadata for %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(dataPath), 0o700); err != nil {
		return Metadata{}, fmt.Errorf("creating blob directory: %w", err)
	}

	// Data file first, sidecar last. A crash between the two leaves
	// an orphan data file that a re-Put overwrites via rename.
	if err := s.writeAtomic(dataPath, stored); err != nil {
		return Metadata{}, fmt.Errorf("writing blob %s: %w", key, err)
	}
	if err := s.writeAtomic(metaPath, metaBytes); err != nil {
		return Metadata{}, fmt.Errorf("writing blob metadata %s: %w", key, err)
	}

	s.logger.Info("blob stored",
		"key", key,
		"size", meta.Size,
		"stored_size", meta.StoredSize,
		"compression", tag.String(),
		"encrypted", encrypted)
	return meta, nil
}

// Get reads the blob at key, decrypting and decompressing as needed,
// and verifies the content hash before returning.
func (s *Store) Get(key string) ([]byte, Metadata, error) {
	meta, err := s.Stat(key)
	if err != nil {
		return nil, Metadata{}, err
	}

	dataPath, _, err := s.paths(key)
	if err != nil {
		return nil, Metadata{}, err
	}

	stored, err := os.ReadFile(dataPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Sidecar present, data file gone.
			return nil, Metadata{}, fmt.Errorf("%w: %s: data file missing", ErrBlobCorrupted, key)
		}
		return nil, Metadata{}, fmt.Errorf("reading blob %s: %w", key, err)
	}

	if meta.Encrypted {
		if s.keychain == nil {
			return nil, Metadata{}, fmt.Errorf("blob %s is encrypted but the store has no keychain", key)
		}
		stored, err = s.keychain.decryptBlob(stored, key, meta.ContentHash)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("%w: %s: %v", ErrBlobCorrupted, key, err)
		}
	}

	content, err := decompress(stored, meta.Compression, int(meta.Size))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %s: %v", ErrBlobCorrupted, key, err)
	}

	if HashContent(content) != meta.ContentHash {
		return nil, Metadata{}, fmt.Errorf("%w: %s: content hash mismatch", ErrBlobCorrupted, key)
	}
	return content, meta, nil
}

// Stat returns the metadata for the blob at key without reading the
// data file.
func (s *Store) Stat(key string) (Metadata, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return Metadata{}, err
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return Metadata{}, fmt.Errorf("reading blob metadata %s: %w", key, err)
	}

	var meta Metadata
	if err := codec.Unmarshal(metaBytes, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrBlobCorrupted, key, err)
	}
	if meta.Key != key {
		return Metadata{}, fmt.Errorf("%w: %s: sidecar names key %q", ErrBlobCorrupted, key, meta.Key)
	}
	return meta, nil
}

// ListCode returns the metadata of every blob under a single record
// code, sorted by key. A code with no blobs yields an empty slice.
func (s *Store) ListCode(code string) ([]Metadata, error) {
	if !policy.ValidCode(code) {
		return nil, fmt.Errorf("%w: %q", policy.ErrInvalidKey, code)
	}

	codeRoot := filepath.Join(s.root, blobDir, code)
	var results []Metadata

	err := filepath.WalkDir(codeRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			return nil
		}

		relative, err := filepath.Rel(filepath.Join(s.root, blobDir), path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(relative), metaSuffix)

		meta, err := s.Stat(key)
		if err != nil {
			return err
		}
		results = append(results, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs under %s: %w", code, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// paths validates the key shape and maps it to the data and sidecar
// file paths. Key validation here is a backstop; authorization happens
// before the store is reached.
func (s *Store) paths(key string) (dataPath, metaPath string, err error) {
	code, rest, err := policy.SplitKey(key)
	if err != nil {
		return "", "", err
	}
	base := filepath.Join(s.root, blobDir, code, filepath.FromSlash(rest))
	return base + dataSuffix, base + metaSuffix, nil
}

// writeAtomic writes data to path via a temp file and rename.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
