// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestCompressRoundtrip(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100))

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := compress(data, tag)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Fatalf("compressed size %d not smaller than input %d", len(compressed), len(data))
			}

			restored, err := decompress(compressed, tag, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestCompressAutoFallsBackForRandomData(t *testing.T) {
	data := make([]byte, 8192)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	stored, tag, err := compressAuto(data)
	if err != nil {
		t.Fatalf("compressAuto: %v", err)
	}
	if tag != CompressionNone {
		t.Errorf("tag = %v, want none for random data", tag)
	}
	if !bytes.Equal(stored, data) {
		t.Error("CompressionNone must return input unchanged")
	}
}

func TestCompressAutoPicksZstdForText(t *testing.T) {
	data := []byte(strings.Repeat(`{"event":"note_added","record":"P001"}`+"\n", 500))

	stored, tag, err := compressAuto(data)
	if err != nil {
		t.Fatalf("compressAuto: %v", err)
	}
	if tag != CompressionZstd {
		t.Errorf("tag = %v, want zstd for highly repetitive text", tag)
	}

	restored, err := decompress(stored, tag, len(data))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Error("roundtrip mismatch")
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := []byte(strings.Repeat("abc", 1000))
	compressed, err := compress(data, CompressionZstd)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	if _, err := decompress(compressed, CompressionZstd, len(data)-1); err == nil {
		t.Error("size mismatch not detected")
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Fatalf("ParseCompressionTag(%s): %v", tag, err)
		}
		if parsed != tag {
			t.Errorf("parsed %v, want %v", parsed, tag)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("unknown tag accepted")
	}
}
