// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/convoy-ci/convoy/lib/codec"
)

// record is the per-artifact metadata file, stored as deterministic
// CBOR next to the sealed payload. It carries everything Get needs to
// authorize, decrypt, and verify a payload.
type record struct {
	// Name is the artifact name as declared in the pipeline.
	Name string `cbor:"name"`

	// KeyID names the encryption key the payload is sealed under.
	KeyID string `cbor:"key_id"`

	// PlainHash is the BLAKE3 hash of the plaintext payload, verified
	// on every Get.
	PlainHash []byte `cbor:"plain_hash"`

	// PlainSize is the uncompressed payload size in bytes.
	PlainSize int64 `cbor:"plain_size"`

	// Compression is the tag applied before encryption.
	Compression CompressionTag `cbor:"compression"`

	// CreatedAt is the commit time in Unix seconds.
	CreatedAt int64 `cbor:"created_at"`
}

// fileName returns the filesystem name for an artifact: the first 12
// bytes of the BLAKE3 hash of its name, hex encoded. Artifact names
// may contain path separators; hashing keeps the store layout flat
// and free of traversal concerns.
func fileName(name string) string {
	sum := blake3.Sum256([]byte(name))
	return fmt.Sprintf("%x", sum[:12])
}

// hashPayload returns the BLAKE3 hash of a plaintext payload.
func hashPayload(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	return sum[:]
}

// writeRecord marshals a record to CBOR and writes it to path.
func writeRecord(path string, r *record) error {
	data, err := codec.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record for %s: %w", r.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// readRecord loads and decodes a record file.
func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", path, err)
	}
	var r record
	if err := codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", path, err)
	}
	return &r, nil
}
