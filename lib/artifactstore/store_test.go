// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/secret"
)

const (
	producer = keyring.Principal("build/compile")
	consumer = keyring.Principal("deploy/apply")
	outsider = keyring.Principal("foreign/unknown")
)

// newTestStore creates a store with one key: producer may encrypt,
// consumer may decrypt, outsider has nothing.
func newTestStore(t *testing.T, options ...Option) *Store {
	t.Helper()

	material := make([]byte, keyring.KeySize)
	if _, err := rand.Read(material); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}
	buffer, err := secret.NewFromBytes(material)
	if err != nil {
		t.Fatalf("secret.NewFromBytes() error: %v", err)
	}
	key, err := keyring.NewKey("artifact-key", buffer)
	if err != nil {
		t.Fatalf("keyring.NewKey() error: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	key.Grant(producer, keyring.Encrypt)
	key.Grant(consumer, keyring.Decrypt)

	ring := keyring.New()
	if err := ring.Add(key); err != nil {
		t.Fatalf("keyring.Add() error: %v", err)
	}

	store, err := NewStore(t.TempDir(), "convoy-artifacts", ring, options...)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	payload := bytes.Repeat([]byte("convoy build output "), 200)

	ref, err := store.Put("bundle", payload, "artifact-key", producer)
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if ref.Name != "bundle" || ref.KeyID != "artifact-key" {
		t.Errorf("Put() ref = %+v, want {bundle artifact-key}", ref)
	}

	got, err := store.Get("bundle", consumer)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Get() returned different payload than Put()")
	}
}

func TestGetWithoutGrantIsAccessDenied(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put("bundle", []byte("payload"), "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// The bytes exist; the grant does not.
	_, err := store.Get("bundle", outsider)
	if !errors.Is(err, keyring.ErrAccessDenied) {
		t.Errorf("Get() error = %v, want ErrAccessDenied", err)
	}

	// The producer's encrypt grant does not imply decrypt either.
	_, err = store.Get("bundle", producer)
	if !errors.Is(err, keyring.ErrAccessDenied) {
		t.Errorf("Get() by producer error = %v, want ErrAccessDenied", err)
	}
}

func TestGetUncommittedIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("never-written", consumer)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPutWithoutGrantIsEncryptionUnauthorized(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("bundle", []byte("payload"), "artifact-key", outsider)
	if !errors.Is(err, keyring.ErrEncryptionUnauthorized) {
		t.Errorf("Put() error = %v, want ErrEncryptionUnauthorized", err)
	}
	if store.Contains("bundle") {
		t.Error("unauthorized Put() left a committed artifact")
	}
}

func TestLocationStableAcrossWriteTiming(t *testing.T) {
	store := newTestStore(t)

	// Location computed before the artifact exists...
	before := store.LocationOf("bundle")

	if _, err := store.Put("bundle", []byte("payload"), "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// ...matches the location computed after, and the artifact it
	// names is readable.
	after := store.LocationOf("bundle")
	if before != after {
		t.Errorf("LocationOf() before write = %v, after = %v", before, after)
	}
	if before.Bucket != "convoy-artifacts" || before.Key != "artifacts/bundle" {
		t.Errorf("LocationOf() = %v, want {convoy-artifacts artifacts/bundle}", before)
	}
	if _, err := store.Get("bundle", consumer); err != nil {
		t.Errorf("Get() after location-first flow error: %v", err)
	}
}

func TestStagingCommitsAllOrNothing(t *testing.T) {
	store := newTestStore(t)

	staging := store.Begin()
	if err := staging.Add("bundle", []byte("bundle bytes"), "artifact-key", producer); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	// Second output fails authorization: nothing may be published.
	err := staging.Add("template", []byte("template bytes"), "artifact-key", outsider)
	if !errors.Is(err, keyring.ErrEncryptionUnauthorized) {
		t.Fatalf("Add() error = %v, want ErrEncryptionUnauthorized", err)
	}
	staging.Discard()

	if store.Contains("bundle") || store.Contains("template") {
		t.Error("discarded staging left committed artifacts")
	}
	if _, err := store.Get("bundle", consumer); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after discard error = %v, want ErrNotFound", err)
	}
}

func TestStagingCommitPublishesSet(t *testing.T) {
	store := newTestStore(t)

	staging := store.Begin()
	for _, name := range []string{"bundle", "template"} {
		if err := staging.Add(name, []byte("payload for "+name), "artifact-key", producer); err != nil {
			t.Fatalf("Add(%s) error: %v", name, err)
		}
		// Not visible until Commit.
		if store.Contains(name) {
			t.Errorf("artifact %q visible before Commit", name)
		}
	}

	refs, err := staging.Commit()
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("Commit() returned %d refs, want 2", len(refs))
	}
	for _, name := range []string{"bundle", "template"} {
		if _, err := store.Get(name, consumer); err != nil {
			t.Errorf("Get(%s) after Commit error: %v", name, err)
		}
	}
}

func TestCommittedArtifactsAreImmutable(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put("bundle", []byte("first"), "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if _, err := store.Put("bundle", []byte("second"), "artifact-key", producer); err == nil {
		t.Error("second Put() under the same name succeeded, want error")
	}
}

func TestPayloadEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	plaintext := []byte("extremely recognizable plaintext marker")
	if _, err := store.Put("bundle", plaintext, "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(store.state.root, payloadDir, fileName("bundle")))
	if err != nil {
		t.Fatalf("reading payload file: %v", err)
	}
	if bytes.Contains(raw, plaintext) {
		t.Error("payload file contains plaintext")
	}
}

func TestIndexReload(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("survives restarts")
	if _, err := store.Put("bundle", payload, "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	reopened, err := NewStore(store.state.root, store.state.bucket, store.state.keys)
	if err != nil {
		t.Fatalf("NewStore() reopen error: %v", err)
	}
	got, err := reopened.Get("bundle", consumer)
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("reopened store returned different payload")
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	store := newTestStore(t, WithCompression(CompressionLZ4))
	payload := bytes.Repeat([]byte("lz4 compressible content "), 500)

	if _, err := store.Put("bundle", payload, "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, err := store.Get("bundle", consumer)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("lz4 round trip mismatch")
	}
}

func TestIncompressiblePayloadFallsBackToNone(t *testing.T) {
	store := newTestStore(t)
	payload := make([]byte, 1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}

	if _, err := store.Put("noise", payload, "artifact-key", producer); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	store.state.mu.RLock()
	tag := store.state.index["noise"].Compression
	store.state.mu.RUnlock()
	if tag != CompressionNone {
		t.Errorf("compression tag = %v, want none for incompressible payload", tag)
	}

	got, err := store.Get("noise", consumer)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("incompressible round trip mismatch")
	}
}
