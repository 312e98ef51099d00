// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/convoy-ci/convoy/lib/sealed"
	"github.com/convoy-ci/convoy/lib/secret"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}
	buffer, err := secret.NewFromBytes(material)
	if err != nil {
		t.Fatalf("secret.NewFromBytes() error: %v", err)
	}
	key, err := NewKey("artifact-key", buffer)
	if err != nil {
		t.Fatalf("NewKey() error: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestAuthorizeFailsClosed(t *testing.T) {
	key := testKey(t)

	err := key.Authorize("build/webapp", Encrypt)
	if !errors.Is(err, ErrEncryptionUnauthorized) {
		t.Errorf("Authorize(encrypt) error = %v, want ErrEncryptionUnauthorized", err)
	}

	err = key.Authorize("deploy/target", Decrypt)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Authorize(decrypt) error = %v, want ErrAccessDenied", err)
	}
}

func TestGrantIsOperationScoped(t *testing.T) {
	key := testKey(t)
	key.Grant("build/webapp", Encrypt)

	if err := key.Authorize("build/webapp", Encrypt); err != nil {
		t.Errorf("Authorize(encrypt) after grant error: %v", err)
	}
	// An encrypt grant does not imply decrypt.
	if err := key.Authorize("build/webapp", Decrypt); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Authorize(decrypt) error = %v, want ErrAccessDenied", err)
	}
}

func TestGrantsAccumulate(t *testing.T) {
	key := testKey(t)
	key.Grant("deploy/target", Decrypt)
	key.Grant("deploy/target", Encrypt)

	if err := key.Authorize("deploy/target", Decrypt); err != nil {
		t.Errorf("earlier grant lost after later Grant call: %v", err)
	}
	if err := key.Authorize("deploy/target", Encrypt); err != nil {
		t.Errorf("Authorize(encrypt) error: %v", err)
	}
}

func TestNewKeyWrongSize(t *testing.T) {
	buffer, err := secret.NewFromBytes([]byte("short"))
	if err != nil {
		t.Fatalf("secret.NewFromBytes() error: %v", err)
	}
	defer buffer.Close()

	if _, err := NewKey("bad", buffer); err == nil {
		t.Error("NewKey() with short material succeeded, want error")
	}
}

func TestKeyringLookup(t *testing.T) {
	ring := New()
	key := testKey(t)
	if err := ring.Add(key); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	found, err := ring.Lookup("artifact-key")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if found != key {
		t.Error("Lookup() returned a different key")
	}

	if _, err := ring.Lookup("missing"); err == nil {
		t.Error("Lookup(missing) succeeded, want error")
	}
	if err := ring.Add(key); err == nil {
		t.Error("duplicate Add() succeeded, want error")
	}
}

func TestLoadSealedKey(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer keypair.Close()

	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}
	ciphertext, err := sealed.Seal(append([]byte(nil), material...), []string{keypair.Recipient})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "artifact.key.sealed")
	if err := os.WriteFile(path, []byte(ciphertext), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	key, err := LoadSealedKey("artifact-key", path, keypair.Identity)
	if err != nil {
		t.Fatalf("LoadSealedKey() error: %v", err)
	}
	defer key.Close()

	if key.Material().Len() != KeySize {
		t.Errorf("Material().Len() = %d, want %d", key.Material().Len(), KeySize)
	}
}
