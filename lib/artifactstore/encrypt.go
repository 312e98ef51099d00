// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/secret"
)

// blobVersion is prepended to every encrypted payload on disk and
// included as additional authenticated data, so tampering with it
// fails authentication.
const blobVersion byte = 0x01

// blobOverhead is the fixed per-payload byte overhead:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoArtifact is the HKDF domain separator for per-artifact key
// derivation. Changing it invalidates every stored payload.
var hkdfInfoArtifact = []byte("convoy.artifact.v1")

// deriveArtifactKey derives the per-artifact encryption key from the
// owning key's material and the artifact name. The master key is
// borrowed and not closed; the returned buffer must be closed by the
// caller.
func deriveArtifactKey(master *secret.Buffer, name string) (*secret.Buffer, error) {
	info := make([]byte, 0, len(hkdfInfoArtifact)+len(name))
	info = append(info, hkdfInfoArtifact...)
	info = append(info, name...)

	derived, err := secret.New(keyring.KeySize)
	if err != nil {
		return nil, fmt.Errorf("allocating derived key: %w", err)
	}
	reader := hkdf.New(sha256.New, master.Bytes(), nil, info)
	if _, err := io.ReadFull(reader, derived.Bytes()); err != nil {
		derived.Close()
		return nil, fmt.Errorf("deriving artifact key: %w", err)
	}
	return derived, nil
}

// seal encrypts plaintext with the per-artifact key:
// version || nonce || ciphertext, with the version byte authenticated.
func seal(key *secret.Buffer, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	blob := make([]byte, 1+chacha20poly1305.NonceSizeX, len(plaintext)+blobOverhead)
	blob[0] = blobVersion
	nonce := blob[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(blob, nonce, plaintext, []byte{blobVersion}), nil
}

// open decrypts a sealed blob. Any tampering (version byte, nonce,
// ciphertext) fails authentication.
func open(key *secret.Buffer, blob []byte) ([]byte, error) {
	if len(blob) < blobOverhead {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(blob))
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("unsupported sealed payload version %d", blob[0])
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{blobVersion})
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plaintext, nil
}
