// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"

	"github.com/convoy-ci/convoy/lib/secret"
)

// Keypair holds an age x25519 keypair. The identity (private key) is
// kept in a secret.Buffer; the recipient (public key) is a plain
// string and safe to publish.
//
// The caller must Close the keypair when done.
type Keypair struct {
	// Identity is the AGE-SECRET-KEY-1... private key. Never log it
	// or pass it on a command line.
	Identity *secret.Buffer

	// Recipient is the corresponding age1... public key.
	Recipient string
}

// Close releases the identity memory. Idempotent.
func (k *Keypair) Close() error {
	if k.Identity != nil {
		return k.Identity.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair with the identity
// in protected memory.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	identityBytes := []byte(identity.String())
	buffer, err := secret.NewFromBytes(identityBytes)
	if err != nil {
		return nil, fmt.Errorf("protecting identity: %w", err)
	}

	return &Keypair{
		Identity:  buffer,
		Recipient: identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to one or more age recipients and returns
// base64 ciphertext. At least one recipient is required.
func Seal(plaintext []byte, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	parsed := make([]age.Recipient, 0, len(recipients))
	for _, key := range recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		parsed = append(parsed, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, parsed...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Unseal decrypts base64 ciphertext with an identity held in a
// secret.Buffer and returns the plaintext in a new secret.Buffer.
// The identity buffer is borrowed, not closed.
func Unseal(ciphertext string, identity *secret.Buffer) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(strings.TrimSpace(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting plaintext: %w", err)
	}
	return buffer, nil
}
