// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/convoy-ci/convoy/lib/sealed"
	"github.com/convoy-ci/convoy/lib/secret"
)

// KeySize is the required size in bytes of artifact encryption key
// material.
const KeySize = 32

// Sentinel errors for authorization failures. Both fail closed: the
// caller must not retry with widened grants.
var (
	// ErrEncryptionUnauthorized means the principal lacks an encrypt
	// grant on the key it tried to write under.
	ErrEncryptionUnauthorized = errors.New("principal lacks encrypt grant")

	// ErrAccessDenied means the principal lacks a decrypt grant on the
	// key protecting the artifact it tried to read.
	ErrAccessDenied = errors.New("principal lacks decrypt grant")
)

// Principal identifies a party that encrypts or decrypts artifacts:
// a build action, the deploy action, or a foreign-account identity.
type Principal string

// Operation is a grantable key operation.
type Operation int

const (
	// Encrypt permits writing artifacts under the key.
	Encrypt Operation = iota

	// Decrypt permits reading artifacts protected by the key.
	Decrypt
)

// String returns "encrypt" or "decrypt".
func (o Operation) String() string {
	if o == Encrypt {
		return "encrypt"
	}
	return "decrypt"
}

// ParseOperation converts a config-file operation name to an
// Operation.
func ParseOperation(name string) (Operation, error) {
	switch name {
	case "encrypt":
		return Encrypt, nil
	case "decrypt":
		return Decrypt, nil
	default:
		return 0, fmt.Errorf("unknown key operation %q (want encrypt or decrypt)", name)
	}
}

// Key is a symmetric artifact encryption key plus its grant map.
// Writes to the grant map are serialized; authorization checks are
// concurrent reads.
type Key struct {
	id       string
	material *secret.Buffer

	mu     sync.RWMutex
	grants map[Principal]map[Operation]bool
}

// NewKey wraps key material in a Key. The material buffer is owned by
// the Key after this call; close the Key, not the buffer.
func NewKey(id string, material *secret.Buffer) (*Key, error) {
	if id == "" {
		return nil, fmt.Errorf("key id is required")
	}
	if material.Len() != KeySize {
		return nil, fmt.Errorf("key %s: material is %d bytes, want %d", id, material.Len(), KeySize)
	}
	return &Key{
		id:       id,
		material: material,
		grants:   make(map[Principal]map[Operation]bool),
	}, nil
}

// LoadSealedKey reads an age-sealed key file and unseals it with the
// given identity. The identity buffer is borrowed, not closed.
func LoadSealedKey(id, path string, identity *secret.Buffer) (*Key, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed key %s: %w", path, err)
	}
	material, err := sealed.Unseal(string(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing key %s: %w", path, err)
	}
	key, err := NewKey(id, material)
	if err != nil {
		material.Close()
		return nil, err
	}
	return key, nil
}

// ID returns the key identifier.
func (k *Key) ID() string { return k.id }

// Material returns the raw key bytes. The buffer is borrowed — the
// caller must not close or retain it.
func (k *Key) Material() *secret.Buffer { return k.material }

// Grant adds operations to a principal's grant set. Grants accumulate;
// there is no revocation during a run.
func (k *Key) Grant(principal Principal, operations ...Operation) {
	k.mu.Lock()
	defer k.mu.Unlock()

	set := k.grants[principal]
	if set == nil {
		set = make(map[Operation]bool)
		k.grants[principal] = set
	}
	for _, operation := range operations {
		set[operation] = true
	}
}

// Authorize checks that principal holds the given operation on this
// key. Returns ErrEncryptionUnauthorized or ErrAccessDenied (keyed to
// the operation) when the grant is missing.
func (k *Key) Authorize(principal Principal, operation Operation) error {
	k.mu.RLock()
	granted := k.grants[principal][operation]
	k.mu.RUnlock()

	if granted {
		return nil
	}
	if operation == Encrypt {
		return fmt.Errorf("key %s, principal %s: %w", k.id, principal, ErrEncryptionUnauthorized)
	}
	return fmt.Errorf("key %s, principal %s: %w", k.id, principal, ErrAccessDenied)
}

// Close releases the key material. Idempotent.
func (k *Key) Close() error {
	if k.material != nil {
		return k.material.Close()
	}
	return nil
}

// Keyring holds the process-wide key set, resolved once at
// configuration time and shared by reference.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*Key
}

// New creates an empty keyring.
func New() *Keyring {
	return &Keyring{keys: make(map[string]*Key)}
}

// Add registers a key. Re-registering an existing id is a
// configuration mistake and returns an error.
func (r *Keyring) Add(key *Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[key.ID()]; exists {
		return fmt.Errorf("key %s already registered", key.ID())
	}
	r.keys[key.ID()] = key
	return nil
}

// Lookup returns the key with the given id, or an error if it is not
// registered.
func (r *Keyring) Lookup(id string) (*Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[id]
	if !ok {
		return nil, fmt.Errorf("key %s is not registered", id)
	}
	return key, nil
}

// Close releases all key material.
func (r *Keyring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstError error
	for _, key := range r.keys {
		if err := key.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}
