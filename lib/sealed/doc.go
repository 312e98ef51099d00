// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the operations Convoy needs
// to keep the artifact encryption key off disk in plaintext: generate
// x25519 keypairs, seal key material to one or more recipients, and
// unseal with an identity held in a [secret.Buffer].
//
// Ciphertext is base64-encoded so it can live in config-adjacent text
// files. The artifact master key is generated once (convoy keygen),
// sealed to the operator's public key, and unsealed at process start.
package sealed
