// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring manages the symmetric artifact encryption keys and
// their per-principal grant maps. A grant names a principal and the
// operations (encrypt, decrypt) it may perform with a key.
//
// Grants are additive for the lifetime of a pipeline run — a principal
// that can read an artifact keeps that ability until the process
// exits. Authorization fails closed: a missing grant is a denial, and
// nothing in this package widens a grant to recover from one.
//
// Key material lives in [secret.Buffer] regions and, at rest, in files
// sealed with lib/sealed.
package keyring
