// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the operator configuration: the
// YAML file that declares the artifact store, the encryption keys and
// their grants, the foreign-account trust directory, the forge
// connection, and the deploy limits.
//
// The file is found through the --config flag or the CONVOY_CONFIG
// environment variable. Unknown fields are rejected so a typoed grant
// cannot silently widen into no grant at all.
//
// [Config.Keyring] and [Config.Directory] turn the declarations into
// the live authorization objects; both fail closed on anything they
// do not recognize.
package config
