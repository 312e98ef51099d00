// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore implements the encrypted staging area that
// carries artifacts between pipeline actions.
//
// Every payload is compressed, then sealed with a per-artifact key
// derived (HKDF-SHA256) from the owning encryption key before it
// touches disk. Reading back requires a decrypt grant on that key —
// possession of the store directory alone yields nothing.
//
// Publication is write-then-publish: payload and metadata record are
// staged under tmp/ and renamed into place before the in-memory index
// learns the artifact exists, so a Get can never observe a
// half-written artifact. Multi-artifact producers (the build
// executor) use [Store.Begin] to commit their whole declared output
// set atomically or not at all.
//
// [Store.LocationOf] computes an artifact's logical location from its
// name and run alone. It is callable before the payload exists, which
// is what lets the deploy action bind parameter overrides to artifact
// locations without streaming payload bytes through itself.
//
// Committed artifacts are immutable, but immutability is scoped to a
// run: [Store.ForRun] derives a view whose names carry the run
// identifier, so every execution publishes its outputs under the same
// declared names without colliding with earlier runs.
package artifactstore
