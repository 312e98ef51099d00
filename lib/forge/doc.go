// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package forge is the client for the external revision source. It
// covers exactly what the source trigger needs: look up the head
// revision of a branch (with ETag-based conditional polling, so an
// unchanged branch costs a 304 and no body) and download a revision's
// archive for materialization as the source artifact.
//
// The auth token lives in a [secret.Buffer] and reaches the wire only
// as a bearer header. It is never accepted from pipeline definitions.
package forge
