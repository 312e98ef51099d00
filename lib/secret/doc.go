// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive material:
// the artifact encryption key, sealed-key identities, and revision
// source tokens.
//
// A Buffer lives outside the Go heap in an anonymous mmap region that
// is locked into RAM (mlock, so it cannot be swapped to disk) and
// excluded from core dumps (MADV_DONTDUMP). Close zeros the region
// before unmapping it. Because the garbage collector never sees the
// region, it cannot copy or relocate the secret.
package secret
