// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust resolves foreign-account role identities and mints
// scoped sessions for acting in those accounts.
//
// Role handles can only be obtained through [Broker.ResolveRole], and
// a handle's trusted operation set is fixed at configuration time —
// no component can fabricate a session outside the broker's check.
// [Broker.Assume] fails closed: if the requested operations are not a
// subset of the handle's trusted set, it returns [ErrTrustDenied]
// without contacting the foreign account.
//
// Sessions are scoped to a single deploy invocation and expire; they
// are never cached across pipeline runs, which bounds the blast
// radius of a leaked credential.
package trust
