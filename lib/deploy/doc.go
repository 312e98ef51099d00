// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package deploy implements the cross-account deploy action: assume
// the foreign-account roles through the trust broker, bind template
// parameters to artifact locations, submit the change with
// create-or-update semantics, and wait — under a bounded timeout —
// for the foreign account to reach a terminal state.
//
// Two independently configured roles are involved. The execution role
// (trusted for change execution) authorizes the change submission;
// the orchestration role (trusted for pipeline orchestration)
// authorizes the status polling. Neither operation set is inferred
// from the other.
//
// Parameter overrides carry artifact locations, never artifact bytes:
// the deploy action does not stream build payloads through itself.
//
// All failure modes are fatal for the run and never auto-retried:
// a trust refusal or a rejected change is a misconfiguration, and a
// timed-out apply may still be in progress in the foreign account
// and must be reconciled out of band.
package deploy
