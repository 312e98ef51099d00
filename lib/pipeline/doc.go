// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline defines the Convoy pipeline model — stages, actions,
// and their artifact wiring — and the structural validation that gates
// execution.
//
// A pipeline is constructed once at configuration time and is immutable
// thereafter; only execution state (action status) changes during a
// run. Validation turns what would otherwise be late runtime failures
// (an action reading an artifact nothing produced) into an upfront
// [ConfigurationError], before any stage starts.
package pipeline
