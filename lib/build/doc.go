// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package build runs build definitions: an ordered pair of shell
// command groups (install, then build) executed in a scratch work
// directory seeded from the source artifact, followed by artifact
// selection that turns produced files into output artifacts.
//
// Failure of any command is fatal for the action and publishes
// nothing: output artifacts are staged against the store and
// committed all-or-nothing, so a failed build can never leave a
// partial output set behind.
package build
