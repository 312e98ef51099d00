// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the convoy binary: a
// small tree of [Command] values dispatched by name, with pflag flag
// parsing, structured help output, and typo suggestions for unknown
// commands and flags.
//
// Commands return errors instead of exiting; main decides the exit
// code. A command that has already printed its own report returns
// [ExitError] to set the code without a redundant error line.
package cli
