// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the convoy CLI command tree.
package commands

import (
	"github.com/convoy-ci/convoy/cmd/convoy/cli"
)

// Root builds and returns the complete convoy command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "convoy",
		Description: `Convoy: cross-account software delivery pipelines.

Sequence source, build, and deploy stages over an encrypted artifact
store, with explicit key grants and fail-closed cross-account trust.`,
		Subcommands: []*cli.Command{
			validateCommand(),
			runCommand(),
			watchCommand(),
			keygenCommand(),
			versionCommand(),
		},
	}
}
