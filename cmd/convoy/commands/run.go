// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/convoy-ci/convoy/cmd/convoy/cli"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/pipelinedef"
)

func runCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "run",
		Summary: "Execute a pipeline once",
		Description: `Run one pipeline execution to a terminal state and print the run
report as JSON. When the pipeline has a source stage, the current
branch head is resolved first and the run executes that revision.

Exits 0 on success, 1 when the run fails; the report names the
first failing action and its failure kind either way.`,
		Usage: "convoy run <pipeline.jsonc> [flags]",
		Examples: []cli.Example{
			{
				Description: "Run a pipeline with an explicit config",
				Command:     "convoy run release.jsonc --config /etc/convoy/config.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (defaults to $CONVOY_CONFIG)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one pipeline file, got %d args", len(args))
			}
			p, err := pipelinedef.ReadFile(args[0])
			if err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("pipeline", p.Name)
			rt, err := buildRuntime(configPath, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			revision, err := rt.headRevision(ctx, p)
			if err != nil {
				return err
			}

			result, runErr := rt.runOnce(ctx, p, revision)
			if result == nil {
				return runErr
			}
			if err := cli.WriteJSON(result); err != nil {
				return err
			}
			if result.Status != pipeline.StatusSucceeded {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
