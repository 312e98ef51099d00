// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/convoy-ci/convoy/cmd/convoy/cli"
	"github.com/convoy-ci/convoy/lib/forge"
	"github.com/convoy-ci/convoy/lib/pipelinedef"
	"github.com/convoy-ci/convoy/lib/trigger"
)

func watchCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "watch",
		Summary: "Poll the source branch and run the pipeline on new revisions",
		Description: `Watch the pipeline's source branch and start an execution for every
new revision. At most one execution runs at a time; revisions
arriving during a run coalesce into a single follow-up execution.

Runs until interrupted.`,
		Usage: "convoy watch <pipeline.jsonc> [flags]",
		Examples: []cli.Example{
			{
				Description: "Watch with the poll interval from the config",
				Command:     "convoy watch release.jsonc --config /etc/convoy/config.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
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
			watch := sourceWatch(p)
			if watch == nil {
				return fmt.Errorf("pipeline %q has no source stage to watch", p.Name)
			}

			logger := cli.NewCommandLogger().With("pipeline", p.Name)
			rt, err := buildRuntime(configPath, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.forge == nil {
				return errors.New("watch requires a configured forge source")
			}

			trig, err := trigger.New(trigger.Config{
				Source:   rt.forge,
				Watch:    *watch,
				Interval: rt.config.Source.PollInterval.Std(),
				Clock:    rt.clock,
				Logger:   logger,
				Launch: func(ctx context.Context, revision forge.Revision) error {
					result, err := rt.runOnce(ctx, p, revision)
					if result != nil {
						if writeErr := cli.WriteJSON(result); writeErr != nil {
							return writeErr
						}
					}
					return err
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := trig.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
