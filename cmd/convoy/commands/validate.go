// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/convoy-ci/convoy/cmd/convoy/cli"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/pipelinedef"
)

func validateCommand() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:    "validate",
		Summary: "Check a pipeline definition file",
		Description: `Parse a pipeline definition (JSONC) and report every structural
issue: missing configs, dangling artifact references, outputs
consumed in the stage that produces them, and the rest.

Exits 0 when the definition is valid, 1 when it is not.`,
		Usage: "convoy validate <pipeline.jsonc> [flags]",
		Examples: []cli.Example{
			{
				Description: "Validate a definition",
				Command:     "convoy validate release.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			flagSet.BoolVar(&asJSON, "json", false, "report issues as JSON")
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

			issues := pipeline.Validate(p)
			if asJSON {
				report := struct {
					Pipeline string   `json:"pipeline"`
					Valid    bool     `json:"valid"`
					Issues   []string `json:"issues"`
				}{p.Name, len(issues) == 0, issues}
				if report.Issues == nil {
					report.Issues = []string{}
				}
				if err := cli.WriteJSON(report); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Printf("%s: valid (%d stages)\n", p.Name, len(p.Stages))
			} else {
				fmt.Fprintf(os.Stderr, "%s: %d issue(s)\n", p.Name, len(issues))
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
			}

			if len(issues) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
