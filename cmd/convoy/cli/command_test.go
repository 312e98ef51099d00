// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "convoy",
		Subcommands: []*Command{
			{
				Name: "validate",
				Run: func(args []string) error {
					called = "validate"
					return nil
				},
			},
			{
				Name: "run",
				Run: func(args []string) error {
					called = "run"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"run"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "run" {
		t.Errorf("dispatched to %q, want %q", called, "run")
	}
}

func TestCommand_Execute_PassesRemainingArgs(t *testing.T) {
	var receivedArgs []string

	root := &Command{
		Name: "convoy",
		Subcommands: []*Command{
			{
				Name: "validate",
				Run: func(args []string) error {
					receivedArgs = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"validate", "pipeline.jsonc"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "pipeline.jsonc" {
		t.Errorf("args = %v, want [pipeline.jsonc]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var configPath string
	var positional string

	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				positional = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--config", "/etc/convoy.yaml", "pipeline.jsonc"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/etc/convoy.yaml" {
		t.Errorf("configPath = %q, want %q", configPath, "/etc/convoy.yaml")
	}
	if positional != "pipeline.jsonc" {
		t.Errorf("positional = %q, want %q", positional, "pipeline.jsonc")
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "convoy",
		Subcommands: []*Command{
			{Name: "validate", Run: func(args []string) error { return nil }},
			{Name: "watch", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"validte"})
	if err == nil {
		t.Fatal("Execute() accepted an unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "validate"`) {
		t.Errorf("error %q does not suggest \"validate\"", err)
	}
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Errorf("unknown command error is %T, want *UsageError", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("config", "", "config file path")
			flagSet.Bool("json", false, "JSON output")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--confg", "/etc/convoy.yaml"})
	if err == nil {
		t.Fatal("Execute() accepted an unknown flag")
	}
	if !strings.Contains(err.Error(), "--config") {
		t.Errorf("error %q does not suggest --config", err)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	root := &Command{
		Name:    "convoy",
		Summary: "software delivery pipelines",
		Subcommands: []*Command{
			{Name: "run", Summary: "execute a pipeline", Run: func(args []string) error { return nil }},
		},
	}

	// Help never dispatches and never errors.
	if err := root.Execute([]string{"--help"}); err != nil {
		t.Errorf("Execute(--help) error: %v", err)
	}
}

func TestCommand_PrintHelp_ListsSubcommands(t *testing.T) {
	root := &Command{
		Name: "convoy",
		Subcommands: []*Command{
			{Name: "validate", Summary: "check a pipeline definition"},
			{Name: "run", Summary: "execute a pipeline once"},
		},
	}

	var out bytes.Buffer
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"validate", "check a pipeline definition", "run", "execute a pipeline once"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"validte", "validate", 1},
		{"wtach", "watch", 2},
		{"keygen", "run", 5},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
