// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/convoy-ci/convoy/cmd/convoy/cli"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/sealed"
)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate identities and sealed encryption keys",
		Description: `Generate the key material convoy needs: an age identity for the
operator, and artifact encryption keys sealed to identity
recipients. Sealed key files are safe to keep next to the config;
only a holder of a recipient identity can unseal them.`,
		Subcommands: []*cli.Command{
			keygenIdentityCommand(),
			keygenKeyCommand(),
		},
	}
}

func keygenIdentityCommand() *cli.Command {
	var outPath string

	return &cli.Command{
		Name:    "identity",
		Summary: "Generate an age identity",
		Description: `Generate an age x25519 identity. The private identity is written to
the output file (mode 0600); the public recipient is printed to
stdout for use with "keygen key --recipient".`,
		Usage: "convoy keygen identity --out <file>",
		Examples: []cli.Example{
			{
				Description: "Generate the operator identity",
				Command:     "convoy keygen identity --out /etc/convoy/identity",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("identity", pflag.ContinueOnError)
			flagSet.StringVar(&outPath, "out", "", "file to write the identity to (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			if err := os.WriteFile(outPath, keypair.Identity.Bytes(), 0o600); err != nil {
				return fmt.Errorf("writing identity: %w", err)
			}
			fmt.Println(keypair.Recipient)
			return nil
		},
	}
}

func keygenKeyCommand() *cli.Command {
	var outPath string
	var recipients []string

	return &cli.Command{
		Name:    "key",
		Summary: "Generate a sealed artifact encryption key",
		Description: `Generate a fresh 256-bit artifact encryption key and seal it to the
given age recipients. The plaintext key never touches disk.`,
		Usage: "convoy keygen key --recipient <age1...> --out <file>",
		Examples: []cli.Example{
			{
				Description: "Generate a pipeline key sealed to the operator identity",
				Command:     "convoy keygen key --recipient age1q3w... --out /etc/convoy/keys/release-key.age",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("key", pflag.ContinueOnError)
			flagSet.StringVar(&outPath, "out", "", "file to write the sealed key to (required)")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age recipient (repeatable, at least one)")
			return flagSet
		},
		Run: func(args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}

			material := make([]byte, keyring.KeySize)
			if _, err := rand.Read(material); err != nil {
				return fmt.Errorf("generating key material: %w", err)
			}
			ciphertext, err := sealed.Seal(material, recipients)
			for i := range material {
				material[i] = 0
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, []byte(ciphertext), 0o600); err != nil {
				return fmt.Errorf("writing sealed key: %w", err)
			}
			return nil
		},
	}
}
