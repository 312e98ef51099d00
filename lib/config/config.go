// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/secret"
	"github.com/convoy-ci/convoy/lib/trust"
)

// EnvConfig is the environment variable naming the config file when
// --config is not given.
const EnvConfig = "CONVOY_CONFIG"

// Config is the root of the operator configuration file.
type Config struct {
	// Principal is the identity the pipeline engine acts as when it
	// encrypts and decrypts artifacts.
	Principal string `yaml:"principal"`

	// IdentityFile holds the age identity that unseals the key
	// files.
	IdentityFile string `yaml:"identity_file"`

	// RunLog, when set, is a JSONL file that run results are
	// appended to, one object per line.
	RunLog string `yaml:"run_log,omitempty"`

	Store    StoreConfig     `yaml:"store"`
	Keys     []KeyConfig     `yaml:"keys"`
	Accounts []AccountConfig `yaml:"accounts"`
	Source   SourceConfig    `yaml:"source"`
	Build    BuildConfig     `yaml:"build"`
	Deploy   DeployConfig    `yaml:"deploy"`
}

// StoreConfig locates the artifact store.
type StoreConfig struct {
	Root   string `yaml:"root"`
	Bucket string `yaml:"bucket"`

	// Compression selects the payload compression: "zstd" (the
	// default), "lz4", or "none".
	Compression string `yaml:"compression,omitempty"`
}

// KeyConfig declares one sealed encryption key and its grants.
type KeyConfig struct {
	ID     string        `yaml:"id"`
	File   string        `yaml:"file"`
	Grants []GrantConfig `yaml:"grants"`
}

// GrantConfig grants one principal a set of key operations
// ("encrypt", "decrypt").
type GrantConfig struct {
	Principal  string   `yaml:"principal"`
	Operations []string `yaml:"operations"`
}

// AccountConfig declares one foreign account and the roles it
// exposes.
type AccountConfig struct {
	ID    string       `yaml:"id"`
	Roles []RoleConfig `yaml:"roles"`
}

// RoleConfig declares one foreign-account role and its trusted
// operations ("change:execute", "pipeline:orchestrate").
type RoleConfig struct {
	Name       string   `yaml:"name"`
	Operations []string `yaml:"operations"`
}

// SourceConfig connects to the forge.
type SourceConfig struct {
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the forge
	// token. The token itself never appears in the file.
	TokenEnv string `yaml:"token_env"`

	PollInterval Duration `yaml:"poll_interval,omitempty"`
}

// BuildConfig locates build working storage.
type BuildConfig struct {
	WorkRoot string `yaml:"work_root"`
}

// DeployConfig bounds deploy waits and locates the file target.
type DeployConfig struct {
	Timeout      Duration `yaml:"timeout,omitempty"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`
	TargetRoot   string   `yaml:"target_root"`
}

// Path resolves the config file path from the flag value, falling
// back to CONVOY_CONFIG.
func Path(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no config file: pass --config or set %s", EnvConfig)
}

// Load reads, parses, and validates a config file. Unknown fields
// are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// Parse parses and validates config bytes.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var config Config
	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config file is empty")
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if c.Principal == "" {
		add("principal is required")
	}
	if c.Store.Root == "" {
		add("store.root is required")
	}
	if c.Store.Bucket == "" {
		add("store.bucket is required")
	}
	if c.Store.Compression != "" {
		if _, err := artifactstore.ParseCompressionTag(c.Store.Compression); err != nil {
			add("store.compression: %v", err)
		}
	}
	if len(c.Keys) > 0 && c.IdentityFile == "" {
		add("identity_file is required when keys are declared")
	}

	keyIDs := make(map[string]bool, len(c.Keys))
	for i, key := range c.Keys {
		if key.ID == "" {
			add("keys[%d]: id is required", i)
		} else if keyIDs[key.ID] {
			add("keys[%d]: duplicate key id %q", i, key.ID)
		}
		keyIDs[key.ID] = true
		if key.File == "" {
			add("keys[%d]: file is required", i)
		}
		for j, grant := range key.Grants {
			if grant.Principal == "" {
				add("keys[%d].grants[%d]: principal is required", i, j)
			}
			if len(grant.Operations) == 0 {
				add("keys[%d].grants[%d]: at least one operation is required", i, j)
			}
			for _, op := range grant.Operations {
				if _, err := keyring.ParseOperation(op); err != nil {
					add("keys[%d].grants[%d]: %v", i, j, err)
				}
			}
		}
	}

	accountIDs := make(map[string]bool, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.ID == "" {
			add("accounts[%d]: id is required", i)
		} else if accountIDs[account.ID] {
			add("accounts[%d]: duplicate account id %q", i, account.ID)
		}
		accountIDs[account.ID] = true
		for j, role := range account.Roles {
			if role.Name == "" {
				add("accounts[%d].roles[%d]: name is required", i, j)
			}
			if len(role.Operations) == 0 {
				add("accounts[%d].roles[%d]: at least one operation is required", i, j)
			}
			for _, op := range role.Operations {
				if _, err := trust.ParseOperation(op); err != nil {
					add("accounts[%d].roles[%d]: %v", i, j, err)
				}
			}
		}
	}

	if c.Source.BaseURL != "" && c.Source.TokenEnv == "" {
		add("source.token_env is required when source.base_url is set")
	}
	if c.Source.PollInterval < 0 {
		add("source.poll_interval must not be negative")
	}
	if c.Deploy.Timeout < 0 || c.Deploy.PollInterval < 0 {
		add("deploy timeouts must not be negative")
	}

	if len(issues) > 0 {
		return fmt.Errorf("%d issue(s): %s", len(issues), strings.Join(issues, "; "))
	}
	return nil
}

// CompressionTag returns the configured store compression, defaulting
// to zstd.
func (c *Config) CompressionTag() artifactstore.CompressionTag {
	if c.Store.Compression == "" {
		return artifactstore.CompressionZstd
	}
	tag, err := artifactstore.ParseCompressionTag(c.Store.Compression)
	if err != nil {
		// validate already rejected unknown names.
		return artifactstore.CompressionZstd
	}
	return tag
}

// Identity loads the age identity file into locked memory.
func (c *Config) Identity() (*secret.Buffer, error) {
	data, err := os.ReadFile(c.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	return secret.NewFromBytes(data)
}

// Keyring unseals every declared key with the identity and applies
// its grants. The identity buffer is borrowed, not closed.
func (c *Config) Keyring(identity *secret.Buffer) (*keyring.Keyring, error) {
	keys := keyring.New()
	for _, declared := range c.Keys {
		key, err := keyring.LoadSealedKey(declared.ID, declared.File, identity)
		if err != nil {
			keys.Close()
			return nil, err
		}
		for _, grant := range declared.Grants {
			operations := make([]keyring.Operation, 0, len(grant.Operations))
			for _, name := range grant.Operations {
				op, err := keyring.ParseOperation(name)
				if err != nil {
					keys.Close()
					return nil, err
				}
				operations = append(operations, op)
			}
			key.Grant(keyring.Principal(grant.Principal), operations...)
		}
		if err := keys.Add(key); err != nil {
			keys.Close()
			return nil, err
		}
	}
	return keys, nil
}

// Directory builds the trust directory from the account
// declarations.
func (c *Config) Directory() (*trust.Directory, error) {
	directory := trust.NewDirectory()
	for _, account := range c.Accounts {
		for _, role := range account.Roles {
			operations := make([]trust.Operation, 0, len(role.Operations))
			for _, name := range role.Operations {
				op, err := trust.ParseOperation(name)
				if err != nil {
					return nil, err
				}
				operations = append(operations, op)
			}
			if err := directory.AddRole(account.ID, role.Name, operations...); err != nil {
				return nil, err
			}
		}
	}
	return directory, nil
}

// ForgeToken reads the forge token from the configured environment
// variable into locked memory.
func (c *Config) ForgeToken() (*secret.Buffer, error) {
	if c.Source.TokenEnv == "" {
		return nil, errors.New("source.token_env is not configured")
	}
	token := os.Getenv(c.Source.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("environment variable %s is empty", c.Source.TokenEnv)
	}
	return secret.NewFromBytes([]byte(token))
}
