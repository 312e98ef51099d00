// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinedef parses pipeline definition files. Definitions
// are authored as JSONC (JSON extended with // line comments, /* block
// comments */, and trailing commas) and parse into
// [pipeline.Pipeline] values.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → pipeline.Pipeline
//  2. pipeline.Check: structural validation before execution
package pipelinedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/convoy-ci/convoy/lib/pipeline"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Pipeline.
func Parse(data []byte) (*pipeline.Pipeline, error) {
	stripped := jsonc.ToJSON(data)

	var p pipeline.Pipeline
	if err := json.Unmarshal(stripped, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	return &p, nil
}

// ReadFile reads a JSONC pipeline file and parses it. The pipeline's
// name defaults to the file's base name when the definition leaves it
// empty.
func ReadFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = NameFromPath(path)
	}
	return p, nil
}

// NameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and extension: "deploy/webapp.jsonc" returns
// "webapp".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
