// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "encoding/json"

// Kind identifies what an action does.
type Kind string

const (
	// KindSource materializes a revision from the external source as
	// the pipeline's source artifact.
	KindSource Kind = "source"

	// KindBuild runs a build definition against an input artifact.
	KindBuild Kind = "build"

	// KindDeploy applies an infrastructure change in a foreign
	// account under an assumed role.
	KindDeploy Kind = "deploy"
)

// Status is the execution state of an action or stage.
type Status int

const (
	// StatusPending means execution has not started.
	StatusPending Status = iota

	// StatusRunning means execution is in progress.
	StatusRunning

	// StatusSucceeded is the terminal success state.
	StatusSucceeded

	// StatusFailed is the terminal failure state.
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is succeeded or failed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// MarshalJSON encodes the status as its lowercase name, which is the
// form run reports use.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Pipeline is an ordered sequence of stages sharing one artifact
// encryption key. The JSON form is what pipeline definition files
// (JSONC) parse into.
type Pipeline struct {
	// Name identifies the pipeline in reports and artifact store
	// paths.
	Name string `json:"name"`

	// KeyID names the artifact encryption key all of this pipeline's
	// artifacts are written under. Every principal that produces or
	// consumes an artifact needs the matching grant on this key.
	KeyID string `json:"key_id"`

	// Stages run strictly in declared order.
	Stages []Stage `json:"stages"`
}

// Stage is a barrier-separated phase: its actions start only after
// every action of the previous stage has succeeded, and run
// concurrently with each other.
type Stage struct {
	Name string `json:"name"`

	Actions []Action `json:"actions"`
}

// Action is a unit of work within a stage.
type Action struct {
	Name string `json:"name"`

	Kind Kind `json:"kind"`

	// Inputs are artifact names this action reads. Each must be an
	// output of an action in a strictly earlier stage.
	Inputs []string `json:"inputs,omitempty"`

	// Outputs are artifact names this action produces. Names are
	// unique across the pipeline.
	Outputs []string `json:"outputs,omitempty"`

	// Exactly one of the following is set, matching Kind.
	Source *SourceConfig `json:"source,omitempty"`
	Build  *BuildConfig  `json:"build,omitempty"`
	Deploy *DeployConfig `json:"deploy,omitempty"`
}

// SourceConfig identifies the external revision source. The auth
// token is deliberately absent: it comes from the environment via the
// master config, never from the pipeline definition.
type SourceConfig struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// BuildConfig is an ordered pair of shell command groups plus the
// selection rules naming which produced files become which output
// artifacts.
type BuildConfig struct {
	// Install commands run before Commands (dependency setup).
	Install []string `json:"install,omitempty"`

	// Commands is the build command group. At least one is required.
	Commands []string `json:"commands"`

	// Artifacts maps declared outputs to file selections. There must
	// be exactly one selection per declared output artifact.
	Artifacts []Selection `json:"artifacts"`
}

// Selection names the files that become one output artifact.
type Selection struct {
	// Artifact is the output artifact name this selection feeds.
	Artifact string `json:"artifact"`

	// BaseDir is the directory the patterns are evaluated in,
	// relative to the build working directory.
	BaseDir string `json:"base_dir,omitempty"`

	// Files are glob patterns relative to BaseDir.
	Files []string `json:"files"`
}

// DeployConfig drives the cross-account deploy action.
type DeployConfig struct {
	// StackName is the name of the change target in the foreign
	// account (created if missing, updated in place if present).
	StackName string `json:"stack_name"`

	// Template is the input artifact holding the change template.
	Template string `json:"template"`

	// AccountID is the foreign account identifier.
	AccountID string `json:"account_id"`

	// ExecutionRole is the foreign-account role that applies the
	// change. OrchestrationRole is the foreign-account role the
	// pipeline uses for cross-account access. The two are
	// independently configured — neither implies the other.
	ExecutionRole     string `json:"execution_role"`
	OrchestrationRole string `json:"orchestration_role"`

	// Overrides bind template parameters to artifact locations,
	// resolved at deploy time from the store without reading payload
	// bytes.
	Overrides []Override `json:"overrides,omitempty"`
}

// Override maps one template parameter to the resolved location of an
// input artifact.
type Override struct {
	// Parameter is the template parameter name.
	Parameter string `json:"parameter"`

	// FromArtifact is the input artifact whose store location
	// supplies the value.
	FromArtifact string `json:"from_artifact"`
}
