// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"path"
	"strings"
)

// ConfigurationError reports a malformed pipeline definition. It is
// returned before any stage runs; a pipeline that produces one never
// reaches the engine.
type ConfigurationError struct {
	Pipeline string
	Issues   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline %q: %d configuration issue(s): %s",
		e.Pipeline, len(e.Issues), strings.Join(e.Issues, "; "))
}

// Check validates p and converts any issues into a
// *ConfigurationError. Returns nil when the pipeline is well formed.
func Check(p *Pipeline) error {
	if issues := Validate(p); len(issues) > 0 {
		return &ConfigurationError{Pipeline: p.Name, Issues: issues}
	}
	return nil
}

// Validate checks a pipeline for structural issues and returns
// human-readable descriptions. An empty list means the pipeline is
// valid.
//
// Structural checks include:
//   - Name, KeyID, and at least one stage are required
//   - Stage and action names are non-empty and unique
//   - Each action's Kind matches exactly one kind-specific config
//   - Output artifact names are unique across the pipeline
//   - Every input is an output of an action in a strictly earlier stage
//   - Build selections cover exactly the action's declared outputs
//   - Deploy templates and override sources are declared inputs
func Validate(p *Pipeline) []string {
	var issues []string

	if p.Name == "" {
		issues = append(issues, "pipeline name is required")
	}
	if p.KeyID == "" {
		issues = append(issues, "key_id is required")
	}
	if len(p.Stages) == 0 {
		issues = append(issues, "pipeline has no stages (at least one is required)")
	}

	stageNames := make(map[string]bool)
	actionNames := make(map[string]bool)

	// producedBy maps artifact name to the index of the stage whose
	// action outputs it. Populated stage by stage so input checks see
	// only artifacts from earlier stages.
	producedBy := make(map[string]int)

	for stageIndex, stage := range p.Stages {
		stagePrefix := fmt.Sprintf("stages[%d]", stageIndex)
		if stage.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", stagePrefix))
		} else {
			stagePrefix = fmt.Sprintf("stages[%d] %q", stageIndex, stage.Name)
			if stageNames[stage.Name] {
				issues = append(issues, fmt.Sprintf("%s: duplicate stage name", stagePrefix))
			}
			stageNames[stage.Name] = true
		}
		if len(stage.Actions) == 0 {
			issues = append(issues, fmt.Sprintf("%s: stage has no actions", stagePrefix))
		}

		// Outputs declared in this stage. Merged into producedBy only
		// after the whole stage is processed: an action must not
		// consume a sibling's output.
		stageOutputs := make(map[string]int)

		for actionIndex, action := range stage.Actions {
			prefix := fmt.Sprintf("%s.actions[%d]", stagePrefix, actionIndex)
			if action.Name == "" {
				issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
			} else {
				prefix = fmt.Sprintf("%s.actions[%d] %q", stagePrefix, actionIndex, action.Name)
				if actionNames[action.Name] {
					issues = append(issues, fmt.Sprintf("%s: duplicate action name", prefix))
				}
				actionNames[action.Name] = true
			}

			issues = append(issues, validateKind(prefix, action)...)

			for _, output := range action.Outputs {
				if output == "" {
					issues = append(issues, fmt.Sprintf("%s: empty output artifact name", prefix))
					continue
				}
				if _, exists := producedBy[output]; exists {
					issues = append(issues, fmt.Sprintf("%s: output artifact %q already produced by an earlier stage", prefix, output))
					continue
				}
				if _, exists := stageOutputs[output]; exists {
					issues = append(issues, fmt.Sprintf("%s: output artifact %q already produced in this stage", prefix, output))
					continue
				}
				stageOutputs[output] = stageIndex
			}

			for _, input := range action.Inputs {
				if input == "" {
					issues = append(issues, fmt.Sprintf("%s: empty input artifact name", prefix))
					continue
				}
				if _, exists := producedBy[input]; !exists {
					issues = append(issues, fmt.Sprintf("%s: input artifact %q is not produced by any earlier stage", prefix, input))
				}
			}
		}

		for output, index := range stageOutputs {
			producedBy[output] = index
		}
	}

	return issues
}

// validateKind checks kind-specific configuration for one action.
func validateKind(prefix string, action Action) []string {
	var issues []string

	configured := 0
	if action.Source != nil {
		configured++
	}
	if action.Build != nil {
		configured++
	}
	if action.Deploy != nil {
		configured++
	}
	if configured > 1 {
		issues = append(issues, fmt.Sprintf("%s: source, build, and deploy config are mutually exclusive", prefix))
	}

	switch action.Kind {
	case KindSource:
		if action.Source == nil {
			issues = append(issues, fmt.Sprintf("%s: source config is required for kind source", prefix))
			break
		}
		if action.Source.Owner == "" || action.Source.Repo == "" || action.Source.Branch == "" {
			issues = append(issues, fmt.Sprintf("%s: source owner, repo, and branch are required", prefix))
		}
		if len(action.Inputs) > 0 {
			issues = append(issues, fmt.Sprintf("%s: source actions take no inputs", prefix))
		}
		if len(action.Outputs) != 1 {
			issues = append(issues, fmt.Sprintf("%s: source actions declare exactly one output", prefix))
		}

	case KindBuild:
		if action.Build == nil {
			issues = append(issues, fmt.Sprintf("%s: build config is required for kind build", prefix))
			break
		}
		issues = append(issues, validateBuild(prefix, action)...)

	case KindDeploy:
		if action.Deploy == nil {
			issues = append(issues, fmt.Sprintf("%s: deploy config is required for kind deploy", prefix))
			break
		}
		issues = append(issues, validateDeploy(prefix, action)...)

	case "":
		issues = append(issues, fmt.Sprintf("%s: kind is required", prefix))

	default:
		issues = append(issues, fmt.Sprintf("%s: unknown kind %q", prefix, action.Kind))
	}

	return issues
}

func validateBuild(prefix string, action Action) []string {
	var issues []string
	build := action.Build

	if len(build.Commands) == 0 {
		issues = append(issues, fmt.Sprintf("%s: build needs at least one command", prefix))
	}
	if len(action.Inputs) == 0 {
		issues = append(issues, fmt.Sprintf("%s: build actions need an input artifact", prefix))
	}
	if len(action.Outputs) == 0 {
		issues = append(issues, fmt.Sprintf("%s: build actions declare at least one output", prefix))
	}

	declared := make(map[string]bool, len(action.Outputs))
	for _, output := range action.Outputs {
		declared[output] = true
	}
	selected := make(map[string]bool, len(build.Artifacts))
	for index, selection := range build.Artifacts {
		selectionPrefix := fmt.Sprintf("%s.build.artifacts[%d]", prefix, index)
		if selection.Artifact == "" {
			issues = append(issues, fmt.Sprintf("%s: artifact name is required", selectionPrefix))
			continue
		}
		if !declared[selection.Artifact] {
			issues = append(issues, fmt.Sprintf("%s: selection for %q does not match a declared output", selectionPrefix, selection.Artifact))
		}
		if selected[selection.Artifact] {
			issues = append(issues, fmt.Sprintf("%s: duplicate selection for %q", selectionPrefix, selection.Artifact))
		}
		selected[selection.Artifact] = true

		if len(selection.Files) == 0 {
			issues = append(issues, fmt.Sprintf("%s: at least one file pattern is required", selectionPrefix))
		}
		if path.IsAbs(selection.BaseDir) || strings.Contains(selection.BaseDir, "..") {
			issues = append(issues, fmt.Sprintf("%s: base_dir must be a relative path inside the work directory", selectionPrefix))
		}
	}
	for _, output := range action.Outputs {
		if output != "" && !selected[output] {
			issues = append(issues, fmt.Sprintf("%s: declared output %q has no file selection", prefix, output))
		}
	}

	return issues
}

func validateDeploy(prefix string, action Action) []string {
	var issues []string
	deploy := action.Deploy

	if deploy.StackName == "" {
		issues = append(issues, fmt.Sprintf("%s: deploy.stack_name is required", prefix))
	}
	if deploy.AccountID == "" {
		issues = append(issues, fmt.Sprintf("%s: deploy.account_id is required", prefix))
	}
	if deploy.ExecutionRole == "" {
		issues = append(issues, fmt.Sprintf("%s: deploy.execution_role is required", prefix))
	}
	if deploy.OrchestrationRole == "" {
		issues = append(issues, fmt.Sprintf("%s: deploy.orchestration_role is required", prefix))
	}
	if len(action.Outputs) > 0 {
		issues = append(issues, fmt.Sprintf("%s: deploy actions declare no outputs", prefix))
	}

	inputs := make(map[string]bool, len(action.Inputs))
	for _, input := range action.Inputs {
		inputs[input] = true
	}
	if deploy.Template == "" {
		issues = append(issues, fmt.Sprintf("%s: deploy.template is required", prefix))
	} else if !inputs[deploy.Template] {
		issues = append(issues, fmt.Sprintf("%s: deploy.template %q is not a declared input", prefix, deploy.Template))
	}
	for index, override := range deploy.Overrides {
		overridePrefix := fmt.Sprintf("%s.deploy.overrides[%d]", prefix, index)
		if override.Parameter == "" {
			issues = append(issues, fmt.Sprintf("%s: parameter is required", overridePrefix))
		}
		if override.FromArtifact == "" {
			issues = append(issues, fmt.Sprintf("%s: from_artifact is required", overridePrefix))
		} else if !inputs[override.FromArtifact] {
			issues = append(issues, fmt.Sprintf("%s: from_artifact %q is not a declared input", overridePrefix, override.FromArtifact))
		}
	}

	return issues
}
