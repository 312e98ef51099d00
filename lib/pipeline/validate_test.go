// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"strings"
	"testing"
)

// validPipeline returns a well-formed three-stage pipeline used as the
// baseline for mutation tests.
func validPipeline() *Pipeline {
	return &Pipeline{
		Name:  "webapp",
		KeyID: "artifact-key",
		Stages: []Stage{
			{
				Name: "source",
				Actions: []Action{{
					Name:    "pull",
					Kind:    KindSource,
					Outputs: []string{"source"},
					Source:  &SourceConfig{Owner: "convoy-ci", Repo: "webapp", Branch: "main"},
				}},
			},
			{
				Name: "build",
				Actions: []Action{{
					Name:    "compile",
					Kind:    KindBuild,
					Inputs:  []string{"source"},
					Outputs: []string{"bundle", "template"},
					Build: &BuildConfig{
						Install:  []string{"true"},
						Commands: []string{"make bundle"},
						Artifacts: []Selection{
							{Artifact: "bundle", BaseDir: "dist", Files: []string{"*.tar"}},
							{Artifact: "template", Files: []string{"stack.json"}},
						},
					},
				}},
			},
			{
				Name: "deploy",
				Actions: []Action{{
					Name:   "apply",
					Kind:   KindDeploy,
					Inputs: []string{"bundle", "template"},
					Deploy: &DeployConfig{
						StackName:         "webapp-prod",
						Template:          "template",
						AccountID:         "222200004444",
						ExecutionRole:     "change-execution",
						OrchestrationRole: "pipeline-orchestration",
						Overrides: []Override{
							{Parameter: "BundleLocation", FromArtifact: "bundle"},
						},
					},
				}},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if issues := Validate(validPipeline()); len(issues) != 0 {
		t.Errorf("Validate() = %v, want no issues", issues)
	}
	if err := Check(validPipeline()); err != nil {
		t.Errorf("Check() error: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
		want   string
	}{
		{
			name:   "missing key id",
			mutate: func(p *Pipeline) { p.KeyID = "" },
			want:   "key_id is required",
		},
		{
			name:   "no stages",
			mutate: func(p *Pipeline) { p.Stages = nil },
			want:   "has no stages",
		},
		{
			name: "dangling input",
			mutate: func(p *Pipeline) {
				p.Stages[2].Actions[0].Inputs = append(p.Stages[2].Actions[0].Inputs, "ghost")
			},
			want: "not produced by any earlier stage",
		},
		{
			name: "sibling output consumed in same stage",
			mutate: func(p *Pipeline) {
				p.Stages[1].Actions = append(p.Stages[1].Actions, Action{
					Name:    "package",
					Kind:    KindBuild,
					Inputs:  []string{"bundle"},
					Outputs: []string{"packaged"},
					Build: &BuildConfig{
						Commands:  []string{"true"},
						Artifacts: []Selection{{Artifact: "packaged", Files: []string{"*"}}},
					},
				})
			},
			want: "not produced by any earlier stage",
		},
		{
			name: "duplicate output across stages",
			mutate: func(p *Pipeline) {
				p.Stages[1].Actions[0].Outputs[0] = "source"
				p.Stages[1].Actions[0].Build.Artifacts[0].Artifact = "source"
			},
			want: "already produced by an earlier stage",
		},
		{
			name: "unknown kind",
			mutate: func(p *Pipeline) {
				p.Stages[1].Actions[0].Kind = "test"
			},
			want: `unknown kind "test"`,
		},
		{
			name: "build without matching selection",
			mutate: func(p *Pipeline) {
				p.Stages[1].Actions[0].Build.Artifacts = p.Stages[1].Actions[0].Build.Artifacts[:1]
			},
			want: "has no file selection",
		},
		{
			name: "base dir escapes work directory",
			mutate: func(p *Pipeline) {
				p.Stages[1].Actions[0].Build.Artifacts[0].BaseDir = "../outside"
			},
			want: "base_dir must be a relative path",
		},
		{
			name: "deploy template not an input",
			mutate: func(p *Pipeline) {
				p.Stages[2].Actions[0].Deploy.Template = "missing"
			},
			want: "not a declared input",
		},
		{
			name: "override source not an input",
			mutate: func(p *Pipeline) {
				p.Stages[2].Actions[0].Deploy.Overrides[0].FromArtifact = "missing"
			},
			want: "not a declared input",
		},
		{
			name: "deploy with outputs",
			mutate: func(p *Pipeline) {
				p.Stages[2].Actions[0].Outputs = []string{"report"}
			},
			want: "deploy actions declare no outputs",
		},
		{
			name: "source with inputs",
			mutate: func(p *Pipeline) {
				p.Stages[0].Actions[0].Inputs = []string{"source"}
			},
			want: "source actions take no inputs",
		},
		{
			name: "missing orchestration role",
			mutate: func(p *Pipeline) {
				p.Stages[2].Actions[0].Deploy.OrchestrationRole = ""
			},
			want: "orchestration_role is required",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := validPipeline()
			test.mutate(p)

			issues := Validate(p)
			if len(issues) == 0 {
				t.Fatalf("Validate() accepted an invalid pipeline, want issue containing %q", test.want)
			}
			found := false
			for _, issue := range issues {
				if strings.Contains(issue, test.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want an issue containing %q", issues, test.want)
			}
		})
	}
}

func TestCheckReturnsConfigurationError(t *testing.T) {
	p := validPipeline()
	p.Stages[2].Actions[0].Inputs = append(p.Stages[2].Actions[0].Inputs, "ghost")

	err := Check(p)
	if err == nil {
		t.Fatal("Check() accepted an invalid pipeline")
	}
	configErr, ok := err.(*ConfigurationError)
	if !ok {
		t.Fatalf("Check() error type = %T, want *ConfigurationError", err)
	}
	if configErr.Pipeline != "webapp" {
		t.Errorf("ConfigurationError.Pipeline = %q, want %q", configErr.Pipeline, "webapp")
	}
}

func TestStatusString(t *testing.T) {
	for status, want := range map[Status]string{
		StatusPending:   "pending",
		StatusRunning:   "running",
		StatusSucceeded: "succeeded",
		StatusFailed:    "failed",
	} {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
	if StatusRunning.Terminal() {
		t.Error("StatusRunning.Terminal() = true, want false")
	}
	if !StatusFailed.Terminal() {
		t.Error("StatusFailed.Terminal() = false, want true")
	}
}
