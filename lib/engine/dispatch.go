// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/build"
	"github.com/convoy-ci/convoy/lib/deploy"
	"github.com/convoy-ci/convoy/lib/forge"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
)

// SourceRunner materializes a source action for the run's revision.
// [trigger.Materializer] satisfies it.
type SourceRunner interface {
	Materialize(ctx context.Context, action pipeline.Action, revision forge.Revision) (artifactstore.Ref, error)
}

// Dispatcher is the standard Runner: it routes each action to the
// component that handles its kind. A Dispatcher is built per run,
// bound to the revision that triggered it.
type Dispatcher struct {
	// Source handles source actions. May be nil for pipelines with
	// no source stage.
	Source SourceRunner

	// Builder handles build actions.
	Builder *build.Executor

	// Deployer handles deploy actions.
	Deployer *deploy.Deployer

	// Revision is the revision this run executes.
	Revision forge.Revision

	// KeyID and Principal identify the pipeline key and the engine's
	// own identity for store operations.
	KeyID     string
	Principal keyring.Principal
}

// RunAction routes one action by kind.
func (d *Dispatcher) RunAction(ctx context.Context, action pipeline.Action) error {
	switch action.Kind {
	case pipeline.KindSource:
		if d.Source == nil {
			return fmt.Errorf("action %q: no source runner configured", action.Name)
		}
		_, err := d.Source.Materialize(ctx, action, d.Revision)
		return err
	case pipeline.KindBuild:
		if d.Builder == nil {
			return fmt.Errorf("action %q: no build executor configured", action.Name)
		}
		_, err := d.Builder.Execute(ctx, action, d.KeyID, d.Principal)
		return err
	case pipeline.KindDeploy:
		if d.Deployer == nil {
			return fmt.Errorf("action %q: no deployer configured", action.Name)
		}
		_, err := d.Deployer.Deploy(ctx, action)
		return err
	default:
		return fmt.Errorf("action %q has unknown kind %q", action.Name, action.Kind)
	}
}
