// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/build"
	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/config"
	"github.com/convoy-ci/convoy/lib/deploy"
	"github.com/convoy-ci/convoy/lib/engine"
	"github.com/convoy-ci/convoy/lib/forge"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/secret"
	"github.com/convoy-ci/convoy/lib/trigger"
	"github.com/convoy-ci/convoy/lib/trust"
)

// runtime holds the long-lived components assembled from the
// operator configuration: the unsealed keyring, the artifact store,
// the trust broker, and the forge client.
type runtime struct {
	config   *config.Config
	identity *secret.Buffer
	keys     *keyring.Keyring
	store    *artifactstore.Store
	broker   *trust.Broker
	forge    *forge.Client
	token    *secret.Buffer
	clock    clock.Clock
	logger   *slog.Logger
}

// buildRuntime loads the config file and assembles the runtime. The
// caller must Close it.
func buildRuntime(configPath string, logger *slog.Logger) (*runtime, error) {
	path, err := config.Path(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	identity, err := cfg.Identity()
	if err != nil {
		return nil, err
	}
	keys, err := cfg.Keyring(identity)
	if err != nil {
		identity.Close()
		return nil, err
	}
	store, err := artifactstore.NewStore(cfg.Store.Root, cfg.Store.Bucket, keys,
		artifactstore.WithCompression(cfg.CompressionTag()))
	if err != nil {
		keys.Close()
		identity.Close()
		return nil, err
	}
	directory, err := cfg.Directory()
	if err != nil {
		keys.Close()
		identity.Close()
		return nil, err
	}

	clk := clock.Real()
	r := &runtime{
		config:   cfg,
		identity: identity,
		keys:     keys,
		store:    store,
		broker:   trust.NewBroker(directory, clk, logger),
		clock:    clk,
		logger:   logger,
	}

	if cfg.Source.BaseURL != "" {
		token, err := cfg.ForgeToken()
		if err != nil {
			r.Close()
			return nil, err
		}
		client, err := forge.New(forge.Config{
			BaseURL: cfg.Source.BaseURL,
			Token:   token,
			Logger:  logger,
		})
		if err != nil {
			token.Close()
			r.Close()
			return nil, err
		}
		r.forge = client
		r.token = token
	}
	return r, nil
}

// Close releases the key material, the identity, and the forge
// token.
func (r *runtime) Close() {
	if r.token != nil {
		r.token.Close()
	}
	r.keys.Close()
	r.identity.Close()
}

// dispatcher builds the per-run action dispatcher, bound to the
// revision the run executes. Every component shares one run-scoped
// store view, so successive runs publish artifacts under the same
// declared names without colliding.
func (r *runtime) dispatcher(p *pipeline.Pipeline, revision forge.Revision) (*engine.Dispatcher, error) {
	run := revision.SHA
	if run == "" {
		var err error
		run, err = newRunID()
		if err != nil {
			return nil, err
		}
	}
	store, err := r.store.ForRun(run)
	if err != nil {
		return nil, err
	}

	target, err := deploy.NewFileTarget(r.config.Deploy.TargetRoot, r.clock)
	if err != nil {
		return nil, err
	}
	principal := keyring.Principal(r.config.Principal)

	dispatcher := &engine.Dispatcher{
		Builder: build.NewExecutor(store, r.config.Build.WorkRoot, r.logger),
		Deployer: deploy.NewDeployer(r.broker, store, target, r.clock, r.logger, deploy.Options{
			Timeout:      r.config.Deploy.Timeout.Std(),
			PollInterval: r.config.Deploy.PollInterval.Std(),
		}),
		Revision:  revision,
		KeyID:     p.KeyID,
		Principal: principal,
	}
	if r.forge != nil {
		dispatcher.Source = trigger.NewMaterializer(r.forge, store, p.KeyID, principal, r.logger)
	}
	return dispatcher, nil
}

// runOnce executes the pipeline for one revision and returns the
// result. When a run log is configured, the result is appended to it
// before returning; a log write failure never masks the run outcome.
func (r *runtime) runOnce(ctx context.Context, p *pipeline.Pipeline, revision forge.Revision) (*engine.Result, error) {
	dispatcher, err := r.dispatcher(p, revision)
	if err != nil {
		return nil, err
	}
	result, runErr := engine.New(dispatcher, r.clock, r.logger).Run(ctx, p)
	if result != nil && r.config.RunLog != "" {
		if err := engine.NewRunLog(r.config.RunLog, r.clock).Append(result); err != nil {
			r.logger.Warn("appending run log", "path", r.config.RunLog, "error", err)
		}
	}
	return result, runErr
}

// headRevision resolves the branch head for the pipeline's source
// action, for one-shot runs that are not driven by the poll loop.
func (r *runtime) headRevision(ctx context.Context, p *pipeline.Pipeline) (forge.Revision, error) {
	watch := sourceWatch(p)
	if watch == nil {
		return forge.Revision{}, nil
	}
	if r.forge == nil {
		return forge.Revision{}, fmt.Errorf("pipeline %q has a source stage but no forge is configured", p.Name)
	}
	revision, changed, err := r.forge.Head(ctx, watch.Owner, watch.Repo, watch.Branch)
	if err != nil {
		return forge.Revision{}, fmt.Errorf("resolving branch head: %w", err)
	}
	// A not-modified answer carries no revision. One-shot runs need
	// a concrete head, so treat it as a failure rather than running
	// against a zero revision.
	if !changed {
		return forge.Revision{}, fmt.Errorf("resolving branch head: forge returned no revision for %s/%s@%s",
			watch.Owner, watch.Repo, watch.Branch)
	}
	return revision, nil
}

// newRunID mints a namespace for runs that have no source revision
// to key on.
func newRunID() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating run identifier: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// sourceWatch returns the source action's watch target, or nil when
// the pipeline has no source action.
func sourceWatch(p *pipeline.Pipeline) *pipeline.SourceConfig {
	for _, stage := range p.Stages {
		for _, action := range stage.Actions {
			if action.Kind == pipeline.KindSource {
				return action.Source
			}
		}
	}
	return nil
}
