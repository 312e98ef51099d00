// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/trust"
)

// ErrChangeRejected reports that the target account refused the
// submitted change, or that the applied change reached a failed
// terminal state.
var ErrChangeRejected = errors.New("change rejected by target account")

// ErrTimeout reports that the change did not reach a terminal state
// within the deploy timeout. The change may still be in progress in
// the foreign account; the caller must reconcile out of band.
var ErrTimeout = errors.New("change apply timed out")

const (
	defaultTimeout      = 30 * time.Minute
	defaultPollInterval = 10 * time.Second
)

// Change is a self-contained change submission: everything the target
// account needs to apply the deployment. Template and parameter
// values reference artifact locations in the shared store; the target
// account fetches the bytes itself with its own grants.
type Change struct {
	// StackName identifies the deployment unit in the target
	// account. Submitting a change for an existing stack updates it;
	// submitting for an unknown stack creates it.
	StackName string

	// Template is the location of the template artifact.
	Template artifactstore.Location

	// Parameters maps template parameter names to values. Overridden
	// parameters carry artifact locations in string form.
	Parameters map[string]string
}

// State is the observable state of a submitted change.
type State int

const (
	StateInProgress State = iota
	StateApplied
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Target is the foreign-account deployment surface. Apply submits a
// change under an execution session and returns an operation ID for
// subsequent polling; Status reports the operation's state under an
// orchestration session.
type Target interface {
	Apply(ctx context.Context, session trust.SessionCredentials, change Change) (string, error)
	Status(ctx context.Context, session trust.SessionCredentials, operationID string) (State, error)
}

// Result describes a completed deployment.
type Result struct {
	StackName   string
	OperationID string
	Duration    time.Duration
}

// Options tune a Deployer. The zero value selects the defaults.
type Options struct {
	// Timeout bounds the wait for a submitted change to reach a
	// terminal state.
	Timeout time.Duration

	// PollInterval is the delay between status polls.
	PollInterval time.Duration
}

// Deployer executes deploy actions against a Target.
type Deployer struct {
	broker       *trust.Broker
	store        *artifactstore.Store
	target       Target
	clock        clock.Clock
	logger       *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// NewDeployer builds a Deployer. The broker supplies foreign-account
// sessions, the store resolves artifact locations, and the target is
// the account-side deployment surface.
func NewDeployer(broker *trust.Broker, store *artifactstore.Store, target Target, clk clock.Clock, logger *slog.Logger, opts Options) *Deployer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		broker:       broker,
		store:        store,
		target:       target,
		clock:        clk,
		logger:       logger,
		timeout:      opts.Timeout,
		pollInterval: opts.PollInterval,
	}
}

// Deploy runs a deploy action to completion. It assumes the
// execution and orchestration roles, binds parameter overrides to
// artifact locations, submits the change, and polls until the target
// reports a terminal state or the timeout elapses.
//
// Trust refusals surface before any change is submitted: if either
// role assumption fails, the target is never contacted.
func (d *Deployer) Deploy(ctx context.Context, action pipeline.Action) (*Result, error) {
	cfg := action.Deploy
	if cfg == nil {
		return nil, fmt.Errorf("action %q has no deploy configuration", action.Name)
	}

	execRole, err := d.broker.ResolveRole(cfg.AccountID, cfg.ExecutionRole)
	if err != nil {
		return nil, fmt.Errorf("resolving execution role: %w", err)
	}
	orchRole, err := d.broker.ResolveRole(cfg.AccountID, cfg.OrchestrationRole)
	if err != nil {
		return nil, fmt.Errorf("resolving orchestration role: %w", err)
	}

	execSession, err := d.broker.Assume(ctx, execRole, []trust.Operation{trust.OpExecuteChange})
	if err != nil {
		return nil, fmt.Errorf("assuming execution role: %w", err)
	}
	orchSession, err := d.broker.Assume(ctx, orchRole, []trust.Operation{trust.OpOrchestrate})
	if err != nil {
		return nil, fmt.Errorf("assuming orchestration role: %w", err)
	}

	change, err := d.buildChange(cfg)
	if err != nil {
		return nil, err
	}

	start := d.clock.Now()
	operationID, err := d.target.Apply(ctx, execSession, change)
	if err != nil {
		return nil, fmt.Errorf("applying change to stack %q: %w", change.StackName, err)
	}
	d.logger.Info("change submitted",
		"stack", change.StackName,
		"operation", operationID,
		"account", cfg.AccountID)

	if err := d.await(ctx, orchSession, operationID, change.StackName); err != nil {
		return nil, err
	}
	return &Result{
		StackName:   change.StackName,
		OperationID: operationID,
		Duration:    d.clock.Now().Sub(start),
	}, nil
}

// buildChange assembles the change submission from the action
// configuration. Override values are artifact locations, computed
// only once the source artifact exists in the store.
func (d *Deployer) buildChange(cfg *pipeline.DeployConfig) (Change, error) {
	if !d.store.Contains(cfg.Template) {
		return Change{}, fmt.Errorf("template artifact %q: %w", cfg.Template, artifactstore.ErrNotFound)
	}
	parameters := make(map[string]string, len(cfg.Overrides))
	for _, override := range cfg.Overrides {
		if !d.store.Contains(override.FromArtifact) {
			return Change{}, fmt.Errorf("override artifact %q: %w",
				override.FromArtifact, artifactstore.ErrNotFound)
		}
		parameters[override.Parameter] = d.store.LocationOf(override.FromArtifact).String()
	}
	return Change{
		StackName:  cfg.StackName,
		Template:   d.store.LocationOf(cfg.Template),
		Parameters: parameters,
	}, nil
}

// await polls the target until the operation reaches a terminal
// state, the context is cancelled, or the deploy timeout elapses.
func (d *Deployer) await(ctx context.Context, session trust.SessionCredentials, operationID, stackName string) error {
	deadline := d.clock.Now().Add(d.timeout)
	for {
		state, err := d.target.Status(ctx, session, operationID)
		if err != nil {
			return fmt.Errorf("polling operation %q: %w", operationID, err)
		}
		switch state {
		case StateApplied:
			return nil
		case StateFailed:
			return fmt.Errorf("stack %q operation %q failed: %w",
				stackName, operationID, ErrChangeRejected)
		}
		if !d.clock.Now().Add(d.pollInterval).Before(deadline) {
			return fmt.Errorf("stack %q operation %q still in progress after %v: %w",
				stackName, operationID, d.timeout, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for operation %q: %w", operationID, ctx.Err())
		case <-d.clock.After(d.pollInterval):
		}
	}
}
