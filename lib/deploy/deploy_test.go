// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/secret"
	"github.com/convoy-ci/convoy/lib/trust"
)

const (
	testAccount   = "222200004444"
	testPrincipal = keyring.Principal("pipeline")
)

// testWorld wires a store holding a template and an app artifact, a
// broker with both foreign-account roles declared, and a FakeClock.
type testWorld struct {
	store  *artifactstore.Store
	broker *trust.Broker
	clock  *clock.FakeClock
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	material, err := secret.NewFromBytes(make([]byte, keyring.KeySize))
	if err != nil {
		t.Fatalf("NewFromBytes() error: %v", err)
	}
	key, err := keyring.NewKey("release-key", material)
	if err != nil {
		t.Fatalf("NewKey() error: %v", err)
	}
	key.Grant(testPrincipal, keyring.Encrypt, keyring.Decrypt)
	keys := keyring.New()
	if err := keys.Add(key); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	store, err := artifactstore.NewStore(t.TempDir(), "convoy-artifacts", keys)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	for name, payload := range map[string][]byte{
		"stack-template": []byte(`{"resources": {}}`),
		"app-bundle":     []byte("binary payload"),
	} {
		if _, err := store.Put(name, payload, "release-key", testPrincipal); err != nil {
			t.Fatalf("Put(%q) error: %v", name, err)
		}
	}

	directory := trust.NewDirectory()
	if err := directory.AddRole(testAccount, "change-execution", trust.OpExecuteChange); err != nil {
		t.Fatalf("AddRole() error: %v", err)
	}
	if err := directory.AddRole(testAccount, "pipeline-orchestration", trust.OpOrchestrate); err != nil {
		t.Fatalf("AddRole() error: %v", err)
	}

	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &testWorld{
		store:  store,
		broker: trust.NewBroker(directory, fake, nil),
		clock:  fake,
	}
}

func testAction() pipeline.Action {
	return pipeline.Action{
		Name:   "deploy-app",
		Kind:   pipeline.KindDeploy,
		Inputs: []string{"stack-template", "app-bundle"},
		Deploy: &pipeline.DeployConfig{
			StackName:         "app-prod",
			Template:          "stack-template",
			AccountID:         testAccount,
			ExecutionRole:     "change-execution",
			OrchestrationRole: "pipeline-orchestration",
			Overrides: []pipeline.Override{
				{Parameter: "BundleLocation", FromArtifact: "app-bundle"},
			},
		},
	}
}

func TestDeployCreatesStack(t *testing.T) {
	world := newTestWorld(t)
	target, err := NewFileTarget(t.TempDir(), world.clock)
	if err != nil {
		t.Fatalf("NewFileTarget() error: %v", err)
	}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{})

	result, err := deployer.Deploy(context.Background(), testAction())
	if err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if result.StackName != "app-prod" {
		t.Errorf("StackName = %q, want %q", result.StackName, "app-prod")
	}
	if result.OperationID == "" {
		t.Error("Deploy() returned empty operation ID")
	}

	state, err := target.Stack("app-prod")
	if err != nil {
		t.Fatalf("Stack() error: %v", err)
	}
	if state.Revision != 1 {
		t.Errorf("Revision = %d, want 1", state.Revision)
	}
	if want := world.store.LocationOf("stack-template").String(); state.Template != want {
		t.Errorf("Template = %q, want %q", state.Template, want)
	}
	if want := world.store.LocationOf("app-bundle").String(); state.Parameters["BundleLocation"] != want {
		t.Errorf("Parameters[BundleLocation] = %q, want %q",
			state.Parameters["BundleLocation"], want)
	}
}

func TestDeployUpdatesExistingStack(t *testing.T) {
	world := newTestWorld(t)
	target, err := NewFileTarget(t.TempDir(), world.clock)
	if err != nil {
		t.Fatalf("NewFileTarget() error: %v", err)
	}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{})

	for i := 0; i < 2; i++ {
		if _, err := deployer.Deploy(context.Background(), testAction()); err != nil {
			t.Fatalf("Deploy() #%d error: %v", i+1, err)
		}
	}
	state, err := target.Stack("app-prod")
	if err != nil {
		t.Fatalf("Stack() error: %v", err)
	}
	if state.Revision != 2 {
		t.Errorf("Revision = %d, want 2", state.Revision)
	}
}

// recordingTarget counts Apply calls and serves a scripted state
// sequence from Status.
type recordingTarget struct {
	applies int
	states  []State
	polls   int
}

func (r *recordingTarget) Apply(ctx context.Context, session trust.SessionCredentials, change Change) (string, error) {
	r.applies++
	return "op-1", nil
}

func (r *recordingTarget) Status(ctx context.Context, session trust.SessionCredentials, operationID string) (State, error) {
	state := r.states[min(r.polls, len(r.states)-1)]
	r.polls++
	return state, nil
}

func TestDeployTrustDeniedBeforeSubmission(t *testing.T) {
	world := newTestWorld(t)
	target := &recordingTarget{states: []State{StateApplied}}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{})

	action := testAction()
	// The orchestration role is not trusted for change execution.
	action.Deploy.ExecutionRole = "pipeline-orchestration"

	_, err := deployer.Deploy(context.Background(), action)
	if !errors.Is(err, trust.ErrTrustDenied) {
		t.Fatalf("Deploy() error = %v, want ErrTrustDenied", err)
	}
	if target.applies != 0 {
		t.Errorf("target received %d Apply calls after trust refusal, want 0", target.applies)
	}
}

func TestDeployFailedOperationIsChangeRejected(t *testing.T) {
	world := newTestWorld(t)
	target := &recordingTarget{states: []State{StateFailed}}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{})

	_, err := deployer.Deploy(context.Background(), testAction())
	if !errors.Is(err, ErrChangeRejected) {
		t.Fatalf("Deploy() error = %v, want ErrChangeRejected", err)
	}
}

func TestDeployTimeout(t *testing.T) {
	world := newTestWorld(t)
	target := &recordingTarget{states: []State{StateInProgress}}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{
		Timeout:      time.Minute,
		PollInterval: 20 * time.Second,
	})

	done := make(chan error, 1)
	go func() {
		_, err := deployer.Deploy(context.Background(), testAction())
		done <- err
	}()

	for {
		select {
		case err := <-done:
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("Deploy() error = %v, want ErrTimeout", err)
			}
			if target.applies != 1 {
				t.Errorf("Apply calls = %d, want 1", target.applies)
			}
			return
		default:
			world.clock.Advance(20 * time.Second)
		}
	}
}

func TestDeployMissingOverrideArtifact(t *testing.T) {
	world := newTestWorld(t)
	target := &recordingTarget{states: []State{StateApplied}}
	deployer := NewDeployer(world.broker, world.store, target, world.clock, nil, Options{})

	action := testAction()
	action.Deploy.Overrides[0].FromArtifact = "never-built"

	_, err := deployer.Deploy(context.Background(), action)
	if !errors.Is(err, artifactstore.ErrNotFound) {
		t.Fatalf("Deploy() error = %v, want ErrNotFound", err)
	}
	if target.applies != 0 {
		t.Errorf("target received %d Apply calls, want 0", target.applies)
	}
}

func TestFileTargetRejectsMalformedChange(t *testing.T) {
	world := newTestWorld(t)
	target, err := NewFileTarget(t.TempDir(), world.clock)
	if err != nil {
		t.Fatalf("NewFileTarget() error: %v", err)
	}

	execRole, err := world.broker.ResolveRole(testAccount, "change-execution")
	if err != nil {
		t.Fatalf("ResolveRole() error: %v", err)
	}
	session, err := world.broker.Assume(context.Background(), execRole,
		[]trust.Operation{trust.OpExecuteChange})
	if err != nil {
		t.Fatalf("Assume() error: %v", err)
	}

	_, err = target.Apply(context.Background(), session, Change{StackName: "../escape"})
	if !errors.Is(err, ErrChangeRejected) {
		t.Fatalf("Apply() error = %v, want ErrChangeRejected", err)
	}
}
