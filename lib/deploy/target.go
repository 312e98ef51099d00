// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/trust"
)

// StackState is the persisted state of one stack under a FileTarget.
type StackState struct {
	StackName  string            `json:"stack_name"`
	Template   string            `json:"template"`
	Parameters map[string]string `json:"parameters"`
	Revision   int               `json:"revision"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// FileTarget is a local-filesystem Target: each stack is one JSON
// state file under the target root, and every applied change either
// creates the file or bumps its revision. It enforces the session
// contract a real foreign account would: submissions need a change
// execution session, status polls need an orchestration session, and
// expired sessions are refused outright.
//
// Changes apply synchronously, so Status reports a terminal state as
// soon as Apply returns.
type FileTarget struct {
	root  string
	clock clock.Clock

	mu         sync.Mutex
	operations map[string]State
}

// NewFileTarget creates a FileTarget rooted at dir, creating the
// directory if needed.
func NewFileTarget(dir string, clk clock.Clock) (*FileTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating target root: %w", err)
	}
	return &FileTarget{
		root:       dir,
		clock:      clk,
		operations: make(map[string]State),
	}, nil
}

// Apply validates the session and the change, then creates or
// updates the stack state file. A malformed change is rejected with
// ErrChangeRejected; a session without change-execution authority is
// refused before the change is examined at all.
func (t *FileTarget) Apply(ctx context.Context, session trust.SessionCredentials, change Change) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if session.Expired(t.clock.Now()) {
		return "", fmt.Errorf("session for %s expired", session.RoleARN)
	}
	if !session.Allows(trust.OpExecuteChange) {
		return "", fmt.Errorf("session for %s lacks change execution: %w",
			session.RoleARN, trust.ErrTrustDenied)
	}
	if err := validateChange(change); err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrChangeRejected)
	}

	state := StackState{
		StackName:  change.StackName,
		Template:   change.Template.String(),
		Parameters: change.Parameters,
		Revision:   1,
		UpdatedAt:  t.clock.Now().UTC(),
	}
	path := filepath.Join(t.root, change.StackName+".json")
	if previous, err := readStackState(path); err == nil {
		state.Revision = previous.Revision + 1
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading stack state: %w", err)
	}
	if err := writeStackState(path, state); err != nil {
		return "", err
	}

	operationID, err := newOperationID()
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.operations[operationID] = StateApplied
	t.mu.Unlock()
	return operationID, nil
}

// Status reports the state of a previously submitted operation. An
// unknown operation ID is an error, not a state.
func (t *FileTarget) Status(ctx context.Context, session trust.SessionCredentials, operationID string) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateFailed, err
	}
	if session.Expired(t.clock.Now()) {
		return StateFailed, fmt.Errorf("session for %s expired", session.RoleARN)
	}
	if !session.Allows(trust.OpOrchestrate) {
		return StateFailed, fmt.Errorf("session for %s lacks orchestration: %w",
			session.RoleARN, trust.ErrTrustDenied)
	}
	t.mu.Lock()
	state, ok := t.operations[operationID]
	t.mu.Unlock()
	if !ok {
		return StateFailed, fmt.Errorf("unknown operation %q", operationID)
	}
	return state, nil
}

// Stack returns the persisted state of a stack, for inspection.
func (t *FileTarget) Stack(name string) (StackState, error) {
	return readStackState(filepath.Join(t.root, name+".json"))
}

func validateChange(change Change) error {
	if change.StackName == "" {
		return errors.New("change has no stack name")
	}
	if strings.ContainsAny(change.StackName, "/\\") || change.StackName == "." || change.StackName == ".." {
		return fmt.Errorf("invalid stack name %q", change.StackName)
	}
	if change.Template.Key == "" {
		return errors.New("change has no template location")
	}
	for name, value := range change.Parameters {
		if name == "" || value == "" {
			return fmt.Errorf("empty parameter binding %q=%q", name, value)
		}
	}
	return nil
}

func readStackState(path string) (StackState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StackState{}, err
	}
	var state StackState
	if err := json.Unmarshal(data, &state); err != nil {
		return StackState{}, fmt.Errorf("decoding stack state %s: %w", path, err)
	}
	return state, nil
}

func writeStackState(path string, state StackState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stack state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing stack state: %w", err)
	}
	return nil
}

func newOperationID() (string, error) {
	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("minting operation id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
