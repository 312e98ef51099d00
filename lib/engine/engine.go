// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/pipeline"
)

// Runner executes a single action. Implementations must be safe for
// concurrent use: sibling actions of a stage run in parallel.
type Runner interface {
	RunAction(ctx context.Context, action pipeline.Action) error
}

// ActionResult records the outcome of one action.
type ActionResult struct {
	Action   string          `json:"action"`
	Kind     pipeline.Kind   `json:"kind"`
	Status   pipeline.Status `json:"status"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// StageResult records the outcome of one stage.
type StageResult struct {
	Stage   string          `json:"stage"`
	Status  pipeline.Status `json:"status"`
	Actions []ActionResult  `json:"actions"`
}

// Failure pins down the first failing action of a run. When sibling
// actions fail in the same stage, the one earliest in the stage
// definition wins, so the report is deterministic regardless of
// completion order.
type Failure struct {
	Stage  string      `json:"stage"`
	Action string      `json:"action,omitempty"`
	Kind   FailureKind `json:"kind"`
	Err    error       `json:"-"`
}

// Result describes a finished run. Stages holds one entry per stage
// that started, in pipeline order; stages after the failed one never
// appear.
type Result struct {
	Pipeline string          `json:"pipeline"`
	Status   pipeline.Status `json:"status"`
	Stages   []StageResult   `json:"stages"`
	Failure  *Failure        `json:"failure,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Engine sequences pipeline executions over a Runner.
type Engine struct {
	runner Runner
	clock  clock.Clock
	logger *slog.Logger
}

// New builds an Engine.
func New(runner Runner, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{runner: runner, clock: clk, logger: logger}
}

// Run executes the pipeline to a terminal state. The returned Result
// is always populated; the error, when non-nil, is the first failing
// action's error (or the configuration error when the definition
// never passed validation).
//
// The definition is validated up front: a misconfigured pipeline
// fails before any stage starts, with no side effects.
func (e *Engine) Run(ctx context.Context, p *pipeline.Pipeline) (*Result, error) {
	start := e.clock.Now()
	result := &Result{Pipeline: p.Name, Status: pipeline.StatusRunning}

	if err := pipeline.Check(p); err != nil {
		result.Status = pipeline.StatusFailed
		result.Failure = &Failure{Kind: FailureConfiguration, Err: err}
		result.Duration = e.clock.Now().Sub(start)
		return result, err
	}

	e.logger.Info("run started", "pipeline", p.Name, "stages", len(p.Stages))
	for _, stage := range p.Stages {
		stageResult, failure := e.runStage(ctx, stage)
		result.Stages = append(result.Stages, stageResult)
		if failure != nil {
			result.Status = pipeline.StatusFailed
			result.Failure = failure
			result.Duration = e.clock.Now().Sub(start)
			e.logger.Error("run failed",
				"pipeline", p.Name,
				"stage", failure.Stage,
				"action", failure.Action,
				"kind", failure.Kind,
				"error", failure.Err)
			return result, fmt.Errorf("stage %q action %q: %w",
				failure.Stage, failure.Action, failure.Err)
		}
	}

	result.Status = pipeline.StatusSucceeded
	result.Duration = e.clock.Now().Sub(start)
	e.logger.Info("run succeeded", "pipeline", p.Name, "duration", result.Duration)
	return result, nil
}

// runStage runs every action of the stage in parallel and waits for
// all of them. Sibling failures do not interrupt each other; the
// stage fails if any action failed.
func (e *Engine) runStage(ctx context.Context, stage pipeline.Stage) (StageResult, *Failure) {
	e.logger.Info("stage started", "stage", stage.Name, "actions", len(stage.Actions))

	results := make([]ActionResult, len(stage.Actions))
	errs := make([]error, len(stage.Actions))
	var wg sync.WaitGroup
	for i, action := range stage.Actions {
		wg.Add(1)
		go func(i int, action pipeline.Action) {
			defer wg.Done()
			started := e.clock.Now()
			err := e.runner.RunAction(ctx, action)
			results[i] = ActionResult{
				Action:   action.Name,
				Kind:     action.Kind,
				Status:   pipeline.StatusSucceeded,
				Duration: e.clock.Now().Sub(started),
			}
			if err != nil {
				results[i].Status = pipeline.StatusFailed
				results[i].Error = err.Error()
				errs[i] = err
				e.logger.Error("action failed",
					"stage", stage.Name, "action", action.Name, "error", err)
			}
		}(i, action)
	}
	wg.Wait()

	stageResult := StageResult{
		Stage:   stage.Name,
		Status:  pipeline.StatusSucceeded,
		Actions: results,
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		stageResult.Status = pipeline.StatusFailed
		return stageResult, &Failure{
			Stage:  stage.Name,
			Action: stage.Actions[i].Name,
			Kind:   Classify(err),
			Err:    err,
		}
	}
	return stageResult, nil
}
