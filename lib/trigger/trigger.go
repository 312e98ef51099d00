// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/convoy-ci/convoy/lib/clock"
	"github.com/convoy-ci/convoy/lib/forge"
	"github.com/convoy-ci/convoy/lib/pipeline"
)

const defaultInterval = time.Minute

// Source is the forge surface the trigger and the materializer need.
// [forge.Client] satisfies it.
type Source interface {
	Head(ctx context.Context, owner, repo, branch string) (forge.Revision, bool, error)
	Archive(ctx context.Context, owner, repo, sha string) ([]byte, error)
}

// LaunchFunc runs one pipeline execution for a revision. It blocks
// until the execution is terminal; its error is logged, not retried.
type LaunchFunc func(ctx context.Context, revision forge.Revision) error

// Config assembles a Trigger.
type Config struct {
	// Source is the forge client to poll.
	Source Source

	// Watch names the repository and branch to track.
	Watch pipeline.SourceConfig

	// Interval is the poll interval. Zero selects the default of one
	// minute.
	Interval time.Duration

	// Launch starts a pipeline execution for a detected revision.
	Launch LaunchFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

// Trigger polls a branch head and launches executions for new
// revisions, one at a time.
type Trigger struct {
	source   Source
	watch    pipeline.SourceConfig
	interval time.Duration
	launch   LaunchFunc
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	running bool
	pending *forge.Revision
	lastSHA string
}

// New validates the configuration and builds a Trigger.
func New(config Config) (*Trigger, error) {
	if config.Source == nil {
		return nil, errors.New("trigger has no source")
	}
	if config.Launch == nil {
		return nil, errors.New("trigger has no launch function")
	}
	if config.Watch.Owner == "" || config.Watch.Repo == "" || config.Watch.Branch == "" {
		return nil, fmt.Errorf("incomplete watch target %s/%s@%s",
			config.Watch.Owner, config.Watch.Repo, config.Watch.Branch)
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Trigger{
		source:   config.Source,
		watch:    config.Watch,
		interval: config.Interval,
		launch:   config.Launch,
		clock:    config.Clock,
		logger:   config.Logger,
	}, nil
}

// Run polls until ctx is cancelled. It polls once immediately, then
// on every tick. On return, any in-flight execution has finished and
// any still-pending revision is dropped.
func (t *Trigger) Run(ctx context.Context) error {
	t.logger.Info("trigger started",
		"owner", t.watch.Owner,
		"repo", t.watch.Repo,
		"branch", t.watch.Branch,
		"interval", t.interval)

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	t.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			t.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll asks the forge for the branch head and offers any new
// revision for execution. Poll errors are logged and absorbed; the
// next tick retries.
func (t *Trigger) poll(ctx context.Context) {
	revision, changed, err := t.source.Head(ctx, t.watch.Owner, t.watch.Repo, t.watch.Branch)
	if err != nil {
		t.logger.Warn("polling branch head",
			"owner", t.watch.Owner,
			"repo", t.watch.Repo,
			"branch", t.watch.Branch,
			"error", err)
		return
	}
	if !changed {
		return
	}
	t.offer(ctx, revision)
}

// offer hands a revision to the execution slot. If an execution is
// in flight the revision becomes the single pending trigger,
// replacing any earlier pending revision.
func (t *Trigger) offer(ctx context.Context, revision forge.Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if revision.SHA == t.lastSHA {
		return
	}
	t.lastSHA = revision.SHA
	if t.running {
		if t.pending != nil {
			t.logger.Info("coalescing pending trigger",
				"superseded", t.pending.SHA, "revision", revision.SHA)
		}
		t.pending = &revision
		return
	}
	t.running = true
	t.wg.Add(1)
	go t.execute(ctx, revision)
}

// execute runs one launch and then drains the pending slot, chaining
// into the next execution if a revision accumulated meanwhile.
func (t *Trigger) execute(ctx context.Context, revision forge.Revision) {
	defer t.wg.Done()

	t.logger.Info("launching execution", "revision", revision.SHA)
	if err := t.launch(ctx, revision); err != nil {
		t.logger.Error("execution failed", "revision", revision.SHA, "error", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil || ctx.Err() != nil {
		t.running = false
		t.pending = nil
		return
	}
	next := *t.pending
	t.pending = nil
	t.wg.Add(1)
	go t.execute(ctx, next)
}
