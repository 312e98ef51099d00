// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/forge"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
)

// Materializer turns a detected revision into a source artifact: it
// downloads the revision archive from the forge and publishes it to
// the store under the source action's declared output name.
type Materializer struct {
	source    Source
	store     *artifactstore.Store
	keyID     string
	principal keyring.Principal
	logger    *slog.Logger
}

// NewMaterializer builds a Materializer that encrypts source
// artifacts under keyID on behalf of principal.
func NewMaterializer(source Source, store *artifactstore.Store, keyID string, principal keyring.Principal, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		source:    source,
		store:     store,
		keyID:     keyID,
		principal: principal,
		logger:    logger,
	}
}

// Materialize runs a source action for one revision. The archive
// bytes become the action's single output artifact.
func (m *Materializer) Materialize(ctx context.Context, action pipeline.Action, revision forge.Revision) (artifactstore.Ref, error) {
	cfg := action.Source
	if cfg == nil {
		return artifactstore.Ref{}, fmt.Errorf("action %q has no source configuration", action.Name)
	}
	if len(action.Outputs) != 1 {
		return artifactstore.Ref{}, fmt.Errorf("source action %q declares %d outputs, want 1",
			action.Name, len(action.Outputs))
	}

	archive, err := m.source.Archive(ctx, cfg.Owner, cfg.Repo, revision.SHA)
	if err != nil {
		return artifactstore.Ref{}, fmt.Errorf("downloading revision %s: %w", revision.SHA, err)
	}
	ref, err := m.store.Put(action.Outputs[0], archive, m.keyID, m.principal)
	if err != nil {
		return artifactstore.Ref{}, fmt.Errorf("publishing source artifact: %w", err)
	}
	m.logger.Info("source artifact materialized",
		"artifact", ref.Name,
		"revision", revision.SHA,
		"size", len(archive))
	return ref, nil
}
