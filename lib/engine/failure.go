// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/build"
	"github.com/convoy-ci/convoy/lib/deploy"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/trust"
)

// FailureKind is a stable, machine-readable failure category for run
// reports. Kinds are derived from sentinel errors, never from error
// text.
type FailureKind string

const (
	// FailureConfiguration: the pipeline definition failed
	// validation; nothing ran.
	FailureConfiguration FailureKind = "configuration"

	// FailureTrustDenied: a cross-account role assumption was
	// refused.
	FailureTrustDenied FailureKind = "trust_denied"

	// FailureAccessDenied: a key grant was missing for the
	// requesting principal.
	FailureAccessDenied FailureKind = "access_denied"

	// FailureEncryptionUnauthorized: the principal held the key but
	// not the specific operation it attempted.
	FailureEncryptionUnauthorized FailureKind = "encryption_unauthorized"

	// FailureBuild: build commands exited nonzero or produced no
	// declared artifacts.
	FailureBuild FailureKind = "build_failed"

	// FailureChangeRejected: the target account refused or failed
	// the submitted change.
	FailureChangeRejected FailureKind = "change_rejected"

	// FailureTimeout: a change apply outlived the deploy timeout.
	FailureTimeout FailureKind = "timeout"

	// FailureNotFound: a referenced artifact does not exist in the
	// store.
	FailureNotFound FailureKind = "not_found"

	// FailureCancelled: the run's context was cancelled.
	FailureCancelled FailureKind = "cancelled"

	// FailureInternal is the catch-all for errors with no sentinel.
	FailureInternal FailureKind = "internal"
)

// Classify maps an action error to its failure kind. Context
// cancellation is checked last among the sentinels an action error
// can wrap, so a trust refusal during shutdown still reports as a
// trust refusal.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, trust.ErrTrustDenied):
		return FailureTrustDenied
	case errors.Is(err, keyring.ErrEncryptionUnauthorized):
		return FailureEncryptionUnauthorized
	case errors.Is(err, keyring.ErrAccessDenied):
		return FailureAccessDenied
	case errors.Is(err, build.ErrBuildFailed):
		return FailureBuild
	case errors.Is(err, deploy.ErrChangeRejected):
		return FailureChangeRejected
	case errors.Is(err, deploy.ErrTimeout):
		return FailureTimeout
	case errors.Is(err, artifactstore.ErrNotFound):
		return FailureNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	default:
		return FailureInternal
	}
}
