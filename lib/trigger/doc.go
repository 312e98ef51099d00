// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger watches a revision source and starts pipeline
// executions when the tracked branch moves.
//
// [Trigger] owns the poll loop: it asks the forge for the branch head
// on a fixed interval, and hands each new revision to a launch
// callback. At most one execution is in flight at a time; revisions
// that arrive while one is running coalesce into a single pending
// trigger, so a burst of pushes costs one extra execution, not one
// per push. The loop stops when its context is cancelled and waits
// for the in-flight execution to finish.
//
// [Materializer] implements the source action itself: it downloads
// the revision archive and publishes it to the artifact store as the
// action's declared output, encrypted under the pipeline key.
package trigger
