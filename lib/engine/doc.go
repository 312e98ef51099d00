// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine sequences one pipeline execution: stages run
// strictly in order, the actions inside a stage run in parallel, and
// the first failed stage stops the run.
//
// The sequencing contract is deliberately blunt. A stage starts only
// after every action of the previous stage succeeded. When an action
// fails, its siblings are not interrupted — they run to completion,
// and artifacts they published stay published — but no later stage
// starts. There is no retry and no partial re-entry; a failed run is
// rerun from the top.
//
// [Engine] owns sequencing only. The work itself is delegated
// through [Runner]; [Dispatcher] is the standard Runner, fanning out
// to the source materializer, the build executor, and the deployer
// by action kind. Failures are classified into a stable [FailureKind]
// so callers can tell a trust refusal from a broken build without
// string-matching errors.
package engine
