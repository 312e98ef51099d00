// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/convoy-ci/convoy/lib/clock"
)

// RunLog appends finished run results to a JSONL file, one object
// per line. Each line is written with a single append, so a crash
// mid-run leaves every previously logged result intact and readers
// can tail the file as runs complete.
type RunLog struct {
	path  string
	clock clock.Clock

	mu sync.Mutex
}

// NewRunLog builds a RunLog writing to path. The file is created on
// first append.
func NewRunLog(path string, clk clock.Clock) *RunLog {
	if clk == nil {
		clk = clock.Real()
	}
	return &RunLog{path: path, clock: clk}
}

type runLogEntry struct {
	Time time.Time `json:"time"`
	*Result
}

// Append records one run result.
func (l *RunLog) Append(result *Result) error {
	entry := runLogEntry{Time: l.clock.Now().UTC(), Result: result}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("appending run result: %w", err)
	}
	return file.Close()
}
