// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
)

// ErrBuildFailed means a build command group exited non-zero. The
// action fails, is not retried, and publishes no output artifacts.
var ErrBuildFailed = errors.New("build failed")

// outputTailSize bounds how much command output is attached to a
// failure error. Full output goes to the logger.
const outputTailSize = 2048

// Executor runs build actions against the artifact store.
type Executor struct {
	store    *artifactstore.Store
	workRoot string
	logger   *slog.Logger
}

// NewExecutor creates an executor whose scratch work directories live
// under workRoot.
func NewExecutor(store *artifactstore.Store, workRoot string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, workRoot: workRoot, logger: logger}
}

// Execute materializes the source artifact into a scratch directory,
// runs the install and build command groups, selects output files,
// and commits the declared output set atomically. The principal needs
// a decrypt grant (to read the source) and an encrypt grant (to write
// outputs) on the pipeline's key.
func (e *Executor) Execute(ctx context.Context, action pipeline.Action, keyID string, principal keyring.Principal) ([]artifactstore.Ref, error) {
	def := action.Build

	workDir, err := os.MkdirTemp(e.workRoot, "build-"+sanitize(action.Name)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	for _, input := range action.Inputs {
		payload, err := e.store.Get(input, principal)
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", input, err)
		}
		if err := unpack(payload, workDir); err != nil {
			return nil, fmt.Errorf("unpacking input %q: %w", input, err)
		}
	}

	for _, group := range []struct {
		name     string
		commands []string
	}{
		{"install", def.Install},
		{"build", def.Commands},
	} {
		for _, command := range group.commands {
			if err := e.runCommand(ctx, workDir, group.name, command); err != nil {
				return nil, err
			}
		}
	}

	// Stage every declared output before publishing any of them.
	staging := e.store.Begin()
	defer staging.Discard()
	for _, selection := range def.Artifacts {
		payload, err := packSelection(workDir, selection)
		if err != nil {
			return nil, fmt.Errorf("selecting files for %q: %w", selection.Artifact, err)
		}
		if err := staging.Add(selection.Artifact, payload, keyID, principal); err != nil {
			return nil, err
		}
	}
	refs, err := staging.Commit()
	if err != nil {
		return nil, err
	}

	e.logger.Info("build action succeeded",
		"action", action.Name,
		"outputs", len(refs))
	return refs, nil
}

// runCommand executes one shell command in the work directory. The
// command runs in its own process group so cancellation reaches its
// children.
func (e *Executor) runCommand(ctx context.Context, workDir, group, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	e.logger.Debug("running build command", "group", group, "command", command)
	if err := cmd.Run(); err != nil {
		tail := output.String()
		if len(tail) > outputTailSize {
			tail = tail[len(tail)-outputTailSize:]
		}
		e.logger.Error("build command failed",
			"group", group,
			"command", command,
			"output", output.String())
		return fmt.Errorf("%s command %q: %v: %s: %w", group, command, err, strings.TrimSpace(tail), ErrBuildFailed)
	}
	return nil
}

// packSelection collects the files matched by a selection rule into a
// tar archive. Matching zero files is an error: a selection that
// produces an empty artifact means the build did not do what the
// definition promised.
func packSelection(workDir string, selection pipeline.Selection) ([]byte, error) {
	baseDir := filepath.Join(workDir, selection.BaseDir)

	matched := make(map[string]bool)
	for _, pattern := range selection.Files {
		matches, err := filepath.Glob(filepath.Join(baseDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, err
			}
			if info.Mode().IsRegular() {
				matched[match] = true
			}
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no files matched patterns %v under %s", selection.Files, selection.BaseDir)
	}

	files := make([]string, 0, len(matched))
	for file := range matched {
		files = append(files, file)
	}
	sort.Strings(files)

	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, file := range files {
		relative, err := filepath.Rel(baseDir, file)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(file)
		if err != nil {
			return nil, err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil, err
		}
		header.Name = filepath.ToSlash(relative)
		if err := writer.WriteHeader(header); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(content); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// unpack extracts a tar-archive payload into the work directory,
// refusing entries that would escape it.
func unpack(payload []byte, workDir string) error {
	reader := tar.NewReader(bytes.NewReader(payload))
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(header.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return fmt.Errorf("archive entry %q escapes the work directory", header.Name)
		}
		target := filepath.Join(workDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			content, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, content, os.FileMode(header.Mode)&0o777); err != nil {
				return err
			}
		default:
			// Symlinks and devices have no business in source or
			// build artifacts.
			return fmt.Errorf("archive entry %q has unsupported type %d", header.Name, header.Typeflag)
		}
	}
}

// sanitize keeps work directory names filesystem-safe.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
