// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/convoy-ci/convoy/lib/artifactstore"
	"github.com/convoy-ci/convoy/lib/keyring"
	"github.com/convoy-ci/convoy/lib/pipeline"
	"github.com/convoy-ci/convoy/lib/secret"
)

const builder = keyring.Principal("build/compile")

func newTestStore(t *testing.T) *artifactstore.Store {
	t.Helper()

	material := make([]byte, keyring.KeySize)
	if _, err := rand.Read(material); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}
	buffer, err := secret.NewFromBytes(material)
	if err != nil {
		t.Fatalf("secret.NewFromBytes() error: %v", err)
	}
	key, err := keyring.NewKey("artifact-key", buffer)
	if err != nil {
		t.Fatalf("keyring.NewKey() error: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	key.Grant(builder, keyring.Encrypt, keyring.Decrypt)

	ring := keyring.New()
	if err := ring.Add(key); err != nil {
		t.Fatalf("keyring.Add() error: %v", err)
	}
	store, err := artifactstore.NewStore(t.TempDir(), "convoy-artifacts", ring)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

// sourceTar builds a tar archive with the given file contents.
func sourceTar(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for name, content := range files {
		if err := writer.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("WriteHeader() error: %v", err)
		}
		if _, err := writer.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	return buffer.Bytes()
}

func buildAction(commands []string, selections []pipeline.Selection) pipeline.Action {
	return pipeline.Action{
		Name:    "compile",
		Kind:    pipeline.KindBuild,
		Inputs:  []string{"source"},
		Outputs: outputsOf(selections),
		Build: &pipeline.BuildConfig{
			Install:   []string{"true"},
			Commands:  commands,
			Artifacts: selections,
		},
	}
}

func outputsOf(selections []pipeline.Selection) []string {
	outputs := make([]string, 0, len(selections))
	for _, selection := range selections {
		outputs = append(outputs, selection.Artifact)
	}
	return outputs
}

func TestExecuteProducesDeclaredOutputs(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, t.TempDir(), nil)

	_, err := store.Put("source", sourceTar(t, map[string]string{"app/main.txt": "hello convoy\n"}), "artifact-key", builder)
	if err != nil {
		t.Fatalf("Put(source) error: %v", err)
	}

	action := buildAction(
		[]string{"mkdir -p dist && tr a-z A-Z < app/main.txt > dist/main.txt"},
		[]pipeline.Selection{{Artifact: "bundle", BaseDir: "dist", Files: []string{"*.txt"}}},
	)

	refs, err := executor.Execute(context.Background(), action, "artifact-key", builder)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(refs) != 1 || refs[0].Name != "bundle" {
		t.Fatalf("Execute() refs = %v, want [bundle]", refs)
	}

	payload, err := store.Get("bundle", builder)
	if err != nil {
		t.Fatalf("Get(bundle) error: %v", err)
	}
	reader := tar.NewReader(bytes.NewReader(payload))
	header, err := reader.Next()
	if err != nil {
		t.Fatalf("reading output archive: %v", err)
	}
	if header.Name != "main.txt" {
		t.Errorf("archive entry = %q, want %q", header.Name, "main.txt")
	}
	content := make([]byte, header.Size)
	if _, err := io.ReadFull(reader, content); err != nil {
		t.Fatalf("reading archive content: %v", err)
	}
	if string(content) != "HELLO CONVOY\n" {
		t.Errorf("output content = %q, want %q", content, "HELLO CONVOY\n")
	}
}

func TestExecuteFailurePublishesNothing(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, t.TempDir(), nil)

	if _, err := store.Put("source", sourceTar(t, map[string]string{"main.txt": "x"}), "artifact-key", builder); err != nil {
		t.Fatalf("Put(source) error: %v", err)
	}

	action := buildAction(
		[]string{"mkdir -p dist && echo partial > dist/partial.txt", "exit 3"},
		[]pipeline.Selection{{Artifact: "bundle", BaseDir: "dist", Files: []string{"*"}}},
	)

	_, err := executor.Execute(context.Background(), action, "artifact-key", builder)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("Execute() error = %v, want ErrBuildFailed", err)
	}
	if store.Contains("bundle") {
		t.Error("failed build published an output artifact")
	}
}

func TestExecuteEmptySelectionFails(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, t.TempDir(), nil)

	if _, err := store.Put("source", sourceTar(t, map[string]string{"main.txt": "x"}), "artifact-key", builder); err != nil {
		t.Fatalf("Put(source) error: %v", err)
	}

	action := buildAction(
		[]string{"true"},
		[]pipeline.Selection{{Artifact: "bundle", BaseDir: "dist", Files: []string{"*.tar"}}},
	)

	if _, err := executor.Execute(context.Background(), action, "artifact-key", builder); err == nil {
		t.Error("Execute() with empty selection succeeded, want error")
	}
	if store.Contains("bundle") {
		t.Error("empty selection still published an artifact")
	}
}

func TestExecuteMultipleOutputsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, t.TempDir(), nil)

	if _, err := store.Put("source", sourceTar(t, map[string]string{"main.txt": "x"}), "artifact-key", builder); err != nil {
		t.Fatalf("Put(source) error: %v", err)
	}

	// Second selection matches nothing: neither output may publish.
	action := buildAction(
		[]string{"mkdir -p dist && echo ok > dist/a.txt"},
		[]pipeline.Selection{
			{Artifact: "bundle", BaseDir: "dist", Files: []string{"a.txt"}},
			{Artifact: "template", BaseDir: "dist", Files: []string{"missing.json"}},
		},
	)

	if _, err := executor.Execute(context.Background(), action, "artifact-key", builder); err == nil {
		t.Fatal("Execute() succeeded despite empty second selection")
	}
	if store.Contains("bundle") || store.Contains("template") {
		t.Error("partial output set was published")
	}
}

func TestRejectsEscapingArchiveEntries(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, t.TempDir(), nil)

	if _, err := store.Put("source", sourceTar(t, map[string]string{"../escape.txt": "x"}), "artifact-key", builder); err != nil {
		t.Fatalf("Put(source) error: %v", err)
	}

	action := buildAction(
		[]string{"true"},
		[]pipeline.Selection{{Artifact: "bundle", Files: []string{"*"}}},
	)

	if _, err := executor.Execute(context.Background(), action, "artifact-key", builder); err == nil {
		t.Error("Execute() accepted an archive entry escaping the work directory")
	}
}
