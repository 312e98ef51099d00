// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/convoy-ci/convoy/lib/keyring"
)

// Directory names within the store root.
const (
	payloadDir = "payloads"
	recordDir  = "records"
	tmpDir     = "tmp"
)

var (
	// ErrStoreUnavailable means the backing directory cannot accept a
	// write.
	ErrStoreUnavailable = errors.New("artifact store unavailable")

	// ErrNotFound means no committed artifact exists under the
	// requested name.
	ErrNotFound = errors.New("artifact not found")
)

// Ref is a committed artifact reference: the declared name plus the
// encryption key protecting it.
type Ref struct {
	Name  string
	KeyID string
}

// Location is the opaque location descriptor for an artifact,
// computable before the payload exists. Parameter overrides in deploy
// templates are built from these.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the location as "bucket/key", the form injected into
// template parameters.
func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// Store holds staged artifacts for pipeline runs, encrypted at rest.
// Concurrent readers are permitted; writers of new artifacts are
// serialized. Committed artifacts are immutable.
//
// A Store value is either the root store returned by [NewStore] or a
// run view returned by [Store.ForRun]. Views share the backing
// directory and index with the root; they differ only in the run
// prefix applied to artifact names.
type Store struct {
	state *storeState
	run   string
}

// storeState is the backing state shared by the root store and every
// run view derived from it.
type storeState struct {
	root        string
	bucket      string
	keys        *keyring.Keyring
	compression CompressionTag

	mu    sync.RWMutex
	index map[string]*record
}

// Option configures a Store.
type Option func(*Store)

// WithCompression selects the compression algorithm for new payloads.
// The default is zstd.
func WithCompression(tag CompressionTag) Option {
	return func(s *Store) { s.state.compression = tag }
}

// NewStore opens (or creates) a store rooted at the given directory.
// The bucket name is the logical prefix reported in artifact
// locations. Records already on disk from a previous process are
// loaded into the index.
func NewStore(root, bucket string, keys *keyring.Keyring, options ...Option) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("store bucket name is required")
	}
	for _, dir := range []string{
		root,
		filepath.Join(root, payloadDir),
		filepath.Join(root, recordDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	store := &Store{state: &storeState{
		root:        root,
		bucket:      bucket,
		keys:        keys,
		compression: CompressionZstd,
		index:       make(map[string]*record),
	}}
	for _, option := range options {
		option(store)
	}

	if err := store.loadIndex(); err != nil {
		return nil, err
	}
	return store, nil
}

// ForRun returns a view of the store whose artifact names are
// prefixed by the run identifier. Successive executions publish
// outputs under the same declared names without colliding, while
// artifacts stay immutable within a run. The identifier becomes part
// of every location, so a location is still computable before its
// payload exists.
func (s *Store) ForRun(run string) (*Store, error) {
	if run == "" {
		return nil, fmt.Errorf("run identifier is required")
	}
	if strings.ContainsAny(run, "/\\") {
		return nil, fmt.Errorf("run identifier %q contains a path separator", run)
	}
	return &Store{state: s.state, run: run}, nil
}

// scoped maps a declared artifact name into the store's namespace.
// The root store stores names as declared.
func (s *Store) scoped(name string) string {
	if s.run == "" {
		return name
	}
	return s.run + "/" + name
}

// loadIndex reads every record file into the in-memory index.
func (s *Store) loadIndex() error {
	entries, err := os.ReadDir(filepath.Join(s.state.root, recordDir))
	if err != nil {
		return fmt.Errorf("scanning records: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cbor") {
			continue
		}
		r, err := readRecord(filepath.Join(s.state.root, recordDir, entry.Name()))
		if err != nil {
			return err
		}
		s.state.index[r.Name] = r
	}
	return nil
}

// LocationOf computes the logical location for an artifact name. Pure
// computation over the name and the run — valid before, during, and
// after the payload is written, and stable across all three.
func (s *Store) LocationOf(name string) Location {
	return Location{
		Bucket: s.state.bucket,
		Key:    path.Join("artifacts", s.scoped(name)),
	}
}

// Put encrypts and commits a single artifact. The principal must hold
// an encrypt grant on the referenced key. Returns
// ErrEncryptionUnauthorized (via the keyring) when the grant is
// missing and ErrStoreUnavailable when the backing directory rejects
// the write.
func (s *Store) Put(name string, payload []byte, keyID string, principal keyring.Principal) (Ref, error) {
	staging := s.Begin()
	defer staging.Discard()
	if err := staging.Add(name, payload, keyID, principal); err != nil {
		return Ref{}, err
	}
	refs, err := staging.Commit()
	if err != nil {
		return Ref{}, err
	}
	return refs[0], nil
}

// Get returns the plaintext payload of a committed artifact. The
// principal must hold a decrypt grant on the artifact's key; the
// grant is checked before any bytes are read, and a missing grant is
// ErrAccessDenied even when the bytes exist. A name that was never
// committed is ErrNotFound.
func (s *Store) Get(name string, principal keyring.Principal) ([]byte, error) {
	scoped := s.scoped(name)
	s.state.mu.RLock()
	r, ok := s.state.index[scoped]
	s.state.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifact %q: %w", name, ErrNotFound)
	}

	key, err := s.state.keys.Lookup(r.KeyID)
	if err != nil {
		return nil, err
	}
	if err := key.Authorize(principal, keyring.Decrypt); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(filepath.Join(s.state.root, payloadDir, fileName(scoped)))
	if err != nil {
		return nil, fmt.Errorf("reading payload for %q: %w", name, err)
	}

	derived, err := deriveArtifactKey(key.Material(), scoped)
	if err != nil {
		return nil, err
	}
	defer derived.Close()

	compressed, err := open(derived, blob)
	if err != nil {
		return nil, fmt.Errorf("artifact %q: %w", name, err)
	}
	payload, err := decompress(r.Compression, compressed, r.PlainSize)
	if err != nil {
		return nil, fmt.Errorf("artifact %q: %w", name, err)
	}

	if !bytes.Equal(hashPayload(payload), r.PlainHash) {
		return nil, fmt.Errorf("artifact %q: payload hash mismatch", name)
	}
	return payload, nil
}

// Contains reports whether an artifact is committed under the name.
func (s *Store) Contains(name string) bool {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	_, ok := s.state.index[s.scoped(name)]
	return ok
}

// Begin starts an all-or-nothing publication of one or more
// artifacts. Entries added to the staging are encrypted and written
// under tmp/ immediately; nothing becomes visible to Get until Commit
// renames the full set into place.
func (s *Store) Begin() *Staging {
	return &Staging{store: s}
}

// Staging accumulates artifacts for atomic publication. Not safe for
// concurrent use by multiple goroutines; each producing action owns
// its staging.
type Staging struct {
	store   *Store
	entries []stagedEntry
	done    bool
}

type stagedEntry struct {
	record      *record
	payloadPath string // tmp file holding the sealed payload
	recordPath  string // tmp file holding the CBOR record
}

// Add encrypts one payload into the staging area. The encrypt grant
// is checked here, before any bytes are written.
func (st *Staging) Add(name string, payload []byte, keyID string, principal keyring.Principal) error {
	if st.done {
		return fmt.Errorf("staging already committed or discarded")
	}
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}
	name = st.store.scoped(name)

	key, err := st.store.state.keys.Lookup(keyID)
	if err != nil {
		return err
	}
	if err := key.Authorize(principal, keyring.Encrypt); err != nil {
		return err
	}

	tag, compressed, err := compress(st.store.state.compression, payload)
	if err != nil {
		return fmt.Errorf("artifact %q: %w", name, err)
	}
	derived, err := deriveArtifactKey(key.Material(), name)
	if err != nil {
		return err
	}
	blob, err := seal(derived, compressed)
	derived.Close()
	if err != nil {
		return fmt.Errorf("artifact %q: %w", name, err)
	}

	base := fileName(name)
	payloadPath := filepath.Join(st.store.state.root, tmpDir, base+".payload")
	recordPath := filepath.Join(st.store.state.root, tmpDir, base+".record")
	if err := os.WriteFile(payloadPath, blob, 0o644); err != nil {
		return fmt.Errorf("staging %q: %w: %v", name, ErrStoreUnavailable, err)
	}

	r := &record{
		Name:        name,
		KeyID:       keyID,
		PlainHash:   hashPayload(payload),
		PlainSize:   int64(len(payload)),
		Compression: tag,
		CreatedAt:   time.Now().Unix(),
	}
	if err := writeRecord(recordPath, r); err != nil {
		os.Remove(payloadPath)
		return fmt.Errorf("staging %q: %w: %v", name, ErrStoreUnavailable, err)
	}

	st.entries = append(st.entries, stagedEntry{
		record:      r,
		payloadPath: payloadPath,
		recordPath:  recordPath,
	})
	return nil
}

// Commit publishes every staged artifact, or none. Name collisions
// with committed artifacts fail the whole set — committed artifacts
// are immutable for the life of the store.
func (st *Staging) Commit() ([]Ref, error) {
	if st.done {
		return nil, fmt.Errorf("staging already committed or discarded")
	}
	st.done = true

	state := st.store.state
	state.mu.Lock()
	defer state.mu.Unlock()

	for _, entry := range st.entries {
		if _, exists := state.index[entry.record.Name]; exists {
			st.removeTempFiles()
			return nil, fmt.Errorf("artifact %q is already committed", entry.record.Name)
		}
	}

	// Rename payloads then records into place. Rename within a
	// filesystem does not fail for content reasons; if one fails
	// anyway (store directory removed mid-run), unpublish what made
	// it and report the store unavailable.
	published := make([]stagedEntry, 0, len(st.entries))
	for _, entry := range st.entries {
		base := fileName(entry.record.Name)
		finalPayload := filepath.Join(state.root, payloadDir, base)
		finalRecord := filepath.Join(state.root, recordDir, base+".cbor")
		if err := os.Rename(entry.payloadPath, finalPayload); err != nil {
			st.unpublish(published)
			st.removeTempFiles()
			return nil, fmt.Errorf("publishing %q: %w: %v", entry.record.Name, ErrStoreUnavailable, err)
		}
		if err := os.Rename(entry.recordPath, finalRecord); err != nil {
			os.Remove(finalPayload)
			st.unpublish(published)
			st.removeTempFiles()
			return nil, fmt.Errorf("publishing %q: %w: %v", entry.record.Name, ErrStoreUnavailable, err)
		}
		published = append(published, entry)
	}

	// Only now does the index learn the artifacts exist.
	refs := make([]Ref, 0, len(st.entries))
	for _, entry := range st.entries {
		state.index[entry.record.Name] = entry.record
		refs = append(refs, Ref{Name: entry.record.Name, KeyID: entry.record.KeyID})
	}
	return refs, nil
}

// Discard removes staged temp files without publishing. Safe to call
// after Commit (no-op).
func (st *Staging) Discard() {
	if st.done {
		return
	}
	st.done = true
	st.removeTempFiles()
}

func (st *Staging) removeTempFiles() {
	for _, entry := range st.entries {
		os.Remove(entry.payloadPath)
		os.Remove(entry.recordPath)
	}
}

func (st *Staging) unpublish(published []stagedEntry) {
	state := st.store.state
	for _, entry := range published {
		base := fileName(entry.record.Name)
		os.Remove(filepath.Join(state.root, payloadDir, base))
		os.Remove(filepath.Join(state.root, recordDir, base+".cbor"))
	}
}
