// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/convoy-ci/convoy/lib/secret"
)

// apiVersion is sent on every request. Pinning keeps behavior stable
// as the forge evolves its API.
const apiVersion = "2025-06-01"

// maxArchiveSize bounds how much of a revision archive the client
// will read (256 MiB). A source tree larger than this should not be
// flowing through a pipeline artifact.
const maxArchiveSize = 256 * 1024 * 1024

// Config holds what a Client needs.
type Config struct {
	// BaseURL is the forge API root. Must use HTTPS unless it points
	// at localhost (tests).
	BaseURL string

	// Token is the bearer token. Borrowed for the lifetime of the
	// client, not closed.
	Token *secret.Buffer

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Revision is a resolved head revision of a branch.
type Revision struct {
	SHA string `json:"sha"`
}

// Client talks to the revision source. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	etags map[string]string
}

// New validates the config and creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("forge base URL is required")
	}
	if !strings.HasPrefix(config.BaseURL, "https://") &&
		!strings.HasPrefix(config.BaseURL, "http://localhost") &&
		!strings.HasPrefix(config.BaseURL, "http://127.0.0.1") {
		return nil, fmt.Errorf("forge base URL must use https, got %s", config.BaseURL)
	}
	if config.Token == nil {
		return nil, fmt.Errorf("forge token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
		etags:      make(map[string]string),
	}, nil
}

// Head returns the head revision of a branch. The second return is
// false when the forge answered 304 Not Modified for the cached ETag,
// meaning the branch has not moved since the previous call.
func (c *Client) Head(ctx context.Context, owner, repo, branch string) (Revision, bool, error) {
	path := fmt.Sprintf("/repos/%s/%s/branches/%s", owner, repo, branch)

	c.mu.Lock()
	etag := c.etags[path]
	c.mu.Unlock()

	request, err := c.newRequest(ctx, path)
	if err != nil {
		return Revision{}, false, err
	}
	if etag != "" {
		request.Header.Set("If-None-Match", etag)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return Revision{}, false, fmt.Errorf("querying branch head: %w", err)
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusNotModified:
		return Revision{}, false, nil
	case http.StatusOK:
		// Fall through.
	default:
		return Revision{}, false, c.statusError(response)
	}

	var body struct {
		Commit Revision `json:"commit"`
	}
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return Revision{}, false, fmt.Errorf("decoding branch head: %w", err)
	}
	if body.Commit.SHA == "" {
		return Revision{}, false, fmt.Errorf("branch head response has no commit sha")
	}

	if newETag := response.Header.Get("ETag"); newETag != "" {
		c.mu.Lock()
		c.etags[path] = newETag
		c.mu.Unlock()
	}
	return body.Commit, true, nil
}

// Archive downloads the tar archive for a revision.
func (c *Client) Archive(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	path := fmt.Sprintf("/repos/%s/%s/tarball/%s", owner, repo, sha)
	request, err := c.newRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, c.statusError(response)
	}

	archive, err := io.ReadAll(io.LimitReader(response.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if len(archive) > maxArchiveSize {
		return nil, fmt.Errorf("archive for %s exceeds %d bytes", sha, maxArchiveSize)
	}
	return archive, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token.String())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Forge-Api-Version", apiVersion)
	return request, nil
}

// statusError turns a non-2xx response into an error carrying the
// status and a body excerpt.
func (c *Client) statusError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
	excerpt := strings.TrimSpace(string(body))
	if excerpt == "" {
		excerpt = http.StatusText(response.StatusCode)
	}
	return fmt.Errorf("forge returned %d: %s", response.StatusCode, excerpt)
}
