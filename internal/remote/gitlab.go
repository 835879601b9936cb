// Package remote implements the repository transport against the GitLab
// repository-files REST API. Commits and deletes are idempotent under
// retry: pushing identical content twice is a no-op, deleting a missing
// file succeeds.
package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prostopil/patchwatch/internal/logging"
)

// Options configures the GitLab client.
type Options struct {
	// BaseURL is the instance root, e.g. http://10.19.1.20.
	BaseURL string
	// Token is the private token sent as PRIVATE-TOKEN.
	Token string
	// ProjectID identifies the project (numeric ID or URL-encoded path).
	ProjectID string
	// Branch pins the branch to commit to. Empty enables the main→master
	// fallback probe.
	Branch string
	// AuthorName and AuthorEmail attribute commits.
	AuthorName  string
	AuthorEmail string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	// MaxRetries bounds in-call retries of transient failures.
	MaxRetries uint64
}

// Client talks to one GitLab project's repository files API.
type Client struct {
	base       string
	token      string
	projectID  string
	author     string
	email      string
	http       *http.Client
	maxRetries uint64

	mu     sync.Mutex
	branch string // resolved lazily when Options.Branch is empty
}

// NewClient creates a GitLab transport client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gitlab base URL is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("gitlab project ID is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 2
	}
	return &Client{
		base:       strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		projectID:  opts.ProjectID,
		author:     opts.AuthorName,
		email:      opts.AuthorEmail,
		http:       hc,
		maxRetries: retries,
		branch:     opts.Branch,
	}, nil
}

// fileURL builds the repository-files endpoint for a target path. The
// path is percent-encoded as a single segment, slashes included.
func (c *Client) fileURL(target string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s",
		c.base, url.PathEscape(c.projectID), url.PathEscape(target))
}

// resolveBranch returns the branch to commit to, probing main and then
// master when none is configured. The result is cached.
func (c *Client) resolveBranch(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.branch != "" {
		return c.branch, nil
	}

	for _, candidate := range []string{"main", "master"} {
		u := fmt.Sprintf("%s/api/v4/projects/%s/repository/branches/%s",
			c.base, url.PathEscape(c.projectID), candidate)
		status, body, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", err
		}
		switch status {
		case http.StatusOK:
			c.branch = candidate
			return candidate, nil
		case http.StatusNotFound:
			// Try the next candidate.
		default:
			// Anything else is a real failure (bad token, server error),
			// not a missing branch.
			return "", &APIError{StatusCode: status, Body: truncate(body)}
		}
	}
	// Neither exists; an empty repository accepts the first commit on
	// main.
	c.branch = "main"
	return c.branch, nil
}

// fileInfo is the subset of the GET response the client needs.
type fileInfo struct {
	ContentSHA256 string `json:"content_sha256"`
}

// getFile fetches metadata for target on branch. Returns found=false on
// 404.
func (c *Client) getFile(ctx context.Context, target, branch string) (fileInfo, bool, error) {
	u := c.fileURL(target) + "?ref=" + url.QueryEscape(branch)
	status, body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fileInfo{}, false, err
	}
	switch status {
	case http.StatusOK:
		var info fileInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return fileInfo{}, false, fmt.Errorf("decode file response: %w", err)
		}
		return info, true, nil
	case http.StatusNotFound:
		return fileInfo{}, false, nil
	default:
		return fileInfo{}, false, &APIError{StatusCode: status, Body: truncate(body)}
	}
}

// commitPayload is the create/update/delete request body.
type commitPayload struct {
	Branch        string `json:"branch"`
	Content       string `json:"content,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
	CommitMessage string `json:"commit_message"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorEmail   string `json:"author_email,omitempty"`
}

// CommitFile creates or updates target with content. Identical content
// already on the remote is detected by SHA-256 and skipped.
func (c *Client) CommitFile(ctx context.Context, target string, content []byte, message string) error {
	return c.retry(ctx, func() error {
		branch, err := c.resolveBranch(ctx)
		if err != nil {
			return err
		}

		info, exists, err := c.getFile(ctx, target, branch)
		if err != nil {
			return err
		}

		if exists && info.ContentSHA256 != "" {
			sum := sha256.Sum256(content)
			if hex.EncodeToString(sum[:]) == info.ContentSHA256 {
				logging.Debug("remote content identical, skipping commit",
					logging.Target(target))
				return nil
			}
		}

		payload := commitPayload{
			Branch:        branch,
			Content:       base64.StdEncoding.EncodeToString(content),
			Encoding:      "base64",
			CommitMessage: message,
			AuthorName:    c.author,
			AuthorEmail:   c.email,
		}

		method := http.MethodPost
		if exists {
			method = http.MethodPut
		}
		status, body, err := c.do(ctx, method, c.fileURL(target), payload)
		if err != nil {
			return err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return &APIError{StatusCode: status, Body: truncate(body)}
		}
		return nil
	})
}

// DeleteFile removes target. A file already absent on the remote counts
// as success.
func (c *Client) DeleteFile(ctx context.Context, target string, message string) error {
	return c.retry(ctx, func() error {
		branch, err := c.resolveBranch(ctx)
		if err != nil {
			return err
		}

		_, exists, err := c.getFile(ctx, target, branch)
		if err != nil {
			return err
		}
		if !exists {
			logging.Debug("remote file already absent, delete is a no-op",
				logging.Target(target))
			return nil
		}

		payload := commitPayload{
			Branch:        branch,
			CommitMessage: message,
			AuthorName:    c.author,
			AuthorEmail:   c.email,
		}
		status, body, err := c.do(ctx, http.MethodDelete, c.fileURL(target), payload)
		if err != nil {
			return err
		}
		if status != http.StatusOK && status != http.StatusNoContent {
			return &APIError{StatusCode: status, Body: truncate(body)}
		}
		return nil
	})
}

// retry wraps an operation with bounded exponential backoff. Only
// transient failures retry; client errors surface immediately.
func (c *Client) retry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
}

// do performs one HTTP request, returning the status and body. Network
// failures are wrapped as connection errors so IsTransient can classify
// them.
func (c *Client) do(ctx context.Context, method, u string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errConnection, err)
	}
	return resp.StatusCode, data, nil
}

func truncate(body []byte) string {
	const max = 500
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
