package remote

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitLab is a minimal in-memory stand-in for the repository files
// API, just enough surface for the client.
type fakeGitLab struct {
	mu       sync.Mutex
	branches map[string]bool
	files    map[string][]byte // key: branch + "\x00" + target
	commits  []string
	failures int // responses to fail with 500 before recovering
}

func newFakeGitLab(branches ...string) *fakeGitLab {
	b := make(map[string]bool)
	for _, br := range branches {
		b[br] = true
	}
	return &fakeGitLab{branches: b, files: make(map[string][]byte)}
}

func (f *fakeGitLab) key(branch, target string) string { return branch + "\x00" + target }

func (f *fakeGitLab) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v4/projects/92/repository/branches/", func(w http.ResponseWriter, r *http.Request) {
		branch := r.URL.Path[len("/api/v4/projects/92/repository/branches/"):]
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.branches[branch] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/api/v4/projects/92/repository/files/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failures > 0 {
			f.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		target := r.URL.Path[len("/api/v4/projects/92/repository/files/"):]

		switch r.Method {
		case http.MethodGet:
			branch := r.URL.Query().Get("ref")
			content, ok := f.files[f.key(branch, target)]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sum := sha256.Sum256(content)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"content_sha256": hex.EncodeToString(sum[:]),
			})

		case http.MethodPost, http.MethodPut:
			var payload struct {
				Branch        string `json:"branch"`
				Content       string `json:"content"`
				CommitMessage string `json:"commit_message"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			// Content arrives base64-encoded; store it as-is for
			// comparison purposes.
			f.files[f.key(payload.Branch, target)] = decodeBase64(payload.Content)
			f.commits = append(f.commits, payload.CommitMessage)
			if r.Method == http.MethodPost {
				w.WriteHeader(http.StatusCreated)
			}

		case http.MethodDelete:
			var payload struct {
				Branch        string `json:"branch"`
				CommitMessage string `json:"commit_message"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			delete(f.files, f.key(payload.Branch, target))
			f.commits = append(f.commits, payload.CommitMessage)
		}
	})

	return mux
}

func decodeBase64(s string) []byte {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return data
}

func (f *fakeGitLab) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

func newTestClient(t *testing.T, srv *httptest.Server, branch string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:     srv.URL,
		Token:       "glpat-test",
		ProjectID:   "92",
		Branch:      branch,
		AuthorName:  "Test Author",
		AuthorEmail: "test@example.com",
		HTTPClient:  srv.Client(),
		MaxRetries:  3,
	})
	require.NoError(t, err)
	return c
}

func TestCommitFile_CreateThenUpdate(t *testing.T) {
	fake := newFakeGitLab("main")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "")
	ctx := context.Background()

	require.NoError(t, c.CommitFile(ctx, "data/htdocs/index.php", []byte("v1"), "Add index.php"))
	assert.Equal(t, 1, fake.commitCount())

	require.NoError(t, c.CommitFile(ctx, "data/htdocs/index.php", []byte("v2"), "Update index.php"))
	assert.Equal(t, 2, fake.commitCount())
}

func TestCommitFile_IdenticalContentIsNoOp(t *testing.T) {
	fake := newFakeGitLab("main")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "main")
	ctx := context.Background()

	require.NoError(t, c.CommitFile(ctx, "data/a.txt", []byte("same"), "Add a.txt"))
	require.NoError(t, c.CommitFile(ctx, "data/a.txt", []byte("same"), "Add a.txt"))

	assert.Equal(t, 1, fake.commitCount(), "identical content must not produce a second commit")
}

func TestCommitFile_RetriesTransientFailure(t *testing.T) {
	fake := newFakeGitLab("main")
	fake.failures = 2
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "main")
	require.NoError(t, c.CommitFile(context.Background(), "data/b.txt", []byte("x"), "Add b.txt"))
	assert.Equal(t, 1, fake.commitCount())
}

func TestCommitFile_PermanentFailureDoesNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"403 Forbidden"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "main")
	err := c.CommitFile(context.Background(), "data/c.txt", []byte("x"), "Add c.txt")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestDeleteFile(t *testing.T) {
	fake := newFakeGitLab("main")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "main")
	ctx := context.Background()

	require.NoError(t, c.CommitFile(ctx, "data/d.txt", []byte("x"), "Add d.txt"))
	require.NoError(t, c.DeleteFile(ctx, "data/d.txt", "Delete d.txt"))
	assert.Equal(t, 2, fake.commitCount())

	// Deleting again is a no-op, not an error.
	require.NoError(t, c.DeleteFile(ctx, "data/d.txt", "Delete d.txt"))
	assert.Equal(t, 2, fake.commitCount())
}

func TestResolveBranch_MasterFallback(t *testing.T) {
	fake := newFakeGitLab("master")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "")
	branch, err := c.resolveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestResolveBranch_EmptyRepositoryDefaultsToMain(t *testing.T) {
	fake := newFakeGitLab() // no branches yet
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, "")
	branch, err := c.resolveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestResolveBranch_AuthFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"401 Unauthorized"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	_, err := c.resolveBranch(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode, "a bad token must not pass for a missing branch")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&APIError{StatusCode: 500}))
	assert.True(t, IsTransient(&APIError{StatusCode: 429}))
	assert.False(t, IsTransient(&APIError{StatusCode: 404}))
	assert.False(t, IsTransient(&APIError{StatusCode: 403}))
	assert.False(t, IsTransient(nil))
}
