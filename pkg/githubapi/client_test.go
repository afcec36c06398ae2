package githubapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Opts{
		BaseURL:           srv.URL,
		Token:             "secret",
		RequestsPerSecond: 1000,
		RetryInterval:     time.Millisecond,
		MaxRetry:          3,
	})
}

func TestUserExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/users/alice":
			_, _ = w.Write([]byte(`{"login":"alice"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))
	ok, err := c.UserExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UserExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for 1.2.3.4."}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	ok, err := c.UserExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	_, err := c.UserExists(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "still hitting rate limit")
}

func TestPermissionDeniedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Resource not accessible by integration"}`))
	}))
	err := c.Comment(context.Background(), "o/r", 1, "hi")
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCreateIssueAndComment(t *testing.T) {
	var got CreateIssueRequest
	var comment map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/repos/NixOS/nixpkgs/issues":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1,"number":42,"html_url":"https://github.com/NixOS/nixpkgs/issues/42","title":"t"}`))
		case r.Method == "POST" && r.URL.Path == "/repos/NixOS/nixpkgs/issues/42/comments":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&comment))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	is, err := c.CreateIssue(context.Background(), "NixOS/nixpkgs", CreateIssueRequest{Title: "t", Body: "b", Labels: []string{"1.severity: security"}})
	require.NoError(t, err)
	assert.Equal(t, 42, is.Number)
	assert.Equal(t, []string{"1.severity: security"}, got.Labels)

	require.NoError(t, c.Comment(context.Background(), "NixOS/nixpkgs", 42, "See also: #1"))
	assert.Equal(t, "See also: #1", comment["body"])

	_, err = c.CreateIssue(context.Background(), "nixpkgs", CreateIssueRequest{Title: "t"})
	assert.ErrorIs(t, err, ErrInvalidRepo)
}

func TestSearchIssuesPaginates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		assert.Equal(t, `repo:o/r is:open "Vulnerability roundup "`, r.URL.Query().Get("q"))
		items := make([]Issue, 100)
		if r.URL.Query().Get("page") == "2" {
			items = items[:5]
		}
		for i := range items {
			items[i].Number = i + 1
		}
		_ = json.NewEncoder(w).Encode(searchResult{TotalCount: 105, Items: items})
	}))
	got, err := c.SearchIssues(context.Background(), `repo:o/r is:open "Vulnerability roundup "`)
	require.NoError(t, err)
	assert.Len(t, got, 105)
}

func TestParseRepo(t *testing.T) {
	o, n, err := ParseRepo("NixOS/nixpkgs")
	require.NoError(t, err)
	assert.Equal(t, "NixOS", o)
	assert.Equal(t, "nixpkgs", n)
	for _, s := range []string{"", "nixpkgs", "/x", "a/", "a/b/c"} {
		_, _, err := ParseRepo(s)
		assert.ErrorIs(t, err, ErrInvalidRepo, s)
	}
}
