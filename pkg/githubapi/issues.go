package githubapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Issue is the subset of the GitHub issue object roundup reads.
type Issue struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state,omitempty"`
}

type CreateIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type searchResult struct {
	TotalCount int     `json:"total_count"`
	Items      []Issue `json:"items"`
}

// ParseRepo splits "OWNER/REPO".
func ParseRepo(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepo, s)
	}
	return owner, name, nil
}

func (c *Client) CreateIssue(ctx context.Context, repo string, r CreateIssueRequest) (*Issue, error) {
	if _, _, err := ParseRepo(repo); err != nil {
		return nil, err
	}
	var is Issue
	if err := c.do(ctx, "POST", "/repos/"+repo+"/issues", r, &is); err != nil {
		return nil, fmt.Errorf("creating issue in %s: %w", repo, err)
	}
	return &is, nil
}

// Comment adds a comment to issue number.
func (c *Client) Comment(ctx context.Context, repo string, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	if err := c.do(ctx, "POST", path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", repo, number, err)
	}
	return nil
}

// CloseIssue sets the state of issue number to closed.
func (c *Client) CloseIssue(ctx context.Context, repo string, number int) error {
	path := fmt.Sprintf("/repos/%s/issues/%d", repo, number)
	if err := c.do(ctx, "PATCH", path, map[string]string{"state": "closed"}, nil); err != nil {
		return fmt.Errorf("closing %s#%d: %w", repo, number, err)
	}
	return nil
}

// maxSearchPages caps SearchIssues; the search API stops at 1000 results anyway.
const maxSearchPages = 10

// SearchIssues runs an issue search query and collects all result pages.
func (c *Client) SearchIssues(ctx context.Context, query string) ([]Issue, error) {
	var out []Issue
	for page := 1; page <= maxSearchPages; page++ {
		var res searchResult
		path := fmt.Sprintf("/search/issues?q=%s&per_page=100&page=%d", url.QueryEscape(query), page)
		if err := c.do(ctx, "GET", path, nil, &res); err != nil {
			return nil, fmt.Errorf("searching issues: %w", err)
		}
		out = append(out, res.Items...)
		if len(res.Items) < 100 || len(out) >= res.TotalCount {
			break
		}
	}
	return out, nil
}

// UserExists reports whether a GitHub account named handle exists.
func (c *Client) UserExists(ctx context.Context, handle string) (bool, error) {
	err := c.do(ctx, "GET", "/users/"+url.PathEscape(handle), nil, nil)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	}
	return false, err
}
