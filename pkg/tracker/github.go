// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/venslabs/roundup/pkg/githubapi"
	"github.com/venslabs/roundup/pkg/ticket"
)

// SecurityLabel is attached to every filed issue.
const SecurityLabel = "1.severity: security"

// GitHub files NEW and CARRIED tickets as issues and links them to older open issues
// of the same package. RESOLVED tickets close those issues with the closure notice.
type GitHub struct {
	Repo   string
	Client *githubapi.Client
}

// NewGitHub validates repo ("OWNER/REPO") and requires an authenticated client.
func NewGitHub(repo string, c *githubapi.Client) (*GitHub, error) {
	if _, _, err := githubapi.ParseRepo(repo); err != nil {
		return nil, err
	}
	if !c.HasToken() {
		return nil, githubapi.ErrNoToken
	}
	return &GitHub{Repo: repo, Client: c}, nil
}

func (g *GitHub) Name() string { return "github:" + g.Repo }

func (g *GitHub) relatedQuery(id ticket.Identity) string {
	return fmt.Sprintf(`repo:%s is:open label:"%s" in:title "Vulnerability roundup " " %s: "`, g.Repo, SecurityLabel, id)
}

func (g *GitHub) related(ctx context.Context, id ticket.Identity, except int) ([]githubapi.Issue, error) {
	found, err := g.Client.SearchIssues(ctx, g.relatedQuery(id))
	if err != nil {
		return nil, err
	}
	var out []githubapi.Issue
	for _, is := range found {
		// the search matches words, not the exact identity
		if is.Number == except || !strings.Contains(is.Title, " "+string(id)+": ") {
			continue
		}
		out = append(out, is)
	}
	return out, nil
}

func (g *GitHub) CreateIssues(ctx context.Context, _ string, docs []ticket.Document) ([]Filed, error) {
	var out []Filed
	for _, d := range docs {
		if d.Status == ticket.StatusResolved {
			if err := g.close(ctx, d); err != nil {
				return out, err
			}
			continue
		}
		is, err := g.Client.CreateIssue(ctx, g.Repo, githubapi.CreateIssueRequest{
			Title:  d.Title,
			Body:   d.Body,
			Labels: []string{SecurityLabel},
		})
		if err != nil {
			return out, err
		}
		slog.InfoContext(ctx, "Created issue", "identity", d.Identity, "url", is.HTMLURL)
		out = append(out, Filed{Identity: d.Identity, Status: d.Status, URL: is.HTMLURL, Number: is.Number})

		rel, err := g.related(ctx, d.Identity, is.Number)
		if err != nil {
			return out, err
		}
		if len(rel) == 0 {
			continue
		}
		refs := make([]string, len(rel))
		for i, r := range rel {
			refs[i] = fmt.Sprintf("#%d", r.Number)
		}
		if err := g.Client.Comment(ctx, g.Repo, is.Number, "See also: "+strings.Join(refs, ", ")); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (g *GitHub) close(ctx context.Context, d ticket.Document) error {
	rel, err := g.related(ctx, d.Identity, 0)
	if err != nil {
		return err
	}
	for _, r := range rel {
		if err := g.Client.Comment(ctx, g.Repo, r.Number, d.Title+"\n\n"+d.Body); err != nil {
			return err
		}
		if err := g.Client.CloseIssue(ctx, g.Repo, r.Number); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Closed issue", "identity", d.Identity, "number", r.Number)
	}
	return nil
}

// Search returns the open roundup issues of the repository.
func (g *GitHub) Search(ctx context.Context) ([]Issue, error) {
	found, err := g.Client.SearchIssues(ctx, fmt.Sprintf(`repo:%s is:open label:"%s" in:title "Vulnerability roundup "`, g.Repo, SecurityLabel))
	if err != nil {
		return nil, err
	}
	out := make([]Issue, len(found))
	for i, is := range found {
		out[i] = Issue{ID: is.ID, URL: is.URL, HTMLURL: is.HTMLURL, Number: is.Number, Title: is.Title, Body: is.Body}
	}
	return out, nil
}
