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

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/cmd/roundup/commands/cmdutil"
	"github.com/venslabs/roundup/pkg/envutil"
	"github.com/venslabs/roundup/pkg/githubapi"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/tracker"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [flags]",
		Short: "List iterations and the tickets still open",
		Long: `List the iterations found in OUTDIR and the tickets that are open after folding
all finalized iterations. With --issues, the open tickets are listed as the tracker sees
them instead: ticket files by default, GitHub issues with --repo.`,
		Example:               "  roundup history\n  roundup history --issues --repo NixOS/nixpkgs",
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.Bool("json", false, "print JSON instead of tables")
	flags.Bool("issues", false, "list the open issues of the tracker")
	flags.String("repo", "", "GitHub repository (OWNER/REPO) searched by --issues [$GITHUB_TOKEN]")

	return cmd
}

// Entry is an open ticket after folding the history.
type Entry struct {
	Identity   string   `json:"identity"`
	Status     string   `json:"status"`
	Iteration  int      `json:"iteration"`
	Advisories []string `json:"advisories"`
}

// Overview describes the iteration directory.
type Overview struct {
	Iterations []int   `json:"iterations"`
	Finalized  []int   `json:"finalized"`
	Open       []Entry `json:"open"`
}

func action(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	base, err := cmdutil.OutDir(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := flags.GetBool("json")

	if issues, _ := flags.GetBool("issues"); issues {
		cfg, err := cmdutil.LoadConfig(cmd)
		if err != nil {
			return err
		}
		repo := cfg.GitHub.Repo
		if flags.Changed("repo") {
			repo, _ = flags.GetString("repo")
		}
		var t tracker.Tracker = &tracker.File{Base: base}
		if repo != "" {
			gh := githubapi.New(githubapi.Opts{BaseURL: cfg.GitHub.BaseURL, Token: envutil.String("GITHUB_TOKEN", "")})
			if t, err = tracker.NewGitHub(repo, gh); err != nil {
				return err
			}
		}
		return printIssues(ctx, cmd.OutOrStdout(), t, asJSON)
	}

	ov, err := Load(ctx, base)
	if err != nil {
		return err
	}
	if asJSON {
		return encode(cmd.OutOrStdout(), ov)
	}
	w := cmd.OutOrStdout()
	t := table.New(w)
	t.SetHeaders("Iterations", "Finalized", "Open Tickets")
	t.AddRow(strconv.Itoa(len(ov.Iterations)), strconv.Itoa(len(ov.Finalized)), strconv.Itoa(len(ov.Open)))
	t.Render()
	if len(ov.Open) > 0 {
		t := table.New(w)
		t.SetHeaders("Package", "Status", "Since", "Advisories")
		for _, e := range ov.Open {
			t.AddRow(e.Identity, e.Status, strconv.Itoa(e.Iteration), strconv.Itoa(len(e.Advisories)))
		}
		t.Render()
	}
	return nil
}

// Load folds every finalized iteration in base.
func Load(ctx context.Context, base string) (*Overview, error) {
	nums, final, err := history.ListIterations(base)
	if err != nil {
		return nil, err
	}
	ov := &Overview{Iterations: nums, Finalized: []int{}, Open: []Entry{}}
	last := 0
	for _, n := range nums {
		if final[n] {
			ov.Finalized = append(ov.Finalized, n)
			last = n
		}
	}
	if last == 0 {
		return ov, nil
	}
	h, err := history.Load(ctx, base, last+1)
	if err != nil {
		return nil, err
	}
	for _, id := range h.Open() {
		s, _ := h.Lookup(id)
		e := Entry{Identity: string(id), Status: string(s.Status), Iteration: s.Iteration}
		for _, a := range s.Advisories {
			e.Advisories = append(e.Advisories, a.String())
		}
		ov.Open = append(ov.Open, e)
	}
	return ov, nil
}

func printIssues(ctx context.Context, w io.Writer, t tracker.Tracker, asJSON bool) error {
	issues, err := t.Search(ctx)
	if err != nil {
		return fmt.Errorf("tracker %s: %w", t.Name(), err)
	}
	if asJSON {
		return encode(w, issues)
	}
	tbl := table.New(w)
	tbl.SetHeaders("#", "Title", "URL")
	for _, i := range issues {
		num := ""
		if i.Number > 0 {
			num = strconv.Itoa(i.Number)
		}
		link := i.HTMLURL
		if link == "" {
			link = i.URL
		}
		tbl.AddRow(num, i.Title, link)
	}
	tbl.Render()
	return nil
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
