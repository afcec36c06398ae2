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
	"os"
	"path/filepath"
	"slices"

	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/ticket"
)

// File writes one ticket.<identity>.md per document into the iteration directory.
type File struct {
	// Base is the directory holding all iterations, used by Search.
	Base string
}

func (f *File) Name() string { return "file" }

// CreateIssues writes docs and removes ticket files of the same iteration that are no
// longer part of it, so a re-run leaves exactly the documents of its last run.
func (f *File) CreateIssues(ctx context.Context, iterDir string, docs []ticket.Document) ([]Filed, error) {
	if err := os.MkdirAll(iterDir, 0o755); err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(docs))
	out := make([]Filed, 0, len(docs))
	for _, d := range docs {
		name := d.FileName()
		if keep[name] {
			return nil, fmt.Errorf("duplicate ticket file %s for %s", name, d.Identity)
		}
		keep[name] = true
		path := filepath.Join(iterDir, name)
		if err := writeFileAtomic(path, d.Bytes()); err != nil {
			return nil, fmt.Errorf("cannot write ticket %s: %w", d.Identity, err)
		}
		slog.InfoContext(ctx, "Wrote ticket", "identity", d.Identity, "status", d.Status, "path", path)
		out = append(out, Filed{Identity: d.Identity, Status: d.Status, URL: path})
	}

	ents, err := os.ReadDir(iterDir)
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		if e.IsDir() || !ticket.IsTicketFile(e.Name()) || keep[e.Name()] {
			continue
		}
		slog.InfoContext(ctx, "Removing stale ticket", "path", e.Name())
		if err := os.Remove(filepath.Join(iterDir, e.Name())); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Search lists the open tickets of the latest finalized iteration.
func (f *File) Search(ctx context.Context) ([]Issue, error) {
	nums, final, err := history.ListIterations(f.Base)
	if err != nil {
		return nil, err
	}
	slices.Reverse(nums)
	for _, n := range nums {
		if !final[n] {
			continue
		}
		dir := history.IterDir(f.Base, n)
		parsed, err := history.LoadIteration(dir, n)
		if err != nil {
			return nil, err
		}
		var out []Issue
		for _, p := range parsed {
			if !p.Status.Open() {
				continue
			}
			out = append(out, Issue{URL: filepath.Join(dir, p.Identity.FileName()), Title: p.Title})
		}
		return out, nil
	}
	return nil, nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(b); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
