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

// Package history reads the append-only log of iteration directories and folds it into
// the set of currently open tickets.
package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/ticket"
)

// FinalizedMarker is written last into an iteration directory. Iterations without it
// were interrupted and are not part of the history.
const FinalizedMarker = "summary.json"

// Snapshot is the most recent lifecycle state of one ticket identity.
type Snapshot struct {
	Identity ticket.Identity
	Package  finding.Package
	Status   ticket.Status
	// Iteration is where Status was recorded.
	Iteration int
	Reason    ticket.Reason
	// Advisories lists the advisories the last persisted ticket carried.
	Advisories []finding.Advisory
	// Implied is set when the identity was dropped without an explicit closure
	// notice and is therefore considered resolved.
	Implied bool
}

// Open reports whether the snapshot represents an open ticket.
func (s Snapshot) Open() bool { return s.Status.Open() }

// History is the folded state of all finalized iterations before the current one.
type History struct {
	// Iterations lists the finalized prior iterations, oldest first.
	Iterations []int
	Snapshots  map[ticket.Identity]Snapshot
}

// Latest returns the most recent prior iteration, or 0 if there is none.
func (h *History) Latest() int {
	if h == nil || len(h.Iterations) == 0 {
		return 0
	}
	return h.Iterations[len(h.Iterations)-1]
}

// Lookup returns the snapshot for id.
func (h *History) Lookup(id ticket.Identity) (Snapshot, bool) {
	if h == nil {
		return Snapshot{}, false
	}
	s, ok := h.Snapshots[id]
	return s, ok
}

// OpenSnapshot returns the snapshot for id if its ticket is open.
func (h *History) OpenSnapshot(id ticket.Identity) (Snapshot, bool) {
	s, ok := h.Lookup(id)
	if !ok || !s.Open() {
		return Snapshot{}, false
	}
	return s, true
}

// Open returns the identities of open tickets, sorted.
func (h *History) Open() []ticket.Identity {
	if h == nil {
		return nil
	}
	var out []ticket.Identity
	for id, s := range h.Snapshots {
		if s.Open() {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// IterDir returns the directory of iteration n below base.
func IterDir(base string, n int) string {
	return filepath.Join(base, strconv.Itoa(n))
}

// ListIterations returns the numbers of all iteration directories below base, sorted,
// and whether each is finalized.
func ListIterations(base string) ([]int, map[int]bool, error) {
	ents, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var nums []int
	final := make(map[int]bool)
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n <= 0 || strconv.Itoa(n) != e.Name() {
			continue
		}
		nums = append(nums, n)
		if _, err := os.Stat(filepath.Join(base, e.Name(), FinalizedMarker)); err == nil {
			final[n] = true
		}
	}
	slices.Sort(nums)
	return nums, final, nil
}

// NextIteration returns one past the highest existing iteration number.
func NextIteration(base string) (int, error) {
	nums, _, err := ListIterations(base)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 1, nil
	}
	return nums[len(nums)-1] + 1, nil
}

// Load folds the finalized iterations before current, newest first. For each identity
// the most recent state wins; an identity missing from the newest iteration is taken
// as resolved. Any ticket that cannot be read back aborts with ticket.ErrHistoryCorrupt.
func Load(ctx context.Context, base string, current int) (*History, error) {
	if current <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIteration, current)
	}
	nums, final, err := ListIterations(base)
	if err != nil {
		return nil, err
	}
	h := &History{Snapshots: make(map[ticket.Identity]Snapshot)}
	for _, n := range nums {
		switch {
		case n > current && final[n]:
			return nil, fmt.Errorf("%w: %d is finalized, computing %d", ErrIterationOrder, n, current)
		case n < current && final[n]:
			h.Iterations = append(h.Iterations, n)
		case n < current:
			slog.WarnContext(ctx, "Skipping unfinalized iteration", "iteration", n)
		}
	}

	for i := len(h.Iterations) - 1; i >= 0; i-- {
		n := h.Iterations[i]
		tickets, err := LoadIteration(IterDir(base, n), n)
		if err != nil {
			return nil, err
		}
		newest := i == len(h.Iterations)-1
		for _, p := range tickets {
			if _, seen := h.Snapshots[p.Identity]; seen {
				continue
			}
			s := Snapshot{
				Identity:   p.Identity,
				Package:    p.Package,
				Status:     p.Status,
				Iteration:  n,
				Reason:     p.Reason,
				Advisories: advisories(p),
			}
			if !newest && s.Open() {
				s.Status, s.Implied = ticket.StatusResolved, true
			}
			h.Snapshots[p.Identity] = s
		}
	}
	slog.DebugContext(ctx, "Loaded history", "iterations", len(h.Iterations), "identities", len(h.Snapshots), "open", len(h.Open()))
	return h, nil
}

func advisories(p *ticket.Parsed) []finding.Advisory {
	out := make([]finding.Advisory, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Advisory)
	}
	slices.SortFunc(out, finding.Advisory.Compare)
	return slices.Compact(out)
}

// LoadIteration parses every ticket of one iteration directory. A ticket whose file
// name, iteration or identity is inconsistent, or two tickets with the same identity,
// make the history corrupt.
func LoadIteration(dir string, n int) ([]*ticket.Parsed, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []*ticket.Parsed
	seen := make(map[ticket.Identity]string)
	for _, e := range ents {
		if e.IsDir() || !ticket.IsTicketFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		p, err := ticket.ParseDocument(b)
		if err != nil {
			var ce *ticket.CorruptTicketError
			if errors.As(err, &ce) {
				ce.Path = path
			}
			return nil, err
		}
		if want := p.Identity.FileName(); want != e.Name() {
			return nil, &ticket.CorruptTicketError{Path: path, Reason: fmt.Sprintf("identity %s belongs in %s", p.Identity, want)}
		}
		if p.Iteration != n {
			return nil, &ticket.CorruptTicketError{Path: path, Reason: fmt.Sprintf("ticket of iteration %d found in iteration %d", p.Iteration, n)}
		}
		if prev, dup := seen[p.Identity]; dup {
			return nil, &ticket.CorruptTicketError{Path: path, Reason: fmt.Sprintf("identity %s already defined by %s", p.Identity, prev)}
		}
		seen[p.Identity] = path
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *ticket.Parsed) int { return compareIdentity(a.Identity, b.Identity) })
	return out, nil
}

func compareIdentity(a, b ticket.Identity) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
