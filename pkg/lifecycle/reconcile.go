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

package lifecycle

import (
	"cmp"
	"slices"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/ticket"
	"github.com/venslabs/roundup/pkg/whitelist"
)

// Decision is the outcome for one ticket identity.
type Decision struct {
	Identity ticket.Identity
	Status   ticket.Status
	// Ticket is the content to render. For RESOLVED decisions it lists the advisories
	// of the closed ticket, all marked fixed.
	Ticket ticket.Ticket
	// Added and Removed compare the advisories against the previous open ticket.
	Added   []finding.Advisory
	Removed []finding.Advisory
	// Previous is the iteration of the history entry the decision is based on, 0 for
	// NEW tickets.
	Previous int
}

// Options carry the per-iteration inputs of Reconcile.
type Options struct {
	Iteration int
	// Channels are the scanned channels, rendered into every ticket footer.
	Channels channel.Set
	// Suppressed findings tell a ticket closed by whitelisting from a fixed one.
	Suppressed []whitelist.Suppression
	// Maintainers maps identities to normalized handles to ping.
	Maintainers map[ticket.Identity][]string
}

// Reconcile computes the decisions of one iteration from the active findings grouped
// by identity and the folded history. Decisions are independent per identity and
// returned sorted by identity; identities with neither findings nor an open ticket
// produce nothing.
func Reconcile(groups []Group, hist *history.History, o Options) []Decision {
	suppressed := suppressedByIdentity(o.Suppressed)
	active := make(map[ticket.Identity]bool, len(groups))

	var out []Decision
	for _, g := range groups {
		active[g.Identity] = true
		out = append(out, carry(g, hist, o))
	}
	for _, id := range hist.Open() {
		if active[id] {
			continue
		}
		snap, _ := hist.OpenSnapshot(id)
		out = append(out, resolve(snap, suppressed[id], o))
	}
	slices.SortFunc(out, func(a, b Decision) int { return cmp.Compare(a.Identity, b.Identity) })
	return out
}

func carry(g Group, hist *history.History, o Options) Decision {
	t := ticket.Ticket{
		Iteration:   o.Iteration,
		Identity:    g.Identity,
		Package:     g.Package,
		Entries:     entries(g.Findings),
		Maintainers: o.Maintainers[g.Identity],
		Channels:    o.Channels,
		Status:      ticket.StatusNew,
	}
	d := Decision{Identity: g.Identity, Status: ticket.StatusNew}
	cur := t.Advisories()
	if snap, ok := hist.OpenSnapshot(g.Identity); ok {
		t.Status = ticket.StatusCarried
		d.Status = ticket.StatusCarried
		d.Previous = snap.Iteration
		d.Added = difference(cur, snap.Advisories)
		d.Removed = difference(snap.Advisories, cur)
	} else {
		d.Added = difference(cur, nil)
	}
	d.Ticket = t
	return d
}

func resolve(snap history.Snapshot, sup []whitelist.Suppression, o Options) Decision {
	t := ticket.Ticket{
		Iteration:   o.Iteration,
		Identity:    snap.Identity,
		Package:     snap.Package,
		Maintainers: o.Maintainers[snap.Identity],
		Channels:    o.Channels,
		Status:      ticket.StatusResolved,
		Reason:      ticket.ReasonFixed,
	}
	for _, a := range snap.Advisories {
		t.Entries = append(t.Entries, ticket.Entry{Advisory: a, Fixed: true})
	}
	if len(sup) > 0 {
		t.Reason = ticket.ReasonWhitelisted
		for _, s := range sup {
			t.SuppressedBy = append(t.SuppressedBy, s.RuleIDs()...)
		}
		slices.Sort(t.SuppressedBy)
		t.SuppressedBy = slices.Compact(t.SuppressedBy)
	}
	t.SortEntries()
	return Decision{
		Identity: snap.Identity,
		Status:   ticket.StatusResolved,
		Ticket:   t,
		Removed:  slices.Clone(snap.Advisories),
		Previous: snap.Iteration,
	}
}

// entries merges findings of one identity into one entry per advisory, recording every
// channel the advisory was observed in and the highest score reported for it.
func entries(fs []finding.Finding) []ticket.Entry {
	byAdv := make(map[finding.Advisory]*ticket.Entry)
	var order []finding.Advisory
	for _, f := range fs {
		e, ok := byAdv[f.Advisory]
		if !ok {
			e = &ticket.Entry{Advisory: f.Advisory}
			byAdv[f.Advisory] = e
			order = append(order, f.Advisory)
		}
		if f.Score != nil && (e.Score == nil || *f.Score > *e.Score) {
			e.Score = finding.Float64(*f.Score)
		}
		if e.Description == "" {
			e.Description = f.Description
		}
		e.Channels = append(e.Channels, f.Channel)
	}
	out := make([]ticket.Entry, 0, len(order))
	for _, a := range order {
		e := byAdv[a]
		slices.Sort(e.Channels)
		e.Channels = slices.Compact(e.Channels)
		out = append(out, *e)
	}
	slices.SortStableFunc(out, ticket.CompareEntries)
	return out
}

func suppressedByIdentity(sup []whitelist.Suppression) map[ticket.Identity][]whitelist.Suppression {
	out := make(map[ticket.Identity][]whitelist.Suppression)
	for _, s := range sup {
		id := ticket.IdentityOfFinding(s.Finding)
		out[id] = append(out[id], s)
	}
	return out
}

// difference returns the advisories of a missing from b, sorted.
func difference(a, b []finding.Advisory) []finding.Advisory {
	var out []finding.Advisory
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	slices.SortFunc(out, finding.Advisory.Compare)
	return out
}

// Counts tallies decisions by status.
func Counts(ds []Decision) map[ticket.Status]int {
	out := map[ticket.Status]int{
		ticket.StatusNew:      0,
		ticket.StatusCarried:  0,
		ticket.StatusResolved: 0,
	}
	for _, d := range ds {
		out[d.Status]++
	}
	return out
}
