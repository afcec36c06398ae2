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

// Package ticket holds the ticket model, its canonical markdown rendering and the
// parser that reads persisted tickets back.
package ticket

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/finding"
)

// Status is a ticket's lifecycle state relative to the previous iteration.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusCarried  Status = "CARRIED"
	StatusResolved Status = "RESOLVED"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNew, StatusCarried, StatusResolved:
		return st, nil
	default:
		return "", fmt.Errorf("unknown ticket status %q", s)
	}
}

// Open reports whether a ticket with this status is still open.
func (s Status) Open() bool { return s == StatusNew || s == StatusCarried }

// Reason tells why a ticket was resolved.
type Reason string

const (
	// ReasonFixed means the scanners no longer report any advisory.
	ReasonFixed Reason = "fixed"
	// ReasonWhitelisted means the remaining advisories are all suppressed.
	ReasonWhitelisted Reason = "whitelisted"
)

// Entry is one advisory of a ticket.
type Entry struct {
	Advisory finding.Advisory
	Score    *float64
	// Channels lists the channel names the advisory was observed in, sorted.
	Channels    []string
	Description string
	// Fixed marks an advisory that is no longer reported. Used for resolved tickets.
	Fixed bool
}

// CompareEntries orders by score descending with absent scores last, then by advisory.
func CompareEntries(a, b Entry) int {
	if c := cmp.Compare(finding.ScoreRank(b.Score), finding.ScoreRank(a.Score)); c != 0 {
		return c
	}
	return a.Advisory.Compare(b.Advisory)
}

// Ticket is the decided content of one ticket in one iteration.
type Ticket struct {
	Iteration int
	Identity  Identity
	Package   finding.Package
	Entries   []Entry
	// Maintainers are normalized handles to ping, sorted and unique.
	Maintainers []string
	// Channels carries the revisions scanned in this iteration, used for the footer.
	Channels channel.Set
	Status   Status
	Reason   Reason
	// SuppressedBy names the whitelist rules that suppressed the remaining
	// advisories of a ticket resolved as whitelisted.
	SuppressedBy []string
}

// SortEntries puts entries in canonical order.
func (t *Ticket) SortEntries() {
	slices.SortStableFunc(t.Entries, CompareEntries)
}

// MaxScore returns the highest score among entries.
func (t *Ticket) MaxScore() *float64 {
	var m *float64
	for _, e := range t.Entries {
		if e.Score != nil && (m == nil || *e.Score > *m) {
			m = e.Score
		}
	}
	return m
}

// Advisories returns the advisories of all entries, in entry order.
func (t *Ticket) Advisories() []finding.Advisory {
	out := make([]finding.Advisory, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Advisory
	}
	return out
}

// observedChannels returns the scanned channels any entry was observed in.
func (t *Ticket) observedChannels() []channel.Channel {
	seen := make(map[string]bool)
	for _, e := range t.Entries {
		for _, c := range e.Channels {
			seen[c] = true
		}
	}
	var out []channel.Channel
	for name := range seen {
		c, ok := t.Channels.Lookup(name)
		if !ok {
			c = channel.Channel{Name: name}
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b channel.Channel) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
