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

// Package lifecycle decides, per ticket identity, whether a ticket is opened, carried
// forward or resolved in the iteration being computed.
package lifecycle

import (
	"cmp"
	"slices"

	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/ticket"
)

// Group holds the active findings of one ticket identity across all channels.
type Group struct {
	Identity ticket.Identity
	Package  finding.Package
	Findings []finding.Finding
}

// AttrPaths returns the distinct attribute paths of the group's findings, sorted.
func (g *Group) AttrPaths() [][]string {
	var out [][]string
	for _, f := range g.Findings {
		if len(f.AttrPath) == 0 {
			continue
		}
		out = append(out, f.AttrPath)
	}
	slices.SortFunc(out, slices.Compare)
	return slices.CompactFunc(out, slices.Equal)
}

// Channels returns the names of the channels the group was observed in, sorted.
func (g *Group) Channels() []string {
	var out []string
	for _, f := range g.Findings {
		out = append(out, f.Channel)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// GroupFindings collects findings by ticket identity. The same package version on
// several channels forms one group. Two different packages on one channel that share a
// name and version fail with a *CollisionError: findings are told apart by derivation,
// and by attribute path where the scanner reported no derivation.
func GroupFindings(findings []finding.Finding) ([]Group, error) {
	type key struct {
		id      ticket.Identity
		channel string
	}
	byID := make(map[ticket.Identity]*Group)
	drvs := make(map[key][]string)
	attrs := make(map[key][]string)
	for _, f := range findings {
		id := ticket.IdentityOfFinding(f)
		g, ok := byID[id]
		if !ok {
			g = &Group{Identity: id, Package: f.Package}
			byID[id] = g
		}
		g.Findings = append(g.Findings, f)
		k := key{id, f.Channel}
		if f.Derivation != "" {
			drvs[k] = append(drvs[k], f.Derivation)
		} else {
			attrs[k] = append(attrs[k], f.Attr())
		}
	}

	var collisions []*CollisionError
	for _, m := range []map[key][]string{drvs, attrs} {
		for k, srcs := range m {
			slices.Sort(srcs)
			if srcs = slices.Compact(srcs); len(srcs) > 1 {
				collisions = append(collisions, &CollisionError{Identity: k.id, Channel: k.channel, Sources: [2]string{srcs[0], srcs[1]}})
			}
		}
	}
	if len(collisions) > 0 {
		slices.SortFunc(collisions, func(a, b *CollisionError) int {
			return cmp.Or(cmp.Compare(a.Identity, b.Identity), cmp.Compare(a.Channel, b.Channel), cmp.Compare(a.Sources[0], b.Sources[0]))
		})
		return nil, collisions[0]
	}

	out := make([]Group, 0, len(byID))
	for _, g := range byID {
		finding.Sort(g.Findings)
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.Identity, b.Identity) })
	return out, nil
}
