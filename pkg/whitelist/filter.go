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

package whitelist

import (
	"cmp"
	"slices"

	"github.com/venslabs/roundup/pkg/finding"
)

// Suppression is a finding together with every rule that matched it.
type Suppression struct {
	Finding finding.Finding
	Rules   []Rule
}

// RuleIDs returns the IDs of the matching rules.
func (s Suppression) RuleIDs() []string {
	ids := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		ids[i] = r.ID()
	}
	return ids
}

// Result partitions the findings of one channel.
type Result struct {
	Active     []finding.Finding
	Suppressed []Suppression
	// Unused holds the channel's rules that matched no finding.
	Unused []Rule
}

func compareRules(a, b Rule) int {
	return cmp.Compare(a.ID(), b.ID())
}

// SortRules orders rules by ID.
func SortRules(rs []Rule) {
	slices.SortStableFunc(rs, compareRules)
}

// Filter applies the rules released for channel to findings. Rules of other releases
// are ignored. Each finding is evaluated against every rule on its own, so the result
// depends only on the sets of findings and rules, never on their order.
func Filter(findings []finding.Finding, rules []Rule, channel string) Result {
	scoped := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Release() == channel {
			scoped = append(scoped, r)
		}
	}
	SortRules(scoped)

	var res Result
	used := make(map[string]bool, len(scoped))
	for _, f := range findings {
		var matched []Rule
		for _, r := range scoped {
			if r.Matches(f) {
				matched = append(matched, r)
				used[r.ID()] = true
			}
		}
		if len(matched) == 0 {
			res.Active = append(res.Active, f)
			continue
		}
		res.Suppressed = append(res.Suppressed, Suppression{Finding: f, Rules: matched})
	}
	for _, r := range scoped {
		if !used[r.ID()] {
			res.Unused = append(res.Unused, r)
		}
	}
	finding.Sort(res.Active)
	slices.SortStableFunc(res.Suppressed, func(a, b Suppression) int {
		return finding.Compare(a.Finding, b.Finding)
	})
	return res
}

// Merge concatenates per-channel results, keeping the ordering guarantees.
func Merge(results ...Result) Result {
	var out Result
	for _, r := range results {
		out.Active = append(out.Active, r.Active...)
		out.Suppressed = append(out.Suppressed, r.Suppressed...)
		out.Unused = append(out.Unused, r.Unused...)
	}
	finding.Sort(out.Active)
	slices.SortStableFunc(out.Suppressed, func(a, b Suppression) int {
		return finding.Compare(a.Finding, b.Finding)
	})
	SortRules(out.Unused)
	return out
}
