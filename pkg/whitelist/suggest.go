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
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/vecindex"
)

const (
	suggestCandidates = 8
	minSimilarity     = 0.6
)

// Suggestion points a stale rule to currently vulnerable packages with a similar name,
// which usually means the package was renamed or bumped.
type Suggestion struct {
	RuleID     string   `json:"rule"`
	Candidates []string `json:"candidates"`
}

// Suggest looks up, for every unused rule, up to k package names among findings that
// resemble the rule's package selector.
func Suggest(unused []Rule, findings []finding.Finding, k int) []Suggestion {
	if len(unused) == 0 || len(findings) == 0 || k <= 0 {
		return nil
	}
	// insertion order shapes the graph, so index in sorted order
	pkgs := make(map[string]finding.Package)
	for _, f := range findings {
		pkgs[f.Package.String()] = f.Package
	}
	idx := vecindex.New()
	names := make(map[string][]float32, len(pkgs))
	for _, n := range slices.Sorted(maps.Keys(pkgs)) {
		v := vecindex.Embed(pkgs[n].Pname())
		if err := idx.Add(n, v); err != nil {
			slog.Debug("Failed to index package name", "package", n, "error", err)
			continue
		}
		names[n] = v
	}

	var out []Suggestion
	for _, r := range unused {
		q := vecindex.Embed(selectorOf(r))
		ids, err := idx.Search(q, max(k, suggestCandidates))
		if err != nil {
			slog.Debug("Failed to search similar packages", "rule", r.ID(), "error", err)
			continue
		}
		type scored struct {
			name string
			sim  float32
		}
		var cands []scored
		for _, id := range ids {
			if s := vecindex.Similarity(q, names[id]); s >= minSimilarity {
				cands = append(cands, scored{id, s})
			}
		}
		if len(cands) == 0 {
			continue
		}
		slices.SortFunc(cands, func(a, b scored) int {
			if c := cmp.Compare(b.sim, a.sim); c != 0 {
				return c
			}
			return cmp.Compare(a.name, b.name)
		})
		s := Suggestion{RuleID: r.ID()}
		for _, c := range cands[:min(k, len(cands))] {
			s.Candidates = append(s.Candidates, c.name)
		}
		out = append(out, s)
	}
	return out
}

func selectorOf(r Rule) string {
	switch r := r.(type) {
	case ExactRule:
		return r.Pname
	case VersionRangeRule:
		return strings.Trim(r.Name, "*?")
	case PatternRule:
		return strings.NewReplacer("*", "", "?", "").Replace(r.Pattern)
	default:
		return r.Subject()
	}
}
