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
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/finding"
)

func mkFinding(t *testing.T, pkg, cve, ch string) finding.Finding {
	t.Helper()
	p, err := finding.ParsePackage(pkg)
	require.NoError(t, err)
	return finding.Finding{
		AttrPath: []string{p.Pname()},
		Package:  p,
		Channel:  ch,
		Advisory: finding.MustParseAdvisory(cve),
	}
}

func mkRule(t *testing.T, id, release, selector, version string, cves ...string) Rule {
	t.Helper()
	m, err := newMeta(id, release, cves, "", "")
	require.NoError(t, err)
	r, err := NewRule(m, selector, version)
	require.NoError(t, err)
	return r
}

func keys(fs []finding.Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.Key())
	}
	return out
}

func TestNewRuleShapes(t *testing.T) {
	assert.IsType(t, ExactRule{}, mkRule(t, "a", "r", "foo", ""))
	assert.IsType(t, ExactRule{}, mkRule(t, "b", "r", "foo-1.0", ""))
	assert.IsType(t, ExactRule{}, mkRule(t, "c", "r", "foo", "1.0"))
	assert.IsType(t, PatternRule{}, mkRule(t, "d", "r", "python*-foo", "*"))
	assert.IsType(t, VersionRangeRule{}, mkRule(t, "e", "r", "foo", ">=1.0"))
	assert.IsType(t, VersionRangeRule{}, mkRule(t, "f", "r", "python*", "1.0"))

	_, err := NewRule(Meta{RuleID: "x"}, "", "")
	assert.ErrorIs(t, err, ErrInvalidRule)
	_, err = NewRule(Meta{RuleID: "x"}, "foo[", "")
	assert.ErrorIs(t, err, ErrInvalidRule)
	_, err = NewRule(Meta{RuleID: "x"}, "foo", "~1")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestFilterVersionExact(t *testing.T) {
	const ch = "nixos-19.09"
	findings := []finding.Finding{
		mkFinding(t, "foo-1.0", "CVE-2020-0001", ch),
		mkFinding(t, "foo-1.1", "CVE-2020-0001", ch),
	}
	res := Filter(findings, []Rule{mkRule(t, "r1", ch, "foo-1.0", "", "CVE-2020-0001")}, ch)
	assert.Equal(t, []string{"foo-1.1/CVE-2020-0001"}, keys(res.Active))
	require.Len(t, res.Suppressed, 1)
	assert.Equal(t, "foo-1.0/CVE-2020-0001", res.Suppressed[0].Finding.Key())
	assert.Empty(t, res.Unused)

	// without a version constraint both versions are suppressed
	res = Filter(findings, []Rule{mkRule(t, "r1", ch, "foo", "*", "CVE-2020-0001")}, ch)
	assert.Empty(t, res.Active)
	assert.Len(t, res.Suppressed, 2)
}

func TestFilterCVEExact(t *testing.T) {
	const ch = "nixos-19.09"
	findings := []finding.Finding{
		mkFinding(t, "foo-1.0", "CVE-2020-0001", ch),
		mkFinding(t, "foo-1.0", "CVE-2020-0010", ch),
		mkFinding(t, "foo-1.0", "CVE-2020-10000", ch),
	}
	res := Filter(findings, []Rule{mkRule(t, "r1", ch, "foo", "", "CVE-2020-0001")}, ch)
	assert.Equal(t, []string{"foo-1.0/CVE-2020-0010", "foo-1.0/CVE-2020-10000"}, keys(res.Active))
	require.Len(t, res.Suppressed, 1)
	assert.Equal(t, "foo-1.0/CVE-2020-0001", res.Suppressed[0].Finding.Key())
}

func TestFilterReleaseScoped(t *testing.T) {
	findings := []finding.Finding{
		mkFinding(t, "baz-1.0", "CVE-2020-0003", "nixos-unstable"),
	}
	rules := []Rule{mkRule(t, "r1", "nixos-19.09", "baz", "", "CVE-2020-0003")}
	res := Filter(findings, rules, "nixos-unstable")
	assert.Equal(t, []string{"baz-1.0/CVE-2020-0003"}, keys(res.Active))
	assert.Empty(t, res.Unused, "rules of other releases are not evaluated")
}

func TestFilterScenarioRuleUsed(t *testing.T) {
	const ch = "nixos-19.09"
	findings := []finding.Finding{mkFinding(t, "baz-1.0", "CVE-2020-0003", ch)}
	rules := []Rule{
		mkRule(t, "used", ch, "baz-1.0", "", "CVE-2020-0003"),
		mkRule(t, "stale", ch, "qux", "", "CVE-2020-0003"),
	}
	res := Filter(findings, rules, ch)
	assert.Empty(t, res.Active)
	require.Len(t, res.Suppressed, 1)
	assert.Equal(t, []string{"used"}, res.Suppressed[0].RuleIDs())
	require.Len(t, res.Unused, 1)
	assert.Equal(t, "stale", res.Unused[0].ID())
}

func TestFilterMultipleRulesReportedOnce(t *testing.T) {
	const ch = "c"
	findings := []finding.Finding{mkFinding(t, "foo-1.0", "CVE-2020-0001", ch)}
	rules := []Rule{
		mkRule(t, "b", ch, "foo", ""),
		mkRule(t, "a", ch, "f*", ""),
		mkRule(t, "c", ch, "foo", ">=0.5 <2", "CVE-2020-0001"),
	}
	res := Filter(findings, rules, ch)
	require.Len(t, res.Suppressed, 1)
	assert.Equal(t, []string{"a", "b", "c"}, res.Suppressed[0].RuleIDs())
	assert.Empty(t, res.Unused)
}

func TestFilterIsOrderIndependent(t *testing.T) {
	const ch = "c"
	findings := []finding.Finding{
		mkFinding(t, "foo-1.0", "CVE-2020-0001", ch),
		mkFinding(t, "foo-1.0", "CVE-2020-0002", ch),
		mkFinding(t, "bar-2.0", "CVE-2020-0001", ch),
		mkFinding(t, "python3.7-baz-0.1", "CVE-2021-1000", ch),
		mkFinding(t, "qux-3", "CVE-2019-9999", ch),
	}
	rules := []Rule{
		mkRule(t, "r1", ch, "foo", "1.0", "CVE-2020-0002"),
		mkRule(t, "r2", ch, "python*-baz", ""),
		mkRule(t, "r3", ch, "bar", "<2"),
		mkRule(t, "r4", ch, "nope", ""),
	}
	want := Filter(findings, rules, ch)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		fs, rs := slices.Clone(findings), slices.Clone(rules)
		rng.Shuffle(len(fs), func(i, j int) { fs[i], fs[j] = fs[j], fs[i] })
		rng.Shuffle(len(rs), func(i, j int) { rs[i], rs[j] = rs[j], rs[i] })
		assert.Equal(t, want, Filter(fs, rs, ch))
	}
	assert.Equal(t, []string{"bar-2.0/CVE-2020-0001", "foo-1.0/CVE-2020-0001", "qux-3/CVE-2019-9999"}, keys(want.Active))
	var unused []string
	for _, r := range want.Unused {
		unused = append(unused, r.ID())
	}
	assert.Equal(t, []string{"r3", "r4"}, unused)
}

func TestMerge(t *testing.T) {
	a := Filter([]finding.Finding{mkFinding(t, "b-1", "CVE-2020-0001", "x")}, []Rule{mkRule(t, "x1", "x", "zzz", "")}, "x")
	b := Filter([]finding.Finding{mkFinding(t, "a-1", "CVE-2020-0001", "y")}, []Rule{mkRule(t, "y1", "y", "a", "")}, "y")
	m := Merge(b, a)
	assert.Equal(t, []string{"b-1/CVE-2020-0001"}, keys(m.Active))
	assert.Len(t, m.Suppressed, 1)
	require.Len(t, m.Unused, 1)
	assert.Equal(t, "x1", m.Unused[0].ID())
}
