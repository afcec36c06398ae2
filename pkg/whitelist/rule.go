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

// Package whitelist implements release scoped suppression of findings.
package whitelist

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/venslabs/roundup/pkg/finding"
)

// Rule is a release scoped suppression directive. Matches is a pure predicate so rules
// can be evaluated independently per finding and in any order.
type Rule interface {
	Matches(f finding.Finding) bool
	// ID is unique within a run and stable across runs.
	ID() string
	Release() string
	Subject() string
	Justification() string
	IssueURL() string
	Until() *time.Time
}

// Meta holds the fields every rule shape shares.
type Meta struct {
	RuleID  string
	Rel     string
	CVEs    []finding.Advisory // empty matches every advisory
	Comment string
	Issue   string
	Expires *time.Time
}

func (m Meta) ID() string            { return m.RuleID }
func (m Meta) Release() string       { return m.Rel }
func (m Meta) Justification() string { return m.Comment }
func (m Meta) IssueURL() string      { return m.Issue }
func (m Meta) Until() *time.Time     { return m.Expires }

// matches checks the release scope and the advisory. CVE ids compare exactly.
func (m Meta) matches(f finding.Finding) bool {
	if f.Channel != m.Rel {
		return false
	}
	return len(m.CVEs) == 0 || slices.Contains(m.CVEs, f.Advisory)
}

func (m Meta) cveSuffix() string {
	if len(m.CVEs) == 0 {
		return ""
	}
	ids := make([]string, len(m.CVEs))
	for i, a := range m.CVEs {
		ids[i] = a.String()
	}
	return " " + strings.Join(ids, ",")
}

// ExactRule matches a package name, and optionally a single version.
type ExactRule struct {
	Meta
	Pname   string
	Version string // empty matches every version
}

func (r ExactRule) Matches(f finding.Finding) bool {
	if !r.matches(f) || f.Package.Pname() != r.Pname {
		return false
	}
	return r.Version == "" || f.Package.Version() == r.Version
}

func (r ExactRule) Subject() string {
	if r.Version == "" {
		return r.Pname + r.cveSuffix()
	}
	return r.Pname + "-" + r.Version + r.cveSuffix()
}

// PatternRule matches a shell glob against the full package name or the pname.
type PatternRule struct {
	Meta
	Pattern string
}

func (r PatternRule) Matches(f finding.Finding) bool {
	if !r.matches(f) {
		return false
	}
	return globMatch(r.Pattern, f.Package.String()) || globMatch(r.Pattern, f.Package.Pname())
}

func (r PatternRule) Subject() string { return r.Pattern + r.cveSuffix() }

// VersionRangeRule matches a package name or glob and a version constraint.
type VersionRangeRule struct {
	Meta
	Name       string
	Constraint Constraint
}

func (r VersionRangeRule) Matches(f finding.Finding) bool {
	if !r.matches(f) {
		return false
	}
	pname := f.Package.Pname()
	if pname != r.Name && !globMatch(r.Name, pname) {
		return false
	}
	return r.Constraint.Matches(f.Package.Version())
}

func (r VersionRangeRule) Subject() string {
	return fmt.Sprintf("%s %s%s", r.Name, r.Constraint, r.cveSuffix())
}

func isGlob(s string) bool { return strings.ContainsAny(s, "*?[") }

func globMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// NewRule picks the rule shape for a package selector and version constraint:
//   - a glob selector without constraint gives a PatternRule,
//   - a "pname-version" selector or an exact constraint gives an ExactRule,
//   - any other constraint gives a VersionRangeRule.
func NewRule(m Meta, selector, version string) (Rule, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("%w %s: empty package selector", ErrInvalidRule, m.RuleID)
	}
	if isGlob(selector) {
		if _, err := path.Match(selector, ""); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidRule, m.RuleID, err)
		}
	}
	c, err := ParseConstraint(version)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidRule, m.RuleID, err)
	}
	switch {
	case c.Any() && isGlob(selector):
		return PatternRule{Meta: m, Pattern: selector}, nil
	case c.Any():
		if p, err := finding.ParsePackage(selector); err == nil {
			return ExactRule{Meta: m, Pname: p.Pname(), Version: p.Version()}, nil
		}
		return ExactRule{Meta: m, Pname: selector}, nil
	}
	if v, ok := c.Exact(); ok && !isGlob(selector) {
		return ExactRule{Meta: m, Pname: selector, Version: v}, nil
	}
	return VersionRangeRule{Meta: m, Name: selector, Constraint: c}, nil
}
