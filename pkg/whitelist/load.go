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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

// Whitelists live in one file per release: <release>.toml in the vulnix format and/or
// <release>.yaml with a rules list.
//
// Example TOML (keys are pname, pname-version or a glob):
//
//	["libtiff-4.0.9"]
//	cve = ["CVE-2018-17000"]
//	comment = "patched in nixpkgs"
//	until = 2020-06-30
//
//	["python*-acoustics"]
//
// Example YAML:
//
//	rules:
//	  - package: openssl
//	    version: ">=1.1.0 <1.1.1d"
//	    cve: CVE-2019-1547
//	    comment: only affects custom curves
//	    until: 2020-06-30

type tomlEntry struct {
	CVE      any    `toml:"cve"`
	Comment  string `toml:"comment"`
	IssueURL string `toml:"issue_url"`
	Until    any    `toml:"until"`
}

type yamlFile struct {
	Rules []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	Package  string   `yaml:"package"`
	Version  string   `yaml:"version"`
	CVE      cveField `yaml:"cve"`
	Comment  string   `yaml:"comment"`
	IssueURL string   `yaml:"issue_url"`
	Until    string   `yaml:"until"`
}

// cveField accepts a single CVE id or a list of them.
type cveField []string

func (c *cveField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*c = nil
			return nil
		}
		*c = cveField{value.Value}
		return nil
	case yaml.SequenceNode:
		var l []string
		if err := value.Decode(&l); err != nil {
			return err
		}
		*c = l
		return nil
	default:
		return fmt.Errorf("line %d: cve must be a string or a list", value.Line)
	}
}

// Loader reads whitelist files for a set of releases.
type Loader struct {
	// Now decides which rules have expired.
	Now   time.Time
	Diags *diag.Collector
}

// LoadDir loads the whitelist files of every release found in dir. Missing files mean
// no rules, a missing dir is an error. Expired rules are reported and left out.
func (l Loader) LoadDir(ctx context.Context, dir string, releases []string) ([]Rule, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrNoWhitelistDir, dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrNoWhitelistDir, dir)
	}
	var out []Rule
	for _, rel := range releases {
		for _, ext := range []string{".toml", ".yaml", ".yml"} {
			p := filepath.Join(dir, rel+ext)
			b, err := os.ReadFile(p)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			var rules []Rule
			if ext == ".toml" {
				rules, err = ParseTOML(b, rel, filepath.Base(p))
			} else {
				rules, err = ParseYAML(b, rel, filepath.Base(p))
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load whitelist %s: %w", p, err)
			}
			slog.DebugContext(ctx, "Loaded whitelist", "file", p, "rules", len(rules))
			out = append(out, l.dropExpired(ctx, rules)...)
		}
	}
	SortRules(out)
	return out, nil
}

func (l Loader) dropExpired(ctx context.Context, rules []Rule) []Rule {
	now := l.Now
	if now.IsZero() {
		now = time.Now()
	}
	return slices.DeleteFunc(rules, func(r Rule) bool {
		u := r.Until()
		if u == nil || !now.After(*u) {
			return false
		}
		l.Diags.Addf(ctx, diag.ExpiredWhitelistRule, r.ID(), "expired on %s", u.Format(time.DateOnly))
		return true
	})
}

// ParseTOML parses a vulnix whitelist. Table keys select packages.
func ParseTOML(b []byte, release, source string) ([]Rule, error) {
	var doc map[string]tomlEntry
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		e := doc[k]
		id := fmt.Sprintf("%s[%s]", source, k)
		cves, err := tomlCVEs(e.CVE)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidRule, id, err)
		}
		m, err := newMeta(id, release, cves, e.Comment, e.IssueURL)
		if err != nil {
			return nil, err
		}
		if m.Expires, err = tomlDate(e.Until); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidRule, id, err)
		}
		r, err := NewRule(m, k, "")
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func tomlCVEs(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("cve list entry %v is not a string", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cve must be a string or a list, got %T", v)
	}
}

func tomlDate(v any) (*time.Time, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case toml.LocalDate:
		return endOfDay(v.Year, time.Month(v.Month), v.Day), nil
	case toml.LocalDateTime:
		t := v.AsTime(time.UTC)
		return &t, nil
	case time.Time:
		return &v, nil
	case string:
		return parseDate(v)
	default:
		return nil, fmt.Errorf("until must be a date, got %T", v)
	}
}

// ParseYAML parses a YAML whitelist with a top-level rules list.
func ParseYAML(b []byte, release, source string) ([]Rule, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	out := make([]Rule, 0, len(doc.Rules))
	for i, y := range doc.Rules {
		id := fmt.Sprintf("%s#%d", source, i)
		m, err := newMeta(id, release, y.CVE, y.Comment, y.IssueURL)
		if err != nil {
			return nil, err
		}
		if m.Expires, err = parseDate(y.Until); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidRule, id, err)
		}
		r, err := NewRule(m, y.Package, y.Version)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func newMeta(id, release string, cves []string, comment, issue string) (Meta, error) {
	m := Meta{RuleID: id, Rel: release, Comment: strings.TrimSpace(comment), Issue: issue}
	for _, c := range cves {
		a, err := finding.ParseAdvisory(strings.TrimSpace(c))
		if err != nil {
			return Meta{}, fmt.Errorf("%w %s: %v", ErrInvalidRule, id, err)
		}
		m.CVEs = append(m.CVEs, a)
	}
	slices.SortFunc(m.CVEs, finding.Advisory.Compare)
	m.CVEs = slices.Compact(m.CVEs)
	return m, nil
}

// parseDate accepts RFC3339 timestamps and plain dates. A plain date lasts until the
// end of that day, UTC.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (expected RFC3339 or YYYY-MM-DD)", s)
	}
	return endOfDay(t.Year(), t.Month(), t.Day()), nil
}

func endOfDay(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	return &t
}
