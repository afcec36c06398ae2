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

// Package storefilter restricts findings to packages present in a set of store
// listings, e.g. the closures of the machines one actually runs.
package storefilter

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

const hashLen = 32

// Contents is the set of package names found in store listings.
type Contents struct {
	known map[string]bool
}

// Read parses one listing. Lines may be full store paths, "HASH-name" or bare names.
func (c *Contents) Read(r io.Reader) error {
	if c.known == nil {
		c.known = make(map[string]bool)
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if name := extractName(sc.Text()); name != "" {
			c.known[name] = true
		}
	}
	return sc.Err()
}

func extractName(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return ""
	case strings.HasPrefix(line, "/nix/store/") && len(line) > len("/nix/store/")+hashLen+1 && line[len("/nix/store/")+hashLen] == '-':
		return line[len("/nix/store/")+hashLen+1:]
	case len(line) > hashLen+1 && line[hashLen] == '-':
		return line[hashLen+1:]
	}
	return line
}

// FromDir reads every regular, non-hidden file of dir.
func FromDir(dir string) (*Contents, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	c := &Contents{known: make(map[string]bool)}
	for _, e := range ents {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		err = c.Read(f)
		f.Close() //nolint:errcheck
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Len returns the number of distinct names.
func (c *Contents) Len() int { return len(c.known) }

// Installed reports whether pkg, or one of its declared outputs ("name-version-out"),
// appears in a listing.
func (c *Contents) Installed(pkg finding.Package, outputs []string) bool {
	if c.known[pkg.String()] {
		return true
	}
	for _, out := range outputs {
		if c.known[pkg.String()+"-"+out] {
			return true
		}
	}
	return false
}

// OutputsFunc returns the declared outputs of a finding's package.
type OutputsFunc func(f finding.Finding) []string

// Filter keeps the findings of installed packages. Dropped findings are reported as
// FilteredFinding diagnostics, once per channel and package.
func (c *Contents) Filter(ctx context.Context, fs []finding.Finding, outputs OutputsFunc, diags *diag.Collector) []finding.Finding {
	var kept []finding.Finding
	reported := make(map[string]bool)
	for _, f := range fs {
		var outs []string
		if outputs != nil {
			outs = outputs(f)
		}
		if c.Installed(f.Package, outs) {
			kept = append(kept, f)
			continue
		}
		subject := f.Channel + ":" + f.Package.String()
		if !reported[subject] {
			reported[subject] = true
			diags.Add(ctx, diag.FilteredFinding, subject, "not present in any store listing")
		}
	}
	return kept
}
