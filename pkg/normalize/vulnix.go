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

// Package normalize turns raw scanner output into canonical findings.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/venslabs/roundup/pkg/api/types"
	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

// storePath matches the environment specific prefix of a store path.
var storePath = regexp.MustCompile(`/nix/store/[0-9a-z]{32}-`)

// StripStorePaths rewrites "/nix/store/<hash>-name" to "name" so that output does not
// depend on the machine that ran the scan.
func StripStorePaths(s string) string {
	return storePath.ReplaceAllString(s, "")
}

// NormalizeRecord converts one vulnix record into one finding per advisory.
//
// Records without package identity or without any valid advisory fail with
// ErrMalformedInput. Invalid advisory ids next to valid ones are returned as a joined
// error alongside the findings that could be built.
func NormalizeRecord(rec types.VulnixRecord, channel, source string) ([]finding.Finding, error) {
	pkg, err := recordPackage(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(rec.AffectedBy) == 0 {
		return nil, fmt.Errorf("%w: %s has no advisory", ErrMalformedInput, pkg)
	}

	attr := rec.AttrPath.AttrPathSegments()
	if len(attr) == 0 {
		// vulnix does not know attribute paths; pname is the best stand-in
		attr = []string{pkg.Pname()}
	}
	patches := make([]string, 0, len(rec.Patches))
	for _, p := range rec.Patches {
		if p = strings.TrimSpace(p); p != "" {
			patches = append(patches, StripStorePaths(p))
		}
	}
	slices.Sort(patches)
	patches = slices.Compact(patches)

	var (
		out  []finding.Finding
		errs []error
		seen = make(map[finding.Advisory]bool)
	)
	for _, id := range rec.AffectedBy {
		adv, err := finding.ParseAdvisory(strings.TrimSpace(id))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMalformedInput, pkg, err))
			continue
		}
		if seen[adv] {
			continue
		}
		seen[adv] = true
		f := finding.Finding{
			AttrPath:    slices.Clone(attr),
			Package:     pkg,
			Derivation:  rec.Derivation,
			Channel:     channel,
			Advisory:    adv,
			Description: StripStorePaths(strings.TrimSpace(rec.Description[id])),
			Patches:     slices.Clone(patches),
			Source:      source,
		}
		if score, ok := rec.CVSSv3BaseScore[id]; ok {
			f.Score = finding.Float64(score)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	return out, errors.Join(errs...)
}

func recordPackage(rec types.VulnixRecord) (finding.Package, error) {
	if name := strings.TrimSpace(rec.Name); name != "" {
		if p, err := finding.ParsePackage(name); err == nil {
			return p, nil
		}
	}
	if rec.Pname != "" && rec.Version != "" {
		return finding.NewPackage(rec.Pname, rec.Version), nil
	}
	if rec.Name == "" {
		return finding.Package{}, errors.New("record has no package name")
	}
	return finding.ParsePackage(rec.Name)
}

// ReadVulnix streams a vulnix JSON array and normalizes every record. Records that
// cannot be normalized are reported to diags and skipped; the batch goes on.
func ReadVulnix(ctx context.Context, r io.Reader, channel, artifact string, diags *diag.Collector) ([]finding.Finding, error) {
	var out []finding.Finding
	err := StreamArray(r, func(idx int, raw json.RawMessage) error {
		source := fmt.Sprintf("%s#%d", artifact, idx)
		if isNull(raw) {
			diags.Add(ctx, diag.MalformedInput, source, "null record")
			return nil
		}
		var rec types.VulnixRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			diags.Add(ctx, diag.MalformedInput, source, err.Error())
			return nil
		}
		if wl := scannerWhitelisted(rec); len(wl) > 0 {
			diags.Add(ctx, diag.ScannerWhitelisted, source, recordName(rec)+": vulnix suppressed "+strings.Join(wl, ", "))
			if len(rec.AffectedBy) == 0 {
				return nil
			}
		}
		fs, err := NormalizeRecord(rec, channel, source)
		if err != nil {
			diags.Add(ctx, diag.MalformedInput, source, err.Error())
		}
		out = append(out, fs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", artifact, err)
	}
	return out, nil
}

func scannerWhitelisted(rec types.VulnixRecord) []string {
	out := make([]string, 0, len(rec.Whitelisted))
	for _, a := range rec.Whitelisted {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func recordName(rec types.VulnixRecord) string {
	if p, err := recordPackage(rec); err == nil {
		return p.String()
	}
	return rec.Name
}
