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

package maintainer

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

// NormalizeHandle trims a handle, drops a leading "@" and folds it to lower case.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// Normalize returns the normalized, sorted and unique handles.
func Normalize(handles []string) []string {
	var out []string
	for _, h := range handles {
		if h = NormalizeHandle(h); h != "" {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Resolver resolves ping lists through one Provider per channel.
type Resolver struct {
	// Providers are keyed by channel name. Findings of channels without one use
	// Default, if set.
	Providers map[string]Provider
	Default   Provider
	Diags     *diag.Collector
}

func (r *Resolver) provider(channel string) Provider {
	if p, ok := r.Providers[channel]; ok {
		return p
	}
	return r.Default
}

// ResolvePings returns the handles to ping for the findings of one package. Every
// distinct (channel, attribute path) is resolved once; maintainership may differ
// between channels and all maintainers are collected. A path the provider does not
// know is reported as UnresolvedPackagePath and contributes no handles.
func (r *Resolver) ResolvePings(ctx context.Context, fs []finding.Finding) ([]string, error) {
	type key struct{ channel, attr string }
	seen := make(map[key]bool)
	var handles []string
	for _, f := range fs {
		k := key{f.Channel, f.Attr()}
		if seen[k] || len(f.AttrPath) == 0 {
			continue
		}
		seen[k] = true
		p := r.provider(f.Channel)
		if p == nil {
			continue
		}
		info, err := p.Resolve(ctx, f.AttrPath)
		if errors.Is(err, ErrNotFound) {
			r.Diags.Addf(ctx, diag.UnresolvedPackagePath, f.Channel+":"+k.attr, "%s: no package metadata", f.Package)
			continue
		}
		if err != nil {
			return nil, err
		}
		handles = append(handles, info.Maintainers...)
	}
	return Normalize(handles), nil
}

// PingReport maps a handle to the sorted packages requiring its attention.
type PingReport map[string][]string

// NewPingReport inverts per-package ping lists.
func NewPingReport(pings map[string][]string) PingReport {
	out := make(PingReport)
	for pkg, handles := range pings {
		for _, h := range handles {
			out[h] = append(out[h], pkg)
		}
	}
	for h := range out {
		slices.Sort(out[h])
		out[h] = slices.Compact(out[h])
	}
	return out
}

// Handles returns the handles of the report, sorted.
func (r PingReport) Handles() []string {
	out := make([]string, 0, len(r))
	for h := range r {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
