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

// Package diag collects non-fatal per-record and per-package problems found during a run.
package diag

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// MalformedInput is a scanner record that could not be normalized.
	MalformedInput Kind = "MalformedInput"
	// UnresolvedPackagePath is an attribute path unknown to the package metadata provider.
	UnresolvedPackagePath Kind = "UnresolvedPackagePath"
	// StaleWhitelistRule is a whitelist rule that suppressed nothing.
	StaleWhitelistRule Kind = "StaleWhitelistRule"
	// ExpiredWhitelistRule is a whitelist rule past its expiry date.
	ExpiredWhitelistRule Kind = "ExpiredWhitelistRule"
	// InvalidHandle is a maintainer handle rejected by handle validation.
	InvalidHandle Kind = "InvalidHandle"
	// FilteredFinding is a finding dropped by the store filter.
	FilteredFinding Kind = "FilteredFinding"
	// ScannerWhitelisted lists advisories the scanner suppressed with its own whitelist.
	// They never reach the whitelist filter.
	ScannerWhitelisted Kind = "ScannerWhitelisted"
)

// Diagnostic is a single non-fatal problem.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Subject, d.Message)
}

func compare(a, b Diagnostic) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Subject, b.Subject); c != 0 {
		return c
	}
	return cmp.Compare(a.Message, b.Message)
}

// Collector accumulates diagnostics. It is safe for concurrent use.
// A nil *Collector discards everything.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add records a diagnostic and logs it at warn level.
func (c *Collector) Add(ctx context.Context, kind Kind, subject, msg string) {
	if c == nil {
		return
	}
	slog.WarnContext(ctx, "diagnostic", "kind", kind, "subject", subject, "message", msg)
	c.mu.Lock()
	c.items = append(c.items, Diagnostic{Kind: kind, Subject: subject, Message: msg})
	c.mu.Unlock()
}

// Addf is like Add with a formatted message.
func (c *Collector) Addf(ctx context.Context, kind Kind, subject, format string, args ...any) {
	c.Add(ctx, kind, subject, fmt.Sprintf(format, args...))
}

// Items returns the collected diagnostics sorted by kind, subject and message, with
// exact duplicates removed.
func (c *Collector) Items() []Diagnostic {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	out := slices.Clone(c.items)
	c.mu.Unlock()
	slices.SortFunc(out, compare)
	return slices.Compact(out)
}

// Count returns the number of distinct diagnostics of the given kind.
func (c *Collector) Count(kind Kind) int {
	n := 0
	for _, d := range c.Items() {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Counts returns the number of distinct diagnostics per kind.
func (c *Collector) Counts() map[Kind]int {
	m := make(map[Kind]int)
	for _, d := range c.Items() {
		m[d.Kind]++
	}
	return m
}
