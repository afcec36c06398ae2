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

// Package roundup runs one iteration: it reads the scanner artifacts of every channel,
// applies whitelists, reconciles the result with the history of earlier iterations and
// files the resulting tickets.
package roundup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/lifecycle"
	"github.com/venslabs/roundup/pkg/maintainer"
	"github.com/venslabs/roundup/pkg/normalize"
	"github.com/venslabs/roundup/pkg/outputhandler"
	"github.com/venslabs/roundup/pkg/storefilter"
	"github.com/venslabs/roundup/pkg/ticket"
	"github.com/venslabs/roundup/pkg/tracker"
	"github.com/venslabs/roundup/pkg/whitelist"
)

// Files written into the iteration directory besides the tickets.
const (
	SummaryFile    = history.FinalizedMarker
	PingReportFile = "maintainers.json"
	VexFile        = "vex.cdx.json"
	MetricsFile    = "metrics.prom"
)

const DefaultSuggestions = 3

// Opts configures a Roundup.
type Opts struct {
	// Base holds the numbered iteration directories.
	Base      string
	Iteration int
	Channels  channel.Set

	// WhitelistDir holds <release>.toml and <release>.yaml files. Optional, but when set
	// it must exist.
	WhitelistDir string
	// StoreListings restricts findings to installed packages. Optional.
	StoreListings string
	// System selects packages.json entries. Defaults to maintainer.DefaultSystem.
	System string

	// Ping enables maintainer resolution. Per-channel packages.<channel>.json files in
	// the iteration directory are used; Providers may add to or replace them.
	Ping      bool
	Providers map[string]maintainer.Provider
	// Validator, if set, drops maintainer handles that do not exist. Its diagnostics
	// default to Diags.
	Validator *maintainer.Validator

	// Trackers get the rendered tickets after they are persisted to the iteration
	// directory.
	Trackers []tracker.Tracker
	// Handlers receive the report in addition to the files written to the iteration
	// directory.
	Handlers []outputhandler.OutputHandler

	Suggestions int
	Now         time.Time
	Diags       *diag.Collector
}

// Roundup computes one iteration.
type Roundup struct {
	o Opts
}

// New creates a new Roundup with the given options.
func New(o Opts) (*Roundup, error) {
	r := &Roundup{o: o}
	if r.o.Base == "" {
		return nil, errors.New("no iteration base directory")
	}
	if r.o.Iteration <= 0 {
		return nil, fmt.Errorf("%w: %d", history.ErrInvalidIteration, r.o.Iteration)
	}
	if len(r.o.Channels) == 0 {
		return nil, errors.New("no channels")
	}
	if r.o.System == "" {
		r.o.System = maintainer.DefaultSystem
	}
	if r.o.Suggestions == 0 {
		r.o.Suggestions = DefaultSuggestions
	}
	if r.o.Now.IsZero() {
		r.o.Now = time.Now()
	}
	if r.o.Diags == nil {
		r.o.Diags = diag.NewCollector()
	}
	if r.o.Validator != nil && r.o.Validator.Diags == nil {
		v := *r.o.Validator
		v.Diags = r.o.Diags
		r.o.Validator = &v
	}
	return r, nil
}

// IterDir is the directory of the iteration being computed.
func (r *Roundup) IterDir() string { return history.IterDir(r.o.Base, r.o.Iteration) }

// Run computes the iteration. Fatal errors (history corruption, identity collisions,
// unreadable scanner artifacts or whitelists) abort before anything is written. Before
// the first write a previous summary of the iteration is removed, so an iteration
// whose outputs fail half way is not finalized. The summary is written last.
func (r *Roundup) Run(ctx context.Context) (*outputhandler.Report, error) {
	dir := r.IterDir()
	diags := r.o.Diags
	slog.InfoContext(ctx, "Starting roundup", "iteration", r.o.Iteration, "dir", dir, "channels", r.o.Channels.Names())

	hist, err := history.Load(ctx, r.o.Base, r.o.Iteration)
	if err != nil {
		return nil, err
	}
	perChannel, err := normalize.LoadChannels(ctx, dir, r.o.Channels, diags)
	if err != nil {
		return nil, err
	}

	providers, err := r.providers(dir)
	if err != nil {
		return nil, err
	}
	if r.o.StoreListings != "" {
		contents, err := storefilter.FromDir(r.o.StoreListings)
		if err != nil {
			return nil, fmt.Errorf("failed to read store listings: %w", err)
		}
		outputs := outputsFunc(ctx, providers)
		for i := range perChannel {
			perChannel[i] = contents.Filter(ctx, perChannel[i], outputs, diags)
		}
	}

	var rules []whitelist.Rule
	if r.o.WhitelistDir != "" {
		loader := whitelist.Loader{Now: r.o.Now, Diags: diags}
		if rules, err = loader.LoadDir(ctx, r.o.WhitelistDir, r.o.Channels.Names()); err != nil {
			return nil, err
		}
	}
	results := make([]whitelist.Result, len(r.o.Channels))
	var all []finding.Finding
	for i, ch := range r.o.Channels {
		results[i] = whitelist.Filter(perChannel[i], rules, ch.Name)
		all = append(all, perChannel[i]...)
	}
	filtered := whitelist.Merge(results...)
	for _, u := range filtered.Unused {
		diags.Add(ctx, diag.StaleWhitelistRule, u.ID(), u.Subject()+" suppressed nothing")
	}

	groups, err := lifecycle.GroupFindings(filtered.Active)
	if err != nil {
		return nil, err
	}

	pings := make(map[ticket.Identity][]string)
	if r.o.Ping {
		res := &maintainer.Resolver{Providers: providers, Diags: diags}
		byName := make(map[string][]string)
		for _, g := range groups {
			hs, err := res.ResolvePings(ctx, g.Findings)
			if err != nil {
				return nil, err
			}
			if len(hs) > 0 {
				byName[string(g.Identity)] = hs
			}
		}
		if r.o.Validator != nil {
			if err := r.o.Validator.Filter(ctx, byName); err != nil {
				return nil, err
			}
		}
		for id, hs := range byName {
			pings[ticket.Identity(id)] = hs
		}
	}

	decisions := lifecycle.Reconcile(groups, hist, lifecycle.Options{
		Iteration:   r.o.Iteration,
		Channels:    r.o.Channels,
		Suppressed:  filtered.Suppressed,
		Maintainers: pings,
	})
	docs := make([]ticket.Document, len(decisions))
	pingReport := make(map[string][]string)
	for i, d := range decisions {
		docs[i] = ticket.Render(d.Ticket)
		if d.Status.Open() {
			pingReport[string(d.Identity)] = d.Ticket.Maintainers
		}
	}

	if err := unfinalize(dir); err != nil {
		return nil, err
	}
	file := &tracker.File{Base: r.o.Base}
	filed, err := file.CreateIssues(ctx, dir, docs)
	if err != nil {
		return nil, err
	}
	for _, t := range r.o.Trackers {
		f, err := t.CreateIssues(ctx, dir, docs)
		if err != nil {
			return nil, fmt.Errorf("tracker %s: %w", t.Name(), err)
		}
		filed = append(filed, f...)
	}

	report := &outputhandler.Report{
		Iteration:   r.o.Iteration,
		Channels:    r.o.Channels,
		Decisions:   decisions,
		Active:      len(filtered.Active),
		Suppressed:  filtered.Suppressed,
		Unused:      filtered.Unused,
		Suggestions: whitelist.Suggest(filtered.Unused, all, r.o.Suggestions),
		Diagnostics: diags.Items(),
		Pings:       maintainer.NewPingReport(pingReport),
		Filed:       filed,
	}
	if err := r.writeReports(report); err != nil {
		return nil, err
	}
	counts := lifecycle.Counts(decisions)
	slog.InfoContext(ctx, "Finished roundup", "iteration", r.o.Iteration,
		"new", counts[ticket.StatusNew], "carried", counts[ticket.StatusCarried], "resolved", counts[ticket.StatusResolved],
		"suppressed", len(filtered.Suppressed), "unused_rules", len(filtered.Unused), "diagnostics", len(report.Diagnostics))
	return report, nil
}

// unfinalize removes the summary of an earlier run of the iteration.
func unfinalize(dir string) error {
	err := os.Remove(filepath.Join(dir, SummaryFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to unfinalize %s: %w", dir, err)
	}
	return nil
}

func (r *Roundup) providers(dir string) (map[string]maintainer.Provider, error) {
	ps, err := maintainer.LoadChannelProviders(dir, r.o.Channels.Names(), r.o.System)
	if err != nil {
		return nil, err
	}
	for ch, p := range r.o.Providers {
		ps[ch] = p
	}
	return ps, nil
}

func outputsFunc(ctx context.Context, providers map[string]maintainer.Provider) storefilter.OutputsFunc {
	return func(f finding.Finding) []string {
		p, ok := providers[f.Channel]
		if !ok || len(f.AttrPath) == 0 {
			return nil
		}
		info, err := p.Resolve(ctx, f.AttrPath)
		if err != nil {
			return nil
		}
		return info.Outputs
	}
}

// writeReports feeds the report to the iteration's own files, then to the extra
// handlers, and finally writes the summary.
func (r *Roundup) writeReports(report *outputhandler.Report) error {
	dir := r.IterDir()
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close() //nolint:errcheck
		}
	}()
	open := func(name string) (*os.File, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err == nil {
			files = append(files, f)
		}
		return f, err
	}
	pf, err := open(PingReportFile)
	if err != nil {
		return err
	}
	vf, err := open(VexFile)
	if err != nil {
		return err
	}
	handlers := []outputhandler.OutputHandler{
		outputhandler.NewPingReportOutputHandler(pf),
		outputhandler.NewCycloneDxVexOutputHandler(vf),
		outputhandler.NewPrometheusOutputHandler(filepath.Join(dir, MetricsFile)),
	}
	handlers = append(handlers, r.o.Handlers...)
	for _, h := range handlers {
		if err := h.HandleReport(report); err != nil {
			return err
		}
		if err := h.Close(); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := f.Sync(); err != nil {
			return err
		}
	}

	tmp := filepath.Join(dir, "."+SummaryFile+".tmp")
	sf, err := os.Create(tmp)
	if err != nil {
		return err
	}
	sh := outputhandler.NewSummaryOutputHandler(sf)
	if err := sh.HandleReport(report); err != nil {
		sf.Close() //nolint:errcheck
		return err
	}
	if err := sh.Close(); err != nil {
		sf.Close() //nolint:errcheck
		return err
	}
	if err := sf.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, SummaryFile))
}
