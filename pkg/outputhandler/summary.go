package outputhandler

import (
	"encoding/json"
	"io"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/lifecycle"
	"github.com/venslabs/roundup/pkg/ticket"
	"github.com/venslabs/roundup/pkg/whitelist"
)

// Summary is the JSON document written as summary.json. Its presence marks an
// iteration as finalized, so it carries no timestamps and re-runs reproduce it.
type Summary struct {
	Iteration   int                    `json:"iteration"`
	Channels    []SummaryChannel       `json:"channels"`
	Counts      SummaryCounts          `json:"counts"`
	Tickets     []SummaryTicket        `json:"tickets"`
	Suppressed  []SummarySuppression   `json:"suppressed"`
	UnusedRules []SummaryRule          `json:"unused_rules"`
	Suggestions []whitelist.Suggestion `json:"suggestions,omitempty"`
	Diagnostics []diag.Diagnostic      `json:"diagnostics"`
}

type SummaryChannel struct {
	Name string `json:"name"`
	Rev  string `json:"rev,omitempty"`
}

type SummaryCounts struct {
	New         int               `json:"new"`
	Carried     int               `json:"carried"`
	Resolved    int               `json:"resolved"`
	Active      int               `json:"active_findings"`
	Suppressed  int               `json:"suppressed_findings"`
	UnusedRules int               `json:"unused_rules"`
	Diagnostics map[diag.Kind]int `json:"diagnostics"`
}

type SummaryTicket struct {
	Identity     ticket.Identity    `json:"identity"`
	Status       ticket.Status      `json:"status"`
	Reason       ticket.Reason      `json:"reason,omitempty"`
	Advisories   []finding.Advisory `json:"advisories"`
	Added        []finding.Advisory `json:"added,omitempty"`
	Removed      []finding.Advisory `json:"removed,omitempty"`
	SuppressedBy []string           `json:"suppressed_by,omitempty"`
	Maintainers  []string           `json:"maintainers,omitempty"`
	URL          string             `json:"url,omitempty"`
}

type SummarySuppression struct {
	Finding string   `json:"finding"`
	Channel string   `json:"channel"`
	Rules   []string `json:"rules"`
}

type SummaryRule struct {
	ID      string `json:"id"`
	Release string `json:"release"`
	Subject string `json:"subject"`
}

// NewSummary condenses a report.
func NewSummary(r *Report) Summary {
	counts := lifecycle.Counts(r.Decisions)
	s := Summary{
		Iteration: r.Iteration,
		Channels:  []SummaryChannel{},
		Counts: SummaryCounts{
			New:         counts[ticket.StatusNew],
			Carried:     counts[ticket.StatusCarried],
			Resolved:    counts[ticket.StatusResolved],
			Active:      r.Active,
			Suppressed:  len(r.Suppressed),
			UnusedRules: len(r.Unused),
			Diagnostics: map[diag.Kind]int{},
		},
		Tickets:     []SummaryTicket{},
		Suppressed:  []SummarySuppression{},
		UnusedRules: []SummaryRule{},
		Suggestions: r.Suggestions,
		Diagnostics: []diag.Diagnostic{},
	}
	for _, c := range r.Channels {
		sc := SummaryChannel{Name: c.Name}
		if c.Rev != c.Name {
			sc.Rev = c.Rev
		}
		s.Channels = append(s.Channels, sc)
	}
	urls := make(map[ticket.Identity]string)
	for _, f := range r.Filed {
		urls[f.Identity] = f.URL
	}
	for _, d := range r.Decisions {
		s.Tickets = append(s.Tickets, SummaryTicket{
			Identity:     d.Identity,
			Status:       d.Status,
			Reason:       d.Ticket.Reason,
			Advisories:   d.Ticket.Advisories(),
			Added:        d.Added,
			Removed:      d.Removed,
			SuppressedBy: d.Ticket.SuppressedBy,
			Maintainers:  d.Ticket.Maintainers,
			URL:          urls[d.Identity],
		})
	}
	for _, sup := range r.Suppressed {
		s.Suppressed = append(s.Suppressed, SummarySuppression{
			Finding: sup.Finding.Key(),
			Channel: sup.Finding.Channel,
			Rules:   sup.RuleIDs(),
		})
	}
	for _, u := range r.Unused {
		s.UnusedRules = append(s.UnusedRules, SummaryRule{ID: u.ID(), Release: u.Release(), Subject: u.Subject()})
	}
	for _, d := range r.Diagnostics {
		s.Diagnostics = append(s.Diagnostics, d)
		s.Counts.Diagnostics[d.Kind]++
	}
	return s
}

type jsonOutputHandler struct {
	w       io.Writer
	convert func(*Report) any
	r       []*Report
}

func (h *jsonOutputHandler) HandleReport(r *Report) error {
	h.r = append(h.r, r)
	return nil
}

func (h *jsonOutputHandler) Close() error {
	enc := json.NewEncoder(h.w)
	enc.SetIndent("", "  ")
	for _, r := range h.r {
		if err := enc.Encode(h.convert(r)); err != nil {
			return err
		}
	}
	return nil
}

// NewSummaryOutputHandler writes summary.json.
func NewSummaryOutputHandler(w io.Writer) OutputHandler {
	return &jsonOutputHandler{w: w, convert: func(r *Report) any { return NewSummary(r) }}
}

// NewPingReportOutputHandler writes the maintainer ping report: handle to packages.
func NewPingReportOutputHandler(w io.Writer) OutputHandler {
	return &jsonOutputHandler{w: w, convert: func(r *Report) any {
		if r.Pings == nil {
			return map[string][]string{}
		}
		return r.Pings
	}}
}
