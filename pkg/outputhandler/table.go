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

package outputhandler

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"

	"github.com/venslabs/roundup/pkg/lifecycle"
	"github.com/venslabs/roundup/pkg/ticket"
)

type tableOutputHandler struct {
	w io.Writer
	r []*Report
}

// NewTableOutputHandler prints the decisions and a run summary as terminal tables.
func NewTableOutputHandler(w io.Writer) OutputHandler {
	if w == nil {
		w = os.Stdout
	}
	return &tableOutputHandler{w: w}
}

func (h *tableOutputHandler) HandleReport(r *Report) error {
	h.r = append(h.r, r)
	return nil
}

func (h *tableOutputHandler) Close() error {
	for _, r := range h.r {
		if len(r.Decisions) > 0 {
			t := table.New(h.w)
			t.SetHeaders("Status", "Package", "Advisories", "Max Score", "Changes")
			for _, d := range r.Decisions {
				t.AddRow(colorStatus(d.Status), string(d.Identity), strconv.Itoa(len(d.Ticket.Entries)),
					scoreCell(d.Ticket.MaxScore()), changes(d))
			}
			t.Render()
		}

		counts := lifecycle.Counts(r.Decisions)
		t := table.New(h.w)
		t.SetHeaders("Iteration", "New", "Carried", "Resolved", "Active", "Suppressed", "Unused Rules", "Diagnostics")
		t.AddRow(strconv.Itoa(r.Iteration),
			strconv.Itoa(counts[ticket.StatusNew]),
			strconv.Itoa(counts[ticket.StatusCarried]),
			strconv.Itoa(counts[ticket.StatusResolved]),
			strconv.Itoa(r.Active),
			strconv.Itoa(len(r.Suppressed)),
			strconv.Itoa(len(r.Unused)),
			strconv.Itoa(len(r.Diagnostics)))
		t.Render()

		if len(r.Unused) > 0 {
			t := table.New(h.w)
			t.SetHeaders("Unused Rule", "Subject", "Similar Packages")
			similar := make(map[string]string)
			for _, s := range r.Suggestions {
				similar[s.RuleID] = strings.Join(s.Candidates, ", ")
			}
			for _, u := range r.Unused {
				t.AddRow(u.ID(), u.Subject(), similar[u.ID()])
			}
			t.Render()
		}
	}
	return nil
}

func changes(d lifecycle.Decision) string {
	var parts []string
	if d.Status == ticket.StatusResolved {
		return string(d.Ticket.Reason)
	}
	if d.Status == ticket.StatusCarried && len(d.Added) > 0 {
		parts = append(parts, fmt.Sprintf("+%d", len(d.Added)))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("-%d", len(d.Removed)))
	}
	return strings.Join(parts, " ")
}

func scoreCell(score *float64) string {
	if score == nil {
		return "-"
	}
	return colorSeverity(severityOf(score), fmt.Sprintf("%.1f", *score))
}

func colorStatus(s ticket.Status) string {
	switch s {
	case ticket.StatusNew:
		return tml.Sprintf("<red>NEW</red>")
	case ticket.StatusCarried:
		return tml.Sprintf("<yellow>CARRIED</yellow>")
	case ticket.StatusResolved:
		return tml.Sprintf("<green>RESOLVED</green>")
	default:
		return string(s)
	}
}

func colorSeverity(sev cyclonedx.Severity, text string) string {
	switch sev {
	case cyclonedx.SeverityCritical:
		return tml.Sprintf("<red><bold>%s</bold></red>", text)
	case cyclonedx.SeverityHigh:
		return tml.Sprintf("<red>%s</red>", text)
	case cyclonedx.SeverityMedium:
		return tml.Sprintf("<yellow>%s</yellow>", text)
	case cyclonedx.SeverityLow:
		return tml.Sprintf("<blue>%s</blue>", text)
	default:
		return text
	}
}

// severityOf maps a CVSSv3 base score to its qualitative rating.
func severityOf(score *float64) cyclonedx.Severity {
	switch {
	case score == nil:
		return cyclonedx.SeverityUnknown
	case *score >= 9.0:
		return cyclonedx.SeverityCritical
	case *score >= 7.0:
		return cyclonedx.SeverityHigh
	case *score >= 4.0:
		return cyclonedx.SeverityMedium
	case *score > 0:
		return cyclonedx.SeverityLow
	}
	return cyclonedx.SeverityNone
}
