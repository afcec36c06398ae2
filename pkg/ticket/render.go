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

package ticket

import (
	"bytes"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Document is a rendered ticket. It is a pure function of the Ticket it was rendered
// from: no clock, no environment.
type Document struct {
	Identity  Identity
	Status    Status
	Iteration int
	Reason    Reason
	Title     string
	Body      string
}

// frontMatter is the YAML header of a persisted ticket.
type frontMatter struct {
	Identity  string `yaml:"identity"`
	Status    string `yaml:"status"`
	Iteration int    `yaml:"iteration"`
	Reason    string `yaml:"reason,omitempty"`
}

// FileName is where the document is persisted inside its iteration directory.
func (d Document) FileName() string { return d.Identity.FileName() }

// Bytes returns the persisted form: YAML front matter, the title as H1 and the body.
func (d Document) Bytes() []byte {
	var b bytes.Buffer
	fm, err := yaml.Marshal(frontMatter{
		Identity:  string(d.Identity),
		Status:    string(d.Status),
		Iteration: d.Iteration,
		Reason:    string(d.Reason),
	})
	if err != nil {
		// plain struct of strings and an int
		panic(err)
	}
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n")
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	b.WriteString(d.Body)
	return b.Bytes()
}

// Title returns the ticket headline, e.g.
// "Vulnerability roundup 7: libtiff-4.0.9: 2 advisories [8.8]".
func Title(t *Ticket) string {
	if t.Status == StatusResolved {
		return fmt.Sprintf("Vulnerability roundup %d: %s: resolved", t.Iteration, t.Identity)
	}
	noun := "advisories"
	if len(t.Entries) == 1 {
		noun = "advisory"
	}
	var top string
	if m := t.MaxScore(); m != nil {
		top = fmt.Sprintf(" [%.1f]", *m)
	}
	return fmt.Sprintf("Vulnerability roundup %d: %s: %d %s%s", t.Iteration, t.Identity, len(t.Entries), noun, top)
}

// Render produces the canonical document for t. Entries are rendered in canonical
// order regardless of the order they are stored in.
func Render(t Ticket) Document {
	t.Entries = append([]Entry(nil), t.Entries...)
	t.SortEntries()
	return Document{
		Identity:  t.Identity,
		Status:    t.Status,
		Iteration: t.Iteration,
		Reason:    t.Reason,
		Title:     Title(&t),
		Body:      body(&t),
	}
}

func body(t *Ticket) string {
	var b strings.Builder
	pname := t.Package.Pname()
	fmt.Fprintf(&b, "[search](https://search.nix.gsc.io/?q=%s&i=fosho&repos=NixOS-nixpkgs), ", pname)
	fmt.Fprintf(&b, "[files](https://github.com/NixOS/nixpkgs/search?utf8=%%E2%%9C%%93&q=%s+in%%3Apath&type=Code)\n\n", pname)

	if t.Status == StatusResolved {
		writeClosure(&b, t)
	}
	for _, e := range t.Entries {
		check := " "
		if e.Fixed {
			check = "x"
		}
		fmt.Fprintf(&b, "* [%s] [%s](https://nvd.nist.gov/vuln/detail/%s)", check, e.Advisory, e.Advisory)
		if e.Score != nil {
			fmt.Fprintf(&b, " CVSSv3=%.1f", *e.Score)
		}
		if len(e.Channels) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(e.Channels, ", "))
		}
		b.WriteString("\n")
	}

	details := false
	for _, e := range t.Entries {
		if e.Description == "" {
			continue
		}
		if !details {
			b.WriteString("\n## CVE details\n")
			details = true
		}
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", e.Advisory, e.Description)
	}

	scanned := t.observedChannels()
	if len(scanned) == 0 {
		scanned = t.Channels
	}
	labels := make([]string, len(scanned))
	for i, c := range scanned {
		labels[i] = c.Label()
	}
	fmt.Fprintf(&b, "\n-----\nScanned versions: %s.\n\n", strings.Join(labels, "; "))

	for _, m := range t.Maintainers {
		fmt.Fprintf(&b, "Cc @%s\n", m)
	}
	return b.String()
}

func writeClosure(b *strings.Builder, t *Ticket) {
	switch t.Reason {
	case ReasonWhitelisted:
		fmt.Fprintf(b, "Closed in roundup %d: all remaining advisories are suppressed by whitelist rules", t.Iteration)
		if len(t.SuppressedBy) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(t.SuppressedBy, ", "))
		}
		b.WriteString(".\n\n")
	default:
		fmt.Fprintf(b, "Closed in roundup %d: no advisory is reported for %s any more.\n\n", t.Iteration, t.Identity)
	}
}
