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
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.yaml.in/yaml/v3"

	"github.com/venslabs/roundup/pkg/finding"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// legacyTitle matches headlines of tickets written without front matter.
var legacyTitle = regexp.MustCompile(`^Vulnerability roundup (\d+): (\S+): (.*)$`)

// Parsed is a ticket read back from its persisted form.
type Parsed struct {
	Identity  Identity
	Package   finding.Package
	Status    Status
	Iteration int
	Reason    Reason
	Title     string
	// Entries hold the advisories listed as task items. Fixed is set for checked items.
	Entries []Entry
}

// OpenAdvisories counts unchecked advisory items.
func (p *Parsed) OpenAdvisories() int {
	n := 0
	for _, e := range p.Entries {
		if !e.Fixed {
			n++
		}
	}
	return n
}

// ParseDocument reads a persisted ticket. Any inconsistency between front matter and
// headline fails with ErrHistoryCorrupt.
func ParseDocument(b []byte) (*Parsed, error) {
	var p Parsed
	src := b
	fm, rest, hasFM, err := splitFrontMatter(b)
	if err != nil {
		return nil, err
	}
	if hasFM {
		var m frontMatter
		if err := yaml.Unmarshal(fm, &m); err != nil {
			return nil, corrupt("invalid front matter: %v", err)
		}
		if m.Identity == "" {
			return nil, corrupt("front matter lacks identity")
		}
		st, err := ParseStatus(m.Status)
		if err != nil {
			return nil, corrupt("%v", err)
		}
		p.Identity, p.Status, p.Iteration, p.Reason = Identity(m.Identity), st, m.Iteration, Reason(m.Reason)
		src = rest
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			if n.Level == 1 && p.Title == "" {
				p.Title = strings.TrimSpace(string(lines(n, src)))
			}
			return ast.WalkSkipChildren, nil
		case *extast.TaskCheckBox:
			if adv, ok := advisoryAfter(n, src); ok {
				p.Entries = append(p.Entries, Entry{Advisory: adv, Fixed: n.IsChecked})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, corrupt("%v", err)
	}
	if p.Title == "" {
		return nil, corrupt("missing headline")
	}

	if !hasFM {
		m := legacyTitle.FindStringSubmatch(p.Title)
		if m == nil {
			return nil, corrupt("headline %q carries no identity", p.Title)
		}
		p.Iteration, _ = strconv.Atoi(m[1])
		p.Identity = Identity(m[2])
		p.Status = StatusNew
		if m[3] == "resolved" {
			p.Status = StatusResolved
		}
	}
	if !strings.Contains(p.Title, " "+string(p.Identity)+":") {
		return nil, corrupt("headline %q does not match identity %s", p.Title, p.Identity)
	}
	if p.Package, err = finding.ParsePackage(string(p.Identity)); err != nil {
		return nil, corrupt("identity %s: %v", p.Identity, err)
	}
	return &p, nil
}

// Markdown returns the markdown part of a persisted ticket.
func Markdown(b []byte) ([]byte, error) {
	_, rest, _, err := splitFrontMatter(b)
	return rest, err
}

func splitFrontMatter(b []byte) (fm, rest []byte, ok bool, err error) {
	const delim = "---\n"
	if !bytes.HasPrefix(b, []byte(delim)) {
		return nil, b, false, nil
	}
	body := b[len(delim):]
	end := bytes.Index(body, []byte("\n"+delim))
	if end < 0 {
		return nil, nil, false, corrupt("unterminated front matter")
	}
	return body[:end+1], body[end+1+len(delim):], true, nil
}

func lines(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	ls := n.Lines()
	for i := 0; i < ls.Len(); i++ {
		seg := ls.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.Bytes()
}

// advisoryAfter finds the first link following a task checkbox and parses its text as
// an advisory id.
func advisoryAfter(box ast.Node, src []byte) (finding.Advisory, bool) {
	for n := box.NextSibling(); n != nil; n = n.NextSibling() {
		link, ok := n.(*ast.Link)
		if !ok {
			continue
		}
		var label bytes.Buffer
		for c := link.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				label.Write(t.Segment.Value(src))
			}
		}
		adv, err := finding.ParseAdvisory(label.String())
		return adv, err == nil
	}
	return finding.Advisory{}, false
}
