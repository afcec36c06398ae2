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

// Package channel models the scanned release lines of the package collection.
package channel

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ShortRevLen is the number of revision characters printed in ticket footers.
const ShortRevLen = 11

var (
	ErrInvalidSpec = errors.New("invalid channel specification")
	ErrDuplicate   = errors.New("duplicate channel")
)

var channelSpec = regexp.MustCompile(`^([^/=\s]+)(=(\S+))?$`)

// Channel is a release line to scan. Name is published in tickets, Rev is any git
// revision spec, usually a branch name or a commit id.
type Channel struct {
	Name string `json:"name" yaml:"name"`
	Rev  string `json:"rev,omitempty" yaml:"rev,omitempty"`
}

// Parse parses "NAME" or "NAME=REV". Without an explicit revision the name doubles as
// the revision.
func Parse(s string) (Channel, error) {
	m := channelSpec.FindStringSubmatch(s)
	if m == nil {
		return Channel{}, fmt.Errorf("%w %q", ErrInvalidSpec, s)
	}
	if m[3] == "" {
		return Channel{Name: m[1], Rev: m[1]}, nil
	}
	return Channel{Name: m[1], Rev: m[3]}, nil
}

func (c Channel) String() string { return c.Name }

// ShortRev returns at most ShortRevLen characters of the revision.
func (c Channel) ShortRev() string {
	if len(c.Rev) <= ShortRevLen {
		return c.Rev
	}
	return c.Rev[:ShortRevLen]
}

// Label is the footer form "name: shortrev", or just the name when no distinct revision
// is known.
func (c Channel) Label() string {
	if c.Rev == "" || c.Rev == c.Name {
		return c.Name
	}
	return c.Name + ": " + c.ShortRev()
}

// ArtifactName is the scanner output file name for this channel in an iteration directory.
func (c Channel) ArtifactName() string {
	return ArtifactName(c.Name)
}

// ArtifactName returns "vulnix.<name>.json".
func ArtifactName(name string) string {
	return "vulnix." + name + ".json"
}

// NameFromArtifact extracts the channel name from a scanner artifact file name.
// Compressed artifacts ("*.json.zst") are recognized too.
func NameFromArtifact(file string) (string, bool) {
	base := filepath.Base(file)
	base = strings.TrimSuffix(base, ".zst")
	if !strings.HasPrefix(base, "vulnix.") || !strings.HasSuffix(base, ".json") {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(base, "vulnix."), ".json")
	if name == "" {
		return "", false
	}
	return name, true
}

// Set is an ordered list of channels with unique names.
type Set []Channel

// ParseSet parses every spec and rejects duplicate names.
func ParseSet(specs []string) (Set, error) {
	out := make(Set, 0, len(specs))
	for _, s := range specs {
		c, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return NewSet(out...)
}

// NewSet rejects duplicate channel names.
func NewSet(chans ...Channel) (Set, error) {
	seen := make(map[string]struct{}, len(chans))
	for _, c := range chans {
		if _, ok := seen[c.Name]; ok {
			return nil, fmt.Errorf("%w %s", ErrDuplicate, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return Set(slices.Clone(chans)), nil
}

// Names returns the channel names in order.
func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the channel with the given name.
func (s Set) Lookup(name string) (Channel, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// ResolveRevisions replaces every revision spec with the full commit id found in the git
// repository at repoPath.
func (s Set) ResolveRevisions(repoPath string) (Set, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository %q: %w", repoPath, err)
	}
	out := make(Set, len(s))
	for i, c := range s {
		h, err := repo.ResolveRevision(plumbing.Revision(c.Rev))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve revision %q of channel %s: %w", c.Rev, c.Name, err)
		}
		out[i] = Channel{Name: c.Name, Rev: h.String()}
	}
	return out, nil
}
