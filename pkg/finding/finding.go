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

package finding

import (
	"slices"
	"strings"
)

// Finding is one reported vulnerability instance: a single package version on a
// single channel affected by a single advisory.
type Finding struct {
	// AttrPath is the package attribute path, e.g. ["python3Packages", "acoustics"].
	AttrPath []string
	Package  Package
	// Derivation is the store path of the derivation, when the scanner reports it.
	Derivation string
	Channel    string
	Advisory   Advisory
	// Score is the CVSSv3 base score. nil ranks below every scored finding.
	Score       *float64
	Description string
	Patches     []string
	// Source references the scanner record, e.g. "vulnix.nixos-19.03.json#12".
	Source string
}

// Attr returns the dotted attribute path.
func (f Finding) Attr() string {
	return strings.Join(f.AttrPath, ".")
}

// Key identifies a finding within one channel's scan.
func (f Finding) Key() string {
	return f.Package.String() + "/" + f.Advisory.String()
}

// Compare orders findings by package, advisory, channel and attribute path.
func Compare(a, b Finding) int {
	if c := a.Package.Compare(b.Package); c != 0 {
		return c
	}
	if c := a.Advisory.Compare(b.Advisory); c != 0 {
		return c
	}
	if c := strings.Compare(a.Channel, b.Channel); c != 0 {
		return c
	}
	return slices.Compare(a.AttrPath, b.AttrPath)
}

// Sort sorts findings in place using Compare.
func Sort(fs []Finding) {
	slices.SortStableFunc(fs, Compare)
}

// ScoreRank returns the score used for ordering; absent scores rank as -1.
func ScoreRank(score *float64) float64 {
	if score == nil {
		return -1
	}
	return *score
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
