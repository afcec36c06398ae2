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
	"fmt"
	"regexp"
	"strings"
)

// versionSplit finds the start of the version part, see parseDrvName in the Nix manual.
var versionSplit = regexp.MustCompile(`-[0-9]`)

// Package is a resolved package name and version, rendered as "pname-version".
type Package struct {
	name string
	vIdx int
}

// NewPackage joins pname and version.
func NewPackage(pname, version string) Package {
	return Package{
		name: pname + "-" + version,
		vIdx: len(pname) + 1,
	}
}

// ParsePackage splits a derivation name such as "linux-kernel-5.2" into pname and version.
// Names without a version are rejected.
func ParsePackage(s string) (Package, error) {
	s = strings.TrimSpace(s)
	loc := versionSplit.FindStringIndex(s)
	if loc == nil {
		return Package{}, fmt.Errorf("%w: failed to find version in derivation name %q", ErrInvalidPackage, s)
	}
	return Package{name: s, vIdx: loc[0] + 1}, nil
}

// Pname returns the package name without version.
func (p Package) Pname() string {
	if p.vIdx == 0 {
		return p.name
	}
	return p.name[:p.vIdx-1]
}

// Version returns the version part.
func (p Package) Version() string {
	if p.vIdx == 0 {
		return ""
	}
	return p.name[p.vIdx:]
}

func (p Package) String() string { return p.name }

func (p Package) IsZero() bool { return p.name == "" }

func (p Package) Compare(o Package) int { return strings.Compare(p.name, o.name) }

func (p Package) MarshalText() ([]byte, error) { return []byte(p.name), nil }

func (p *Package) UnmarshalText(b []byte) error {
	v, err := ParsePackage(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
