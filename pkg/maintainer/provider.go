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

// Package maintainer maps packages to the maintainer handles pinged in their tickets.
package maintainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/venslabs/roundup/pkg/api/types"
	"github.com/venslabs/roundup/pkg/finding"
)

// PackageInfo is what a Provider knows about one attribute path.
type PackageInfo struct {
	AttrPath    []string
	Package     finding.Package
	Maintainers []string
	// Outputs are the outputs installed by default, e.g. ["bin", "man"].
	Outputs []string
}

// Provider resolves package attribute paths. It fails with ErrNotFound for unknown
// paths.
type Provider interface {
	Resolve(ctx context.Context, attrPath []string) (PackageInfo, error)
}

// StaticProvider serves a fixed map keyed by dotted attribute path.
type StaticProvider map[string]PackageInfo

func (p StaticProvider) Resolve(_ context.Context, attrPath []string) (PackageInfo, error) {
	key := strings.Join(attrPath, ".")
	info, ok := p[key]
	if !ok {
		return PackageInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return info, nil
}

// DefaultSystem is the platform whose packages are considered.
const DefaultSystem = "x86_64-linux"

// PackagesFile is a Provider backed by a packages.json document.
type PackagesFile struct {
	StaticProvider
}

// PackagesPath returns the packages.json location for a channel inside an iteration
// directory, preferring an uncompressed file. It returns "" when neither exists.
func PackagesPath(dir, channel string) string {
	base := filepath.Join(dir, "packages."+channel+".json")
	for _, p := range []string{base, base + ".zst"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadPackagesFile reads packages.json (optionally zstd compressed). Packages that are
// unavailable, built for another system or lack a version are left out.
func LoadPackagesFile(path, system string) (*PackagesFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if filepath.Ext(path) == ".zst" {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	pf, err := ParsePackages(b, system)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return pf, nil
}

// ParsePackages builds a PackagesFile from packages.json content.
func ParsePackages(b []byte, system string) (*PackagesFile, error) {
	if system == "" {
		system = DefaultSystem
	}
	var doc types.NixEnvPackages
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	pf := &PackagesFile{StaticProvider: make(StaticProvider, len(doc.Packages))}
	for attr, pkg := range doc.Packages {
		if pkg.Meta.Available != nil && !*pkg.Meta.Available {
			continue
		}
		if pkg.System != "" && pkg.System != system {
			continue
		}
		p, err := finding.ParsePackage(pkg.Name)
		if err != nil {
			continue
		}
		pf.StaticProvider[attr] = PackageInfo{
			AttrPath:    strings.Split(attr, "."),
			Package:     p,
			Maintainers: pkg.Meta.Maintainers.Handles(),
			Outputs:     pkg.Meta.Outputs,
		}
	}
	return pf, nil
}

// LoadChannelProviders loads packages.<channel>.json for every channel that has one.
func LoadChannelProviders(dir string, channels []string, system string) (map[string]Provider, error) {
	out := make(map[string]Provider)
	for _, ch := range channels {
		path := PackagesPath(dir, ch)
		if path == "" {
			continue
		}
		pf, err := LoadPackagesFile(path, system)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[ch] = pf
	}
	return out, nil
}
