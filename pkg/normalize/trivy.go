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

package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	trivytypes "github.com/aquasecurity/trivy/pkg/types"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

// ReadTrivy reads a Trivy JSON report (`trivy --format json`) and normalizes its
// vulnerabilities. Trivy has no attribute paths, so the package name stands in.
func ReadTrivy(ctx context.Context, r io.Reader, channel, artifact string, diags *diag.Collector) ([]finding.Finding, error) {
	var report trivytypes.Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w: %v", artifact, ErrMalformedInput, err)
	}
	var out []finding.Finding
	for ri, res := range report.Results {
		for vi, v := range res.Vulnerabilities {
			source := fmt.Sprintf("%s#%d.%d", artifact, ri, vi)
			f, err := normalizeTrivyVuln(v, channel, source)
			if err != nil {
				diags.Add(ctx, diag.MalformedInput, source, err.Error())
				continue
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func normalizeTrivyVuln(v trivytypes.DetectedVulnerability, channel, source string) (finding.Finding, error) {
	if v.PkgName == "" || v.InstalledVersion == "" {
		return finding.Finding{}, fmt.Errorf("%w: %s lacks package name or version", ErrMalformedInput, v.VulnerabilityID)
	}
	adv, err := finding.ParseAdvisory(v.VulnerabilityID)
	if err != nil {
		return finding.Finding{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	f := finding.Finding{
		AttrPath:    []string{v.PkgName},
		Package:     finding.NewPackage(v.PkgName, v.InstalledVersion),
		Channel:     channel,
		Advisory:    adv,
		Description: StripStorePaths(strings.TrimSpace(v.Description)),
		Source:      source,
	}
	// Highest v3 score among vendors, matching what vulnix reports from NVD.
	for _, c := range v.CVSS {
		if c.V3Score <= 0 {
			continue
		}
		if f.Score == nil || c.V3Score > *f.Score {
			f.Score = finding.Float64(c.V3Score)
		}
	}
	return f, nil
}
