package outputhandler

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/CycloneDX/cyclonedx-go"

	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/ticket"
)

// NewCycloneDxVexOutputHandler returns an OutputHandler that emits a CycloneDX VEX
// document on Close: open advisories are in triage, whitelisted ones not affected and
// advisories of resolved tickets resolved.
func NewCycloneDxVexOutputHandler(w io.Writer) OutputHandler { return &cycloneDxVexWriter{w: w} }

type cycloneDxVexWriter struct {
	w      io.Writer
	r      []*Report
	closed bool
}

func (c *cycloneDxVexWriter) HandleReport(r *Report) error {
	c.r = append(c.r, r)
	return nil
}

const nvdURL = "https://nvd.nist.gov/vuln/detail/"

func bomRef(id ticket.Identity) string {
	return "roundup:" + id.Digest()[:16]
}

type vexKey struct {
	adv finding.Advisory
	ref string
}

type vexBuilder struct {
	components map[string]cyclonedx.Component
	vulns      map[vexKey]cyclonedx.Vulnerability
}

func (b *vexBuilder) component(p finding.Package) string {
	ref := bomRef(ticket.IdentityOf(p))
	if _, ok := b.components[ref]; !ok {
		b.components[ref] = cyclonedx.Component{
			BOMRef:  ref,
			Type:    cyclonedx.ComponentTypeLibrary,
			Name:    p.Pname(),
			Version: p.Version(),
		}
	}
	return ref
}

// add records a statement unless one exists already for the advisory and component.
func (b *vexBuilder) add(p finding.Package, adv finding.Advisory, score *float64, desc string, a cyclonedx.VulnerabilityAnalysis) {
	ref := b.component(p)
	k := vexKey{adv, ref}
	if _, ok := b.vulns[k]; ok {
		return
	}
	v := cyclonedx.Vulnerability{
		BOMRef:      adv.String() + "@" + ref,
		ID:          adv.String(),
		Source:      &cyclonedx.Source{Name: "NVD", URL: nvdURL + adv.String()},
		Description: desc,
		Affects:     &[]cyclonedx.Affects{{Ref: ref}},
		Analysis:    &a,
	}
	if score != nil {
		rs := []cyclonedx.VulnerabilityRating{{
			Source:   &cyclonedx.Source{Name: "NVD"},
			Score:    finding.Float64(*score),
			Severity: severityOf(score),
			Method:   cyclonedx.ScoringMethodCVSSv3,
		}}
		v.Ratings = &rs
	}
	b.vulns[k] = v
}

func (c *cycloneDxVexWriter) Close() error {
	if c.closed {
		return nil
	}
	b := &vexBuilder{
		components: make(map[string]cyclonedx.Component),
		vulns:      make(map[vexKey]cyclonedx.Vulnerability),
	}
	for _, r := range c.r {
		// open advisories first so they win over suppressions on other channels
		for _, d := range r.Decisions {
			if d.Status == ticket.StatusResolved {
				continue
			}
			for _, e := range d.Ticket.Entries {
				b.add(d.Ticket.Package, e.Advisory, e.Score, e.Description, cyclonedx.VulnerabilityAnalysis{
					State:  cyclonedx.IASInTriage,
					Detail: fmt.Sprintf("Reported on %s in roundup %d.", strings.Join(e.Channels, ", "), r.Iteration),
				})
			}
		}
		for _, s := range r.Suppressed {
			var why []string
			for _, rule := range s.Rules {
				w := rule.ID()
				if j := rule.Justification(); j != "" {
					w += ": " + j
				}
				why = append(why, w)
			}
			b.add(s.Finding.Package, s.Finding.Advisory, s.Finding.Score, s.Finding.Description, cyclonedx.VulnerabilityAnalysis{
				State:  cyclonedx.IASNotAffected,
				Detail: "Whitelisted by " + strings.Join(why, "; "),
			})
		}
		for _, d := range r.Decisions {
			if d.Status != ticket.StatusResolved {
				continue
			}
			for _, e := range d.Ticket.Entries {
				b.add(d.Ticket.Package, e.Advisory, e.Score, e.Description, cyclonedx.VulnerabilityAnalysis{
					State:  cyclonedx.IASResolved,
					Detail: fmt.Sprintf("No longer reported in roundup %d.", r.Iteration),
				})
			}
		}
	}

	bom := cyclonedx.NewBOM()
	if len(b.components) > 0 {
		comps := make([]cyclonedx.Component, 0, len(b.components))
		for _, comp := range b.components {
			comps = append(comps, comp)
		}
		slices.SortFunc(comps, func(x, y cyclonedx.Component) int {
			return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.Version, y.Version))
		})
		bom.Components = &comps
	}
	if len(b.vulns) > 0 {
		keys := make([]vexKey, 0, len(b.vulns))
		for k := range b.vulns {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(x, y vexKey) int {
			return cmp.Or(x.adv.Compare(y.adv), cmp.Compare(x.ref, y.ref))
		})
		vulns := make([]cyclonedx.Vulnerability, len(keys))
		for i, k := range keys {
			vulns[i] = b.vulns[k]
		}
		bom.Vulnerabilities = &vulns
	}

	enc := cyclonedx.NewBOMEncoder(c.w, cyclonedx.BOMFileFormatJSON)
	enc.SetPretty(true)
	if err := enc.Encode(bom); err != nil {
		return err
	}
	c.closed = true
	return nil
}
