package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/ticket"
	"github.com/venslabs/roundup/pkg/whitelist"
)

func mkFinding(pkg, cve, ch string, score *float64) finding.Finding {
	p, err := finding.ParsePackage(pkg)
	if err != nil {
		panic(err)
	}
	return finding.Finding{
		AttrPath:   []string{p.Pname()},
		Package:    p,
		Derivation: "/nix/store/" + ch + "-" + pkg + ".drv",
		Channel:    ch,
		Advisory:   finding.MustParseAdvisory(cve),
		Score:      score,
	}
}

func adv(ids ...string) []finding.Advisory {
	out := make([]finding.Advisory, len(ids))
	for i, id := range ids {
		out[i] = finding.MustParseAdvisory(id)
	}
	return out
}

func openHistory(iter int, snaps ...history.Snapshot) *history.History {
	h := &history.History{Iterations: []int{iter}, Snapshots: map[ticket.Identity]history.Snapshot{}}
	for _, s := range snaps {
		h.Snapshots[s.Identity] = s
	}
	return h
}

func snapshot(pkg string, st ticket.Status, iter int, cves ...string) history.Snapshot {
	p, err := finding.ParsePackage(pkg)
	if err != nil {
		panic(err)
	}
	return history.Snapshot{Identity: ticket.IdentityOf(p), Package: p, Status: st, Iteration: iter, Advisories: adv(cves...)}
}

var chans = channel.Set{{Name: "nixos-19.09", Rev: "nixos-19.09"}, {Name: "nixos-unstable", Rev: "nixos-unstable"}}

func reconcile(t *testing.T, fs []finding.Finding, h *history.History, o Options) []Decision {
	t.Helper()
	groups, err := GroupFindings(fs)
	require.NoError(t, err)
	if o.Iteration == 0 {
		o.Iteration = 2
	}
	if o.Channels == nil {
		o.Channels = chans
	}
	return Reconcile(groups, h, o)
}

func TestNewTicketOrdersBySeverity(t *testing.T) {
	ds := reconcile(t, []finding.Finding{
		mkFinding("foo-1.0", "CVE-2020-0002", "nixos-19.09", finding.Float64(4.0)),
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", finding.Float64(9.0)),
	}, nil, Options{})
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, ticket.StatusNew, d.Status)
	assert.Equal(t, ticket.Identity("foo-1.0"), d.Identity)
	assert.Equal(t, adv("CVE-2020-0001", "CVE-2020-0002"), d.Ticket.Advisories())
	assert.Equal(t, adv("CVE-2020-0001", "CVE-2020-0002"), d.Added)
	assert.Zero(t, d.Previous)
}

func TestResolvedWhenNoActiveFindings(t *testing.T) {
	h := openHistory(1, snapshot("bar-2.0", ticket.StatusNew, 1, "CVE-2019-0005"))
	ds := reconcile(t, nil, h, Options{})
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, ticket.StatusResolved, d.Status)
	assert.Equal(t, ticket.ReasonFixed, d.Ticket.Reason)
	assert.Equal(t, 1, d.Previous)
	assert.Equal(t, adv("CVE-2019-0005"), d.Removed)
	require.Len(t, d.Ticket.Entries, 1)
	assert.True(t, d.Ticket.Entries[0].Fixed)
}

func TestResolvedByWhitelist(t *testing.T) {
	sup := mkFinding("baz-1.0", "CVE-2020-0003", "nixos-19.09", nil)
	rule, err := whitelist.NewRule(whitelist.Meta{RuleID: "nixos-19.09.toml[baz]", Rel: "nixos-19.09", CVEs: adv("CVE-2020-0003")}, "baz", "")
	require.NoError(t, err)
	res := whitelist.Filter([]finding.Finding{sup}, []whitelist.Rule{rule}, "nixos-19.09")
	require.Empty(t, res.Active)
	require.Empty(t, res.Unused)

	h := openHistory(1, snapshot("baz-1.0", ticket.StatusCarried, 1, "CVE-2020-0003"))
	ds := reconcile(t, res.Active, h, Options{Suppressed: res.Suppressed})
	require.Len(t, ds, 1)
	assert.Equal(t, ticket.StatusResolved, ds[0].Status)
	assert.Equal(t, ticket.ReasonWhitelisted, ds[0].Ticket.Reason)
	assert.Equal(t, []string{"nixos-19.09.toml[baz]"}, ds[0].Ticket.SuppressedBy)
}

func TestCarriedTracksChanges(t *testing.T) {
	h := openHistory(1, snapshot("foo-1.0", ticket.StatusNew, 1, "CVE-2020-0001", "CVE-2020-0002"))
	ds := reconcile(t, []finding.Finding{
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", nil),
		mkFinding("foo-1.0", "CVE-2020-0009", "nixos-19.09", nil),
	}, h, Options{})
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, ticket.StatusCarried, d.Status)
	assert.Equal(t, ticket.StatusCarried, d.Ticket.Status)
	assert.Equal(t, adv("CVE-2020-0009"), d.Added)
	assert.Equal(t, adv("CVE-2020-0002"), d.Removed)
	assert.Equal(t, 1, d.Previous)
}

func TestReopenAfterResolution(t *testing.T) {
	h := openHistory(1, snapshot("foo-1.0", ticket.StatusResolved, 1, "CVE-2020-0001"))
	ds := reconcile(t, []finding.Finding{mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", nil)}, h, Options{})
	require.Len(t, ds, 1)
	assert.Equal(t, ticket.StatusNew, ds[0].Status)
}

func TestNoOp(t *testing.T) {
	h := openHistory(1, snapshot("gone-1.0", ticket.StatusResolved, 1, "CVE-2020-0001"))
	assert.Empty(t, reconcile(t, nil, h, Options{}))
	assert.Empty(t, reconcile(t, nil, nil, Options{}))
}

func TestUnionAcrossChannels(t *testing.T) {
	ds := reconcile(t, []finding.Finding{
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-unstable", finding.Float64(5.0)),
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", finding.Float64(5.0)),
		mkFinding("foo-1.0", "CVE-2020-0002", "nixos-unstable", finding.Float64(7.5)),
	}, nil, Options{})
	require.Len(t, ds, 1)
	es := ds[0].Ticket.Entries
	require.Len(t, es, 2)
	assert.Equal(t, "CVE-2020-0002", es[0].Advisory.String())
	assert.Equal(t, []string{"nixos-unstable"}, es[0].Channels)
	assert.Equal(t, []string{"nixos-19.09", "nixos-unstable"}, es[1].Channels)
}

func TestDecisionsSortedAndUnique(t *testing.T) {
	h := openHistory(1,
		snapshot("zlib-1.2.11", ticket.StatusNew, 1, "CVE-2018-0001"),
		snapshot("curl-7.64.0", ticket.StatusNew, 1, "CVE-2019-0001"),
	)
	ds := reconcile(t, []finding.Finding{
		mkFinding("libtiff-4.0.9", "CVE-2018-17000", "nixos-19.09", nil),
		mkFinding("curl-7.64.0", "CVE-2019-0001", "nixos-unstable", nil),
		mkFinding("curl-7.64.0", "CVE-2019-0001", "nixos-19.09", nil),
	}, h, Options{})
	var ids []ticket.Identity
	for _, d := range ds {
		ids = append(ids, d.Identity)
	}
	assert.Equal(t, []ticket.Identity{"curl-7.64.0", "libtiff-4.0.9", "zlib-1.2.11"}, ids)
	assert.Equal(t, map[ticket.Status]int{
		ticket.StatusNew:      1,
		ticket.StatusCarried:  1,
		ticket.StatusResolved: 1,
	}, Counts(ds))
}

func TestReconcileIsIdempotent(t *testing.T) {
	fs := []finding.Finding{
		mkFinding("foo-1.0", "CVE-2020-0002", "nixos-19.09", finding.Float64(4.0)),
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-unstable", finding.Float64(9.0)),
		mkFinding("bar-2.0", "CVE-2020-0003", "nixos-19.09", nil),
	}
	rev := []finding.Finding{fs[2], fs[1], fs[0]}
	h := openHistory(1, snapshot("foo-1.0", ticket.StatusNew, 1, "CVE-2020-0001"))
	o := Options{Maintainers: map[ticket.Identity][]string{"foo-1.0": {"alice"}}}

	a := reconcile(t, fs, h, o)
	b := reconcile(t, rev, h, o)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, ticket.Render(a[i].Ticket).Bytes(), ticket.Render(b[i].Ticket).Bytes())
	}
}

func TestGroupFindingsCollision(t *testing.T) {
	a := mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", nil)
	b := mkFinding("foo-1.0", "CVE-2020-0002", "nixos-19.09", nil)
	b.Derivation = "/nix/store/other-foo-1.0.drv"
	b.AttrPath = []string{"pythonPackages", "foo"}

	_, err := GroupFindings([]finding.Finding{a, b})
	require.ErrorIs(t, err, ErrIdentityCollision)
	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ticket.Identity("foo-1.0"), ce.Identity)
	assert.Equal(t, "nixos-19.09", ce.Channel)

	// without derivations the attribute paths tell packages apart
	a.Derivation, b.Derivation = "", ""
	_, err = GroupFindings([]finding.Finding{b, a})
	assert.ErrorIs(t, err, ErrIdentityCollision)
}

func TestGroupFindingsAcrossChannels(t *testing.T) {
	// same package version built differently on two channels is not a collision
	groups, err := GroupFindings([]finding.Finding{
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-19.09", nil),
		mkFinding("foo-1.0", "CVE-2020-0001", "nixos-unstable", nil),
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"nixos-19.09", "nixos-unstable"}, groups[0].Channels())
	assert.Equal(t, [][]string{{"foo"}}, groups[0].AttrPaths())
}
