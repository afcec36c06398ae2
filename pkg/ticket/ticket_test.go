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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/finding"
)

func adv(s string) finding.Advisory { return finding.MustParseAdvisory(s) }

func libtiff(t *testing.T) Ticket {
	t.Helper()
	chans, err := channel.ParseSet([]string{
		"br0=5d4a1a3897e2d674522bcb3aa0026c9e32d8fd7c",
		"br1=80738ed9dc0ce48d7796baed5364eef8072c794d",
	})
	require.NoError(t, err)
	p, err := finding.ParsePackage("libtiff-4.0.9")
	require.NoError(t, err)
	return Ticket{
		Iteration: 2,
		Identity:  IdentityOf(p),
		Package:   p,
		Channels:  chans,
		Status:    StatusNew,
		// stored out of order on purpose
		Entries: []Entry{
			{Advisory: adv("CVE-2018-17000"), Channels: []string{"br0"}},
			{Advisory: adv("CVE-2018-17100"), Score: finding.Float64(8.7), Channels: []string{"br0"}, Description: "Detail 17100"},
			{Advisory: adv("CVE-2018-17101"), Score: finding.Float64(8.8), Channels: []string{"br0", "br1"}, Description: "Detail 17101"},
		},
	}
}

const libtiffBody = `[search](https://search.nix.gsc.io/?q=libtiff&i=fosho&repos=NixOS-nixpkgs), [files](https://github.com/NixOS/nixpkgs/search?utf8=%E2%9C%93&q=libtiff+in%3Apath&type=Code)

* [ ] [CVE-2018-17101](https://nvd.nist.gov/vuln/detail/CVE-2018-17101) CVSSv3=8.8 (br0, br1)
* [ ] [CVE-2018-17100](https://nvd.nist.gov/vuln/detail/CVE-2018-17100) CVSSv3=8.7 (br0)
* [ ] [CVE-2018-17000](https://nvd.nist.gov/vuln/detail/CVE-2018-17000) (br0)

## CVE details

### CVE-2018-17101

Detail 17101

### CVE-2018-17100

Detail 17100

-----
Scanned versions: br0: 5d4a1a3897e; br1: 80738ed9dc0.

`

func TestRender(t *testing.T) {
	doc := Render(libtiff(t))
	assert.Equal(t, "Vulnerability roundup 2: libtiff-4.0.9: 3 advisories [8.8]", doc.Title)
	assert.Equal(t, libtiffBody, doc.Body)
	assert.Equal(t, "ticket.libtiff-4.0.9.md", doc.FileName())
}

func TestRenderIsIdempotent(t *testing.T) {
	a := Render(libtiff(t)).Bytes()
	tk := libtiff(t)
	tk.Entries[0], tk.Entries[2] = tk.Entries[2], tk.Entries[0]
	b := Render(tk).Bytes()
	assert.Equal(t, string(a), string(b))
}

func TestRenderDoesNotReorderCallerEntries(t *testing.T) {
	tk := libtiff(t)
	_ = Render(tk)
	assert.Equal(t, adv("CVE-2018-17000"), tk.Entries[0].Advisory)
}

func TestTitle(t *testing.T) {
	tk := libtiff(t)
	tk.Entries = tk.Entries[:1]
	assert.Equal(t, "Vulnerability roundup 2: libtiff-4.0.9: 1 advisory", Title(&tk))
	tk.Status = StatusResolved
	assert.Equal(t, "Vulnerability roundup 2: libtiff-4.0.9: resolved", Title(&tk))
}

func TestRenderMaintainersAndRelevantChannels(t *testing.T) {
	tk := libtiff(t)
	tk.Entries = []Entry{{Advisory: adv("CVE-2018-17100"), Score: finding.Float64(8.8), Channels: []string{"br0"}}}
	tk.Maintainers = []string{"alice", "ericson2314"}
	body := Render(tk).Body
	assert.Contains(t, body, "Scanned versions: br0: 5d4a1a3897e.\n")
	assert.True(t, strings.HasSuffix(body, "\n\nCc @alice\nCc @ericson2314\n"), body)
	assert.NotContains(t, body, "## CVE details")
}

func TestRenderResolved(t *testing.T) {
	tk := libtiff(t)
	tk.Iteration = 3
	tk.Status = StatusResolved
	tk.Reason = ReasonWhitelisted
	tk.SuppressedBy = []string{"nixos-19.09.toml[libtiff]"}
	tk.Entries = []Entry{{Advisory: adv("CVE-2018-17000"), Fixed: true}}
	doc := Render(tk)
	assert.Contains(t, doc.Body, "Closed in roundup 3: all remaining advisories are suppressed by whitelist rules (nixos-19.09.toml[libtiff]).\n")
	assert.Contains(t, doc.Body, "* [x] [CVE-2018-17000](https://nvd.nist.gov/vuln/detail/CVE-2018-17000)\n")
	assert.Contains(t, doc.Body, "Scanned versions: br0: 5d4a1a3897e; br1: 80738ed9dc0.\n")

	tk.Reason = ReasonFixed
	assert.Contains(t, Render(tk).Body, "no advisory is reported for libtiff-4.0.9 any more")
}

func TestParseDocumentRoundTrip(t *testing.T) {
	tk := libtiff(t)
	doc := Render(tk)
	p, err := ParseDocument(doc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tk.Identity, p.Identity)
	assert.Equal(t, "libtiff", p.Package.Pname())
	assert.Equal(t, StatusNew, p.Status)
	assert.Equal(t, 2, p.Iteration)
	assert.Equal(t, doc.Title, p.Title)
	assert.Equal(t, []finding.Advisory{adv("CVE-2018-17101"), adv("CVE-2018-17100"), adv("CVE-2018-17000")},
		(&Ticket{Entries: p.Entries}).Advisories())
	assert.Equal(t, 3, p.OpenAdvisories())

	tk.Status, tk.Reason = StatusResolved, ReasonFixed
	tk.Entries = []Entry{{Advisory: adv("CVE-2018-17000"), Fixed: true}}
	p, err = ParseDocument(Render(tk).Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, p.Status)
	assert.Equal(t, ReasonFixed, p.Reason)
	assert.Zero(t, p.OpenAdvisories())
}

func TestParseDocumentLegacy(t *testing.T) {
	in := "# Vulnerability roundup 83: libtiff-4.0.9: 3 advisories [8.8]\n\n" + libtiffBody
	p, err := ParseDocument([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, Identity("libtiff-4.0.9"), p.Identity)
	assert.Equal(t, 83, p.Iteration)
	assert.Equal(t, StatusNew, p.Status)
	assert.Len(t, p.Entries, 3)
}

func TestMarkdown(t *testing.T) {
	doc := Render(libtiff(t))
	md, err := Markdown(doc.Bytes())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# "+doc.Title+"\n"), string(md))
	assert.NotContains(t, string(md), "identity:")

	legacy := []byte("# Vulnerability roundup 83: libtiff-4.0.9: 3 advisories [8.8]\n")
	md, err = Markdown(legacy)
	require.NoError(t, err)
	assert.Equal(t, legacy, md)

	_, err = Markdown([]byte("---\nidentity: x\n"))
	assert.ErrorIs(t, err, ErrHistoryCorrupt)
}

func TestParseDocumentCorrupt(t *testing.T) {
	good := string(Render(libtiff(t)).Bytes())
	for name, in := range map[string]string{
		"empty":             "",
		"no headline":       "---\nidentity: libtiff-4.0.9\nstatus: NEW\niteration: 2\n---\nno title\n",
		"identity mismatch": strings.Replace(good, "identity: libtiff-4.0.9", "identity: libpng-1.6", 1),
		"bad status":        strings.Replace(good, "status: NEW", "status: OPEN", 1),
		"unterminated":      "---\nidentity: x-1\n# title\n",
		"bad yaml":          "---\nidentity: [\n---\n# Vulnerability roundup 1: x-1: 1 advisory\n",
		"unversioned":       "---\nidentity: hello\nstatus: NEW\niteration: 1\n---\n# Vulnerability roundup 1: hello: 1 advisory\n",
		"legacy no id":      "# Some other document\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument([]byte(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrHistoryCorrupt)
			var ce *CorruptTicketError
			assert.True(t, errors.As(err, &ce))
		})
	}
}

func TestIdentity(t *testing.T) {
	p1, _ := finding.ParsePackage("foo-1.0")
	f1 := finding.Finding{Package: p1, Advisory: adv("CVE-2020-0001"), Channel: "a"}
	f2 := finding.Finding{Package: finding.NewPackage("foo", "1.0"), Advisory: adv("CVE-2021-0002"), Channel: "b"}
	assert.Equal(t, IdentityOfFinding(f1), IdentityOfFinding(f2))
	assert.Equal(t, Identity("foo-1.0").Digest(), Identity("foo-1.0").Digest())
	assert.NotEqual(t, Identity("foo-1.0").Digest(), Identity("foo-1.1").Digest())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "ticket.python3.7-acoustics-0.2.4.md", Identity("python3.7-acoustics-0.2.4").FileName())
	weird := Identity("foo/bar-1.0").FileName()
	assert.True(t, strings.HasPrefix(weird, "ticket.foo_bar-1.0~"), weird)
	assert.NotEqual(t, weird, Identity("foo:bar-1.0").FileName())
	assert.True(t, IsTicketFile(weird))
	assert.False(t, IsTicketFile("vulnix.nixos-19.09.json"))
	assert.False(t, IsTicketFile("ticket..md"))
}
