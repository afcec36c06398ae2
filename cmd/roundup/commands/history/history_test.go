package history

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/finding"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/ticket"
	"github.com/venslabs/roundup/pkg/tracker"
)

func writeTicket(t *testing.T, base string, n int, pkg string, status ticket.Status, finalize bool) {
	t.Helper()
	p, err := finding.ParsePackage(pkg)
	require.NoError(t, err)
	tk := ticket.Ticket{
		Iteration: n,
		Identity:  ticket.IdentityOf(p),
		Package:   p,
		Status:    status,
		Entries:   []ticket.Entry{{Advisory: finding.MustParseAdvisory("CVE-2019-0001"), Fixed: !status.Open()}},
	}
	if status == ticket.StatusResolved {
		tk.Reason = ticket.ReasonFixed
	}
	doc := ticket.Render(tk)
	dir := history.IterDir(base, n)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, doc.FileName()), doc.Bytes(), 0o644))
	if finalize {
		require.NoError(t, os.WriteFile(filepath.Join(dir, history.FinalizedMarker), []byte("{}"), 0o644))
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	ov, err := Load(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, ov.Iterations)
	assert.Empty(t, ov.Open)

	writeTicket(t, base, 1, "libtiff-4.0.9", ticket.StatusNew, false)
	writeTicket(t, base, 1, "zlib-1.2.11", ticket.StatusNew, true)
	writeTicket(t, base, 2, "zlib-1.2.11", ticket.StatusCarried, true)
	// unfinalized iterations do not count
	writeTicket(t, base, 3, "expat-2.2.6", ticket.StatusNew, false)

	ov, err = Load(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ov.Iterations)
	assert.Equal(t, []int{1, 2}, ov.Finalized)
	assert.Equal(t, []Entry{{
		Identity:   "zlib-1.2.11",
		Status:     "CARRIED",
		Iteration:  2,
		Advisories: []string{"CVE-2019-0001"},
	}}, ov.Open)
}

func TestPrintIssues(t *testing.T) {
	base := t.TempDir()
	writeTicket(t, base, 1, "zlib-1.2.11", ticket.StatusNew, true)

	var buf bytes.Buffer
	require.NoError(t, printIssues(context.Background(), &buf, &tracker.File{Base: base}, true))
	var issues []tracker.Issue
	require.NoError(t, json.Unmarshal(buf.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "Vulnerability roundup 1: zlib-1.2.11: 1 advisory", issues[0].Title)

	buf.Reset()
	require.NoError(t, printIssues(context.Background(), &buf, &tracker.File{Base: base}, false))
	assert.Contains(t, buf.String(), "zlib-1.2.11")
}
