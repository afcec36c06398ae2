package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/normalize"
)

func TestExpand(t *testing.T) {
	ch := channel.Channel{Name: "nixos-19.09", Rev: "release-19.09"}
	got := Expand([]string{"vulnix", "--json", "-R", "{nixpkgs}", "-A", "{channel}@{rev}"}, ch, "/src/nixpkgs")
	assert.Equal(t, []string{"vulnix", "--json", "-R", "/src/nixpkgs", "-A", "nixos-19.09@release-19.09"}, got)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ch := channel.Channel{Name: "nixos-19.09", Rev: "nixos-19.09"}

	require.NoError(t, Snapshot(ctx, dir, ch, []byte(`[{"name": "zlib-1.2.11", "affected_by": ["CVE-2018-25032"]}]`)))
	fs, err := normalize.LoadFile(ctx, filepath.Join(dir, "vulnix.nixos-19.09.json"), ch.Name, nil)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "zlib-1.2.11", fs[0].Package.String())

	err = Snapshot(ctx, dir, ch, []byte(`{"truncated": `))
	assert.Error(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "vulnix.nixos-19.09.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "zlib-1.2.11", "a failed snapshot keeps the previous artifact")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
