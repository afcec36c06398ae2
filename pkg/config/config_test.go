package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/githubapi"
)

func write(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "roundup.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	c, err := Load(write(t, `
channels: [nixos-19.09, nixos-unstable=master]
whitelist_dir: wl
maintainers:
  validate: true
  concurrency: 8
github:
  repo: NixOS/nixpkgs
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"nixos-19.09", "nixos-unstable=master"}, c.Channels)
	assert.Equal(t, "wl", c.WhitelistDir)
	assert.True(t, c.Maintainers.Validate)
	// defaults survive
	assert.True(t, c.Maintainers.Ping)
	assert.Equal(t, 8, c.Maintainers.Concurrency)
	assert.Equal(t, 5.0, c.Maintainers.RequestsPerSecond)
	assert.Equal(t, "NixOS/nixpkgs", c.GitHub.Repo)
	assert.NotEmpty(t, c.Scanner.Command)
}

func TestLoadMissingDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Empty(t, c.WhitelistDir, "whitelists are opt-in")

	_, err = Load("other.yaml")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(write(t, "channels: [a, a]\n"))
	assert.ErrorIs(t, err, channel.ErrDuplicate)

	_, err = Load(write(t, "github:\n  repo: nixpkgs\n"))
	assert.ErrorIs(t, err, githubapi.ErrInvalidRepo)

	_, err = Load(write(t, "maintainers:\n  concurrency: -1\n"))
	assert.Error(t, err)

	_, err = Load(write(t, "channels: {\n"))
	assert.Error(t, err)
}
