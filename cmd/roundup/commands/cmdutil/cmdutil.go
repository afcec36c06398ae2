// Package cmdutil holds helpers shared by the subcommands.
package cmdutil

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/config"
	"github.com/venslabs/roundup/pkg/history"
)

// LoadConfig reads the file named by --config-file.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = config.DefaultPath
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
	}
	slog.DebugContext(cmd.Context(), "Config loaded", "path", path, "channels", c.Channels)
	return c, nil
}

// OutDir returns the value of --outdir.
func OutDir(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("outdir")
}

// ParseIteration accepts a positive number, "next" (one past the newest iteration found
// in base) or "latest" (the newest one).
func ParseIteration(base, s string) (int, error) {
	switch s {
	case "next":
		return history.NextIteration(base)
	case "latest":
		nums, _, err := history.ListIterations(base)
		if err != nil {
			return 0, err
		}
		if len(nums) == 0 {
			return 0, fmt.Errorf("%w: no iterations in %s", history.ErrInvalidIteration, base)
		}
		return nums[len(nums)-1], nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", history.ErrInvalidIteration, s)
	}
	return n, nil
}

// Channels parses the channel specs given on the command line, falling back to the
// config file. Revisions are resolved when a nixpkgs checkout is known.
func Channels(cmd *cobra.Command, c *config.Config, specs []string) (channel.Set, error) {
	if len(specs) == 0 {
		specs = c.Channels
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no channels given on the command line or in the config file")
	}
	set, err := channel.ParseSet(specs)
	if err != nil {
		return nil, err
	}
	nixpkgs := c.Nixpkgs
	if f := cmd.Flags().Lookup("nixpkgs"); f != nil && f.Changed {
		nixpkgs = f.Value.String()
	}
	if nixpkgs == "" {
		return set, nil
	}
	return set.ResolveRevisions(nixpkgs)
}
