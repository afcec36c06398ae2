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

package run

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/cmd/roundup/commands/cmdutil"
	"github.com/venslabs/roundup/pkg/envutil"
	"github.com/venslabs/roundup/pkg/githubapi"
	"github.com/venslabs/roundup/pkg/maintainer"
	"github.com/venslabs/roundup/pkg/outputhandler"
	"github.com/venslabs/roundup/pkg/roundup"
	"github.com/venslabs/roundup/pkg/tracker"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "roundup [flags] ITERATION [CHANNEL[=REV]...]",
		Aliases: []string{"run"},
		Short:   "Compute an iteration from the scanner artifacts in its directory",
		Long: `Compute an iteration from the scanner artifacts in its directory.

The artifacts vulnix.<channel>.json are read from OUTDIR/ITERATION, filtered through the
whitelists and reconciled with the previous iterations. One ticket per affected package
is written next to them, followed by maintainers.json, vex.cdx.json, metrics.prom and
finally summary.json, which marks the iteration as finalized.

ITERATION is a number, "latest" or "next". Channels default to the config file.`,
		Example:               Example(),
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("whitelist-dir", "", "directory of <release>.toml and <release>.yaml whitelists")
	flags.String("store-listings", "", "directory of store path listings; only installed packages are reported")
	flags.String("nixpkgs", "", "nixpkgs git checkout used to resolve channel revisions")
	flags.String("system", "", "system of the packages.<channel>.json entries")
	flags.Bool("no-ping", false, "do not resolve maintainers to ping")
	flags.Bool("validate-handles", false, "drop maintainer handles without a GitHub account [$GITHUB_TOKEN]")
	flags.String("repo", "", "also file tickets as issues in this GitHub repository (OWNER/REPO) [$GITHUB_TOKEN]")
	flags.String("output-format", "table", "report printed to stdout ([table json none])")

	return cmd
}

func Example() string {
	return `  # Snapshot the scans, then compute the iteration
  roundup scan next nixos-19.09 nixos-unstable
  roundup roundup latest nixos-19.09 nixos-unstable

  # File the tickets on GitHub as well
  export GITHUB_TOKEN=...
  roundup roundup --repo NixOS/nixpkgs --validate-handles 7`
}

func action(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cfg, err := cmdutil.LoadConfig(cmd)
	if err != nil {
		return err
	}
	base, err := cmdutil.OutDir(cmd)
	if err != nil {
		return err
	}

	var o roundup.Opts
	o.Base = base
	if o.Iteration, err = cmdutil.ParseIteration(base, args[0]); err != nil {
		return err
	}
	if o.Channels, err = cmdutil.Channels(cmd, cfg, args[1:]); err != nil {
		return err
	}

	o.WhitelistDir = stringFlag(cmd, "whitelist-dir", cfg.WhitelistDir)
	if o.WhitelistDir == "" {
		slog.InfoContext(ctx, "No whitelist directory configured")
	}
	o.StoreListings = stringFlag(cmd, "store-listings", cfg.StoreListings)
	o.System = stringFlag(cmd, "system", cfg.System)

	noPing, err := flags.GetBool("no-ping")
	if err != nil {
		return err
	}
	o.Ping = cfg.Maintainers.Ping && !noPing

	validate := cfg.Maintainers.Validate
	if flags.Changed("validate-handles") {
		if validate, err = flags.GetBool("validate-handles"); err != nil {
			return err
		}
	}
	repo := stringFlag(cmd, "repo", cfg.GitHub.Repo)

	var gh *githubapi.Client
	if validate || repo != "" {
		gh = githubapi.New(githubapi.Opts{
			BaseURL:           cfg.GitHub.BaseURL,
			Token:             envutil.String("GITHUB_TOKEN", ""),
			RequestsPerSecond: cfg.Maintainers.RequestsPerSecond,
		})
	}
	if validate && o.Ping {
		o.Validator = &maintainer.Validator{Checker: gh, Concurrency: cfg.Maintainers.Concurrency}
	}
	if repo != "" {
		t, err := tracker.NewGitHub(repo, gh)
		if err != nil {
			return err
		}
		o.Trackers = append(o.Trackers, t)
	}

	outputFormat, err := flags.GetString("output-format")
	if err != nil {
		return err
	}
	switch outputFormat {
	case "", "table":
		o.Handlers = append(o.Handlers, outputhandler.NewTableOutputHandler(cmd.OutOrStdout()))
	case "json":
		o.Handlers = append(o.Handlers, outputhandler.NewSummaryOutputHandler(cmd.OutOrStdout()))
	case "none":
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}

	r, err := roundup.New(o)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx)
	return err
}

// stringFlag returns the flag value if it was given, def otherwise.
func stringFlag(cmd *cobra.Command, name, def string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return def
	}
	return f.Value.String()
}
