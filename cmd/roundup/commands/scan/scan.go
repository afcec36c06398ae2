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

package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/venslabs/roundup/cmd/roundup/commands/cmdutil"
	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/normalize"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [flags] ITERATION [CHANNEL[=REV]...] [-- SCANNER...]",
		Short: "Run the scanner for every channel and snapshot its output",
		Long: `Run the scanner for every channel concurrently and store its JSON output as
OUTDIR/ITERATION/vulnix.<channel>.json.

The scanner command comes from the config file unless given after "--". Arguments may
use the placeholders {channel}, {rev} and {nixpkgs}.`,
		Example:               Example(),
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("nixpkgs", "", "nixpkgs git checkout passed to the scanner as {nixpkgs}")
	flags.Int("jobs", 0, "number of scanners run at once (0 means one per channel)")

	return cmd
}

func Example() string {
	return `  roundup scan next nixos-19.09 nixos-unstable
  roundup scan --nixpkgs ../nixpkgs 7 nixos-19.09=release-19.09 -- vulnix --json -R {nixpkgs}`
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

	positional, command := args, cfg.Scanner.Command
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		positional, command = args[:at], args[at:]
	}
	if len(positional) == 0 {
		return fmt.Errorf("no iteration given")
	}
	if len(command) == 0 {
		return fmt.Errorf("no scanner command configured")
	}
	n, err := cmdutil.ParseIteration(base, positional[0])
	if err != nil {
		return err
	}
	chans, err := cmdutil.Channels(cmd, cfg, positional[1:])
	if err != nil {
		return err
	}
	nixpkgs := cfg.Nixpkgs
	if flags.Changed("nixpkgs") {
		nixpkgs, _ = flags.GetString("nixpkgs")
	}
	jobs, err := flags.GetInt("jobs")
	if err != nil {
		return err
	}

	dir := history.IterDir(base, n)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Scanning", "iteration", n, "dir", dir, "channels", chans.Names())

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, ch := range chans {
		g.Go(func() error {
			return scanChannel(ctx, dir, ch, Expand(command, ch, nixpkgs))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Scan finished", "iteration", n)
	return nil
}

// Expand substitutes the placeholders of the scanner command for ch.
func Expand(command []string, ch channel.Channel, nixpkgs string) []string {
	r := strings.NewReplacer("{channel}", ch.Name, "{rev}", ch.Rev, "{nixpkgs}", nixpkgs)
	out := make([]string, len(command))
	for i, a := range command {
		out[i] = r.Replace(a)
	}
	return out
}

// scanChannel runs the scanner and keeps its output only if it parses.
func scanChannel(ctx context.Context, dir string, ch channel.Channel, argv []string) error {
	slog.InfoContext(ctx, "Running scanner", "channel", ch.Name, "args", strings.Join(argv, " "))
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	// vulnix exits 2 when it found vulnerabilities
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == 2) {
		fmt.Fprint(os.Stderr, stderr.String())
		return fmt.Errorf("scanner failed for channel %s: %w", ch.Name, err)
	}
	return Snapshot(ctx, dir, ch, stdout.Bytes())
}

// Snapshot validates scanner output and writes it as the channel's artifact.
func Snapshot(ctx context.Context, dir string, ch channel.Channel, b []byte) error {
	diags := diag.NewCollector()
	found, err := normalize.ReadArtifact(ctx, bytes.NewReader(b), ch.Name, ch.ArtifactName(), diags)
	if err != nil {
		return fmt.Errorf("scanner output for channel %s: %w", ch.Name, err)
	}
	slog.InfoContext(ctx, "Scanner output", "channel", ch.Name, "findings", len(found), "diagnostics", diags.Count(diag.MalformedInput))

	p := filepath.Join(dir, ch.ArtifactName())
	tmp, err := os.CreateTemp(dir, "."+ch.ArtifactName()+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(b); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

