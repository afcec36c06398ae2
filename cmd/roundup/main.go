package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/cmd/roundup/commands/count"
	"github.com/venslabs/roundup/cmd/roundup/commands/history"
	"github.com/venslabs/roundup/cmd/roundup/commands/run"
	"github.com/venslabs/roundup/cmd/roundup/commands/scan"
	"github.com/venslabs/roundup/cmd/roundup/commands/show"
	"github.com/venslabs/roundup/cmd/roundup/version"
	"github.com/venslabs/roundup/pkg/config"
	"github.com/venslabs/roundup/pkg/envutil"
)

var logLevel = new(slog.LevelVar)

func main() {
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(logHandler))
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("Error", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "roundup",
		Short:         "Turn vulnerability scans of package channels into tracked tickets",
		Example:       run.Example(),
		Version:       version.GetVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()

	// The debug flag value is determined by: CLI flag > DEBUG env var > default (false)
	flags.Bool("debug", envutil.Bool("DEBUG", false), "debug mode [$DEBUG]")
	flags.String("outdir", envutil.String("ROUNDUP_OUTDIR", "iterations"), "directory holding the numbered iterations [$ROUNDUP_OUTDIR]")
	flags.String("config-file", config.DefaultPath, "path to the roundup.yaml config file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logLevel.Set(slog.LevelDebug)
		}
		return nil
	}

	cmd.AddCommand(
		run.New(),
		scan.New(),
		count.New(),
		show.New(),
		history.New(),
	)

	return cmd
}
